// Package reconcile diffs a freshly generated plan against the persisted task
// set for a feature. It only computes operations; applying them is the store's
// job. The whole package is pure so plans can be diffed in tests without a
// database.
package reconcile

import (
	"fmt"
	"strings"

	"planloom/internal/db"
)

// FieldUpdate carries only the columns that actually differ for one task.
type FieldUpdate struct {
	TaskID string
	Fields map[string]any
}

type Ops struct {
	Adds      []db.Task
	Updates   []FieldUpdate
	DeleteIDs []string
	Warnings  []string
}

func (o Ops) Empty() bool {
	return len(o.Adds) == 0 && len(o.Updates) == 0 && len(o.DeleteIDs) == 0
}

// Compute matches plan against persisted by task id. Ordinary planning is
// full-replace: persisted tasks absent from the plan are deleted. Review
// plans are append/update-only and never delete. For matched ids only
// differing fields are written; status and the completed projection are never
// touched, so a status advanced concurrently by a human survives
// reconciliation.
func Compute(plan []db.Task, persisted []db.Task, fromReview bool) Ops {
	var ops Ops

	persistedByID := make(map[string]db.Task, len(persisted))
	for _, task := range persisted {
		persistedByID[task.TaskID] = task
	}
	knownIDs := make(map[string]struct{}, len(persisted)+len(plan))
	for _, task := range persisted {
		knownIDs[task.TaskID] = struct{}{}
	}
	for _, task := range plan {
		if strings.TrimSpace(task.TaskID) != "" {
			knownIDs[task.TaskID] = struct{}{}
		}
	}

	planIDs := make(map[string]struct{}, len(plan))
	for _, incoming := range plan {
		if strings.TrimSpace(incoming.TaskID) == "" {
			ops.Warnings = append(ops.Warnings, "dropping plan task without id: "+clip(incoming.Description))
			continue
		}
		planIDs[incoming.TaskID] = struct{}{}

		incoming = normalize(incoming)
		if incoming.ParentTaskID != "" {
			if _, ok := knownIDs[incoming.ParentTaskID]; !ok {
				ops.Warnings = append(ops.Warnings, fmt.Sprintf(
					"task %s references unknown parent %s; clearing reference", incoming.TaskID, incoming.ParentTaskID))
				incoming.ParentTaskID = ""
			}
		}

		existing, found := persistedByID[incoming.TaskID]
		if !found {
			ops.Adds = append(ops.Adds, incoming)
			continue
		}
		fields := diffFields(incoming, existing)
		if len(fields) == 0 {
			continue
		}
		if existing.Status == db.StatusCompleted {
			ops.Warnings = append(ops.Warnings, fmt.Sprintf(
				"task %s already completed; updating fields without reopening", incoming.TaskID))
		}
		ops.Updates = append(ops.Updates, FieldUpdate{TaskID: incoming.TaskID, Fields: fields})
	}

	if !fromReview {
		for _, task := range persisted {
			if _, inPlan := planIDs[task.TaskID]; !inPlan {
				ops.DeleteIDs = append(ops.DeleteIDs, task.TaskID)
			}
		}
	}
	return ops
}

func normalize(task db.Task) db.Task {
	if strings.TrimSpace(task.Title) == "" {
		task.Title = task.Description
	}
	if task.Status == "" {
		task.Status = db.StatusPending
	}
	return task
}

func diffFields(incoming, existing db.Task) map[string]any {
	fields := map[string]any{}
	if incoming.Description != existing.Description {
		fields["description"] = incoming.Description
	}
	if incoming.Title != existing.Title {
		fields["title"] = incoming.Title
	}
	if incoming.Effort != "" && incoming.Effort != existing.Effort {
		fields["effort"] = incoming.Effort
	}
	if incoming.ParentTaskID != existing.ParentTaskID {
		fields["parent_task_id"] = incoming.ParentTaskID
	}
	if incoming.FromReview != existing.FromReview {
		fields["from_review"] = incoming.FromReview
	}
	return fields
}

func clip(s string) string {
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
