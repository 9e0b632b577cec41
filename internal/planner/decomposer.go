package planner

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"planloom/internal/db"
	"planloom/internal/provider"
	"planloom/internal/recovery"

	"github.com/google/uuid"
)

const (
	defaultDecomposeAttempts = 3
	defaultMinSubtasks       = 2
	defaultMaxSubtasks       = 5
)

// Decomposer breaks a single high-effort task into smaller subtasks. Tasks in
// a plan are decomposed one at a time, never in parallel, to bound request
// volume and keep subtask ordering stable across retries.
type Decomposer struct {
	Provider provider.CompletionProvider
	Logger   *slog.Logger

	// Zero values fall back to the defaults above.
	Attempts    int
	MinSubtasks int
	MaxSubtasks int
}

func (d *Decomposer) attempts() int {
	if d.Attempts > 0 {
		return d.Attempts
	}
	return defaultDecomposeAttempts
}

func (d *Decomposer) bounds() (int, int) {
	min, max := d.MinSubtasks, d.MaxSubtasks
	if min <= 0 {
		min = defaultMinSubtasks
	}
	if max < min {
		max = defaultMaxSubtasks
	}
	return min, max
}

// Decompose returns the task's replacement set: on success the original task
// as a status="decomposed" container followed by its subtasks, each tagged
// with the container's id and clamped to low/medium effort. The container id
// is the task's own pre-generated id, so provenance survives even when every
// attempt fails and the task is kept verbatim as an actionable leaf.
func (d *Decomposer) Decompose(ctx context.Context, task db.Task) []db.Task {
	min, max := d.bounds()
	prompt := buildDecomposePrompt(task.Description, min, max)

	var items []recovery.PlanItem
	for attempt := 1; attempt <= d.attempts(); attempt++ {
		raw, err := d.Provider.GenerateStructured(ctx, prompt, planSchema())
		if err != nil {
			d.Logger.Warn("decomposition request failed",
				"taskId", task.TaskID, "attempt", attempt, "error", err)
			continue
		}
		result := recovery.ParsePlanResponse(raw)
		if !result.OK {
			d.Logger.Warn("decomposition response unparseable",
				"taskId", task.TaskID, "attempt", attempt, "stage", result.FailureStage)
			continue
		}
		candidate := usableItems(result.Plan.Subtasks)
		if len(candidate) < min {
			d.Logger.Warn("decomposition returned too few subtasks",
				"taskId", task.TaskID, "attempt", attempt, "got", len(candidate))
			continue
		}
		if len(candidate) > max {
			candidate = candidate[:max]
		}
		items = candidate
		break
	}
	if items == nil {
		d.Logger.Info("keeping task as actionable leaf after failed decomposition",
			"taskId", task.TaskID)
		return []db.Task{task}
	}

	now := time.Now().UTC().Unix()
	parent := task
	parent.Status = db.StatusDecomposed

	out := make([]db.Task, 0, len(items)+1)
	out = append(out, parent)
	for _, item := range items {
		effort, desc := d.subtaskEffort(ctx, item)
		out = append(out, db.Task{
			TaskID:       uuid.NewString(),
			FeatureID:    task.FeatureID,
			ParentTaskID: parent.TaskID,
			Title:        desc,
			Description:  desc,
			Status:       db.StatusPending,
			Effort:       effort,
			FromReview:   task.FromReview,
			CreatedAt:    now,
		})
	}
	return out
}

func (d *Decomposer) subtaskEffort(ctx context.Context, item recovery.PlanItem) (string, string) {
	effort := normalizeEffort(item.Effort)
	desc := item.Description
	if effort == "" {
		effort, desc = ClassifyEffort(ctx, d.Provider, d.Logger, desc)
	} else {
		desc, _ = StripEffortTag(desc)
	}
	// Subtasks are by definition smaller than their parent.
	if effort == db.EffortHigh {
		effort = db.EffortMedium
	}
	return effort, desc
}

func usableItems(items []recovery.PlanItem) []recovery.PlanItem {
	out := make([]recovery.PlanItem, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.Description) != "" {
			out = append(out, item)
		}
	}
	return out
}
