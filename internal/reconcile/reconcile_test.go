package reconcile

import (
	"strings"
	"testing"

	"planloom/internal/db"
)

func task(id, desc, effort, parent string) db.Task {
	return db.Task{
		TaskID:       id,
		FeatureID:    "f1",
		Description:  desc,
		Title:        desc,
		Effort:       effort,
		ParentTaskID: parent,
		Status:       db.StatusPending,
	}
}

func TestCompute_AddsNewTasks(t *testing.T) {
	ops := Compute([]db.Task{task("t1", "A", "low", "")}, nil, false)
	if len(ops.Adds) != 1 || ops.Adds[0].TaskID != "t1" {
		t.Fatalf("unexpected adds: %+v", ops.Adds)
	}
	if len(ops.Updates) != 0 || len(ops.DeleteIDs) != 0 {
		t.Fatalf("unexpected ops: %+v", ops)
	}
}

func TestCompute_FullReplaceDeletesAbsentTasks(t *testing.T) {
	persisted := []db.Task{task("t1", "A", "low", ""), task("t2", "B", "low", "")}
	ops := Compute([]db.Task{task("t1", "A", "low", "")}, persisted, false)
	if len(ops.DeleteIDs) != 1 || ops.DeleteIDs[0] != "t2" {
		t.Fatalf("expected t2 deletion, got %+v", ops.DeleteIDs)
	}
}

func TestCompute_ReviewNeverDeletes(t *testing.T) {
	persisted := []db.Task{task("t1", "A", "low", ""), task("t2", "B", "low", "")}
	ops := Compute([]db.Task{task("t3", "C", "medium", "")}, persisted, true)
	if len(ops.DeleteIDs) != 0 {
		t.Fatalf("review plans must never delete, got %+v", ops.DeleteIDs)
	}
	if len(ops.Adds) != 1 {
		t.Fatalf("expected one add, got %+v", ops.Adds)
	}
}

func TestCompute_UpdatesOnlyDifferingFields(t *testing.T) {
	persisted := []db.Task{{
		TaskID: "t1", FeatureID: "f1", Description: "A", Title: "A",
		Effort: db.EffortLow, Status: db.StatusInProgress,
	}}
	incoming := []db.Task{{
		TaskID: "t1", FeatureID: "f1", Description: "A refined", Title: "A refined",
		Effort: db.EffortLow, Status: db.StatusPending,
	}}
	ops := Compute(incoming, persisted, false)
	if len(ops.Updates) != 1 {
		t.Fatalf("expected one update, got %+v", ops)
	}
	fields := ops.Updates[0].Fields
	if _, ok := fields["status"]; ok {
		t.Fatal("reconciliation must not write status")
	}
	if _, ok := fields["effort"]; ok {
		t.Fatal("unchanged effort must not be written")
	}
	if fields["description"] != "A refined" {
		t.Fatalf("unexpected fields: %+v", fields)
	}
}

func TestCompute_DanglingParentClearedWithWarning(t *testing.T) {
	incoming := []db.Task{task("t1", "A", "low", "ghost")}
	ops := Compute(incoming, nil, false)
	if len(ops.Adds) != 1 {
		t.Fatalf("expected the task to survive, got %+v", ops)
	}
	if ops.Adds[0].ParentTaskID != "" {
		t.Fatalf("dangling parent should be cleared, got %q", ops.Adds[0].ParentTaskID)
	}
	found := false
	for _, w := range ops.Warnings {
		if strings.Contains(w, "ghost") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a warning about the dangling parent, got %v", ops.Warnings)
	}
}

func TestCompute_ParentWithinSamePlanResolves(t *testing.T) {
	parent := task("p1", "Parent", "", "")
	parent.Status = db.StatusDecomposed
	child := task("c1", "Child", "low", "p1")
	ops := Compute([]db.Task{parent, child}, nil, false)
	if len(ops.Adds) != 2 {
		t.Fatalf("expected both tasks added, got %+v", ops)
	}
	if ops.Adds[1].ParentTaskID != "p1" {
		t.Fatalf("in-plan parent reference should resolve, got %q", ops.Adds[1].ParentTaskID)
	}
	if len(ops.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", ops.Warnings)
	}
}

func TestCompute_FixedPoint(t *testing.T) {
	plan := []db.Task{task("t1", "A", "low", ""), task("t2", "B", "medium", "")}
	first := Compute(plan, nil, false)

	// Simulate applying the first round, then diff the same plan again.
	applied := append([]db.Task(nil), first.Adds...)
	second := Compute(plan, applied, false)
	if !second.Empty() {
		t.Fatalf("expected fixed point, got %+v", second)
	}
}

func TestCompute_CompletedTaskUpdateWarnsButKeepsCompletion(t *testing.T) {
	persisted := []db.Task{{
		TaskID: "t1", FeatureID: "f1", Description: "A", Title: "A",
		Status: db.StatusCompleted, Completed: true,
	}}
	ops := Compute([]db.Task{task("t1", "A better", "low", "")}, persisted, false)
	if len(ops.Updates) != 1 {
		t.Fatalf("expected update, got %+v", ops)
	}
	if len(ops.Warnings) == 0 {
		t.Fatal("expected a warning about updating completed work")
	}
	if _, ok := ops.Updates[0].Fields["status"]; ok {
		t.Fatal("completed task must not be reopened")
	}
}
