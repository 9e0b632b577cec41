package featurestate

import (
	"fmt"
	"testing"

	"planloom/internal/db"
	"planloom/internal/reconcile"
)

var testDBSeq int

func newTestStore(t *testing.T) *Store {
	t.Helper()
	testDBSeq++
	dsn := fmt.Sprintf("file:featurestate_test_%d?mode=memory&cache=shared", testDBSeq)
	if err := InitGlobalDBWithDSN(dsn); err != nil {
		t.Fatalf("init test db: %v", err)
	}
	return NewStore()
}

func TestInsertAndGetTask(t *testing.T) {
	s := newTestStore(t)

	err := s.InsertTask(db.Task{
		TaskID:      "t1",
		FeatureID:   "f1",
		Description: "Build the ingestion pipeline",
		Effort:      db.EffortHigh,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	task, found, err := s.GetTask("t1")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if task.Status != db.StatusPending {
		t.Fatalf("default status should be pending, got %q", task.Status)
	}
	if task.Title != "Build the ingestion pipeline" {
		t.Fatalf("title should default to description, got %q", task.Title)
	}
	if task.Completed {
		t.Fatal("pending task must not project completed")
	}
	if task.CreatedAt == 0 || task.UpdatedAt == 0 {
		t.Fatal("timestamps should be populated")
	}
}

func TestGetTaskNotFound(t *testing.T) {
	s := newTestStore(t)
	_, found, err := s.GetTask("missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Fatal("missing task reported found")
	}
}

func TestInsertTaskRejectsInvalidStatus(t *testing.T) {
	s := newTestStore(t)
	err := s.InsertTask(db.Task{TaskID: "t1", FeatureID: "f1", Description: "x", Status: "paused"})
	if err == nil {
		t.Fatal("expected invalid status error")
	}
}

func TestUpdateTaskFieldsMaintainsCompletedProjection(t *testing.T) {
	s := newTestStore(t)
	mustInsert(t, s, db.Task{TaskID: "t1", FeatureID: "f1", Description: "x"})

	if err := s.UpdateTaskFields("t1", map[string]any{"status": db.StatusCompleted}); err != nil {
		t.Fatalf("update: %v", err)
	}
	task, _, err := s.GetTask("t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if task.Status != db.StatusCompleted || !task.Completed {
		t.Fatalf("completed projection out of sync: %+v", task)
	}
}

func TestUpdateTaskFieldsRejectsUnknownColumn(t *testing.T) {
	s := newTestStore(t)
	mustInsert(t, s, db.Task{TaskID: "t1", FeatureID: "f1", Description: "x"})

	if err := s.UpdateTaskFields("t1", map[string]any{"feature_id": "f2"}); err == nil {
		t.Fatal("expected unsupported field error")
	}
}

func TestUpdateTaskFieldsMissingTask(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpdateTaskFields("nope", map[string]any{"title": "x"}); err == nil {
		t.Fatal("expected task not found error")
	}
}

func TestListSiblings(t *testing.T) {
	s := newTestStore(t)
	mustInsert(t, s, db.Task{TaskID: "p1", FeatureID: "f1", Description: "parent", Status: db.StatusDecomposed})
	mustInsert(t, s, db.Task{TaskID: "c1", FeatureID: "f1", Description: "a", ParentTaskID: "p1"})
	mustInsert(t, s, db.Task{TaskID: "c2", FeatureID: "f1", Description: "b", ParentTaskID: "p1"})
	mustInsert(t, s, db.Task{TaskID: "t9", FeatureID: "f1", Description: "unrelated"})

	siblings, err := s.ListSiblings("f1", "p1")
	if err != nil {
		t.Fatalf("siblings: %v", err)
	}
	if len(siblings) != 2 {
		t.Fatalf("expected 2 siblings, got %d", len(siblings))
	}
}

func TestDeleteTasksScopedToFeature(t *testing.T) {
	s := newTestStore(t)
	mustInsert(t, s, db.Task{TaskID: "t1", FeatureID: "f1", Description: "a"})
	mustInsert(t, s, db.Task{TaskID: "t2", FeatureID: "f2", Description: "b"})

	if err := s.DeleteTasks("f1", []string{"t1", "t2"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := s.GetTask("t1"); found {
		t.Fatal("t1 should be deleted")
	}
	if _, found, _ := s.GetTask("t2"); !found {
		t.Fatal("t2 belongs to another feature and must survive")
	}
}

func TestApplyPlanOps(t *testing.T) {
	s := newTestStore(t)
	mustInsert(t, s, db.Task{TaskID: "keep", FeatureID: "f1", Description: "keep me"})
	mustInsert(t, s, db.Task{TaskID: "drop", FeatureID: "f1", Description: "drop me"})

	ops := reconcile.Ops{
		Adds:      []db.Task{{TaskID: "new", Description: "fresh work", Effort: db.EffortLow}},
		Updates:   []reconcile.FieldUpdate{{TaskID: "keep", Fields: map[string]any{"description": "kept and renamed"}}},
		DeleteIDs: []string{"drop"},
	}
	if err := s.ApplyPlanOps("f1", ops); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if _, found, _ := s.GetTask("drop"); found {
		t.Fatal("deleted task still present")
	}
	added, found, _ := s.GetTask("new")
	if !found || added.FeatureID != "f1" {
		t.Fatalf("added task missing or misfiled: %+v", added)
	}
	kept, _, _ := s.GetTask("keep")
	if kept.Description != "kept and renamed" {
		t.Fatalf("update not applied: %+v", kept)
	}
}

func TestPlanningStateConsumeIsExactlyOnce(t *testing.T) {
	s := newTestStore(t)
	err := s.PutPlanningState(db.PlanningState{
		QuestionID:      "q1",
		FeatureID:       "f1",
		Prompt:          "original prompt",
		PartialResponse: "partial model output",
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	state, found, err := s.ConsumePlanningState("q1")
	if err != nil || !found {
		t.Fatalf("first consume: found=%v err=%v", found, err)
	}
	if state.Prompt != "original prompt" || state.PlanningType != db.PlanningTypeFeature {
		t.Fatalf("unexpected state: %+v", state)
	}

	_, found, err = s.ConsumePlanningState("q1")
	if err != nil {
		t.Fatalf("second consume: %v", err)
	}
	if found {
		t.Fatal("second consume must report nothing to resume")
	}
	if _, found, err := s.GetPlanningState("q1"); err != nil || found {
		t.Fatalf("consumed record must be deleted: found=%v err=%v", found, err)
	}
}

func TestHistoryAppendAndList(t *testing.T) {
	s := newTestStore(t)
	entries := []db.HistoryEntry{
		{FeatureID: "f1", Role: db.HistoryRoleUser, Content: "plan the feature", Timestamp: 100},
		{FeatureID: "f1", Role: db.HistoryRoleModel, Content: "plan json", Timestamp: 200},
		{FeatureID: "f1", Role: db.HistoryRoleToolCall, Content: "mark complete", TaskID: "t1", Action: "status", Timestamp: 300},
	}
	for _, e := range entries {
		if err := s.AppendHistory(e); err != nil {
			t.Fatalf("append %q: %v", e.Role, err)
		}
	}
	if err := s.AppendHistory(db.HistoryEntry{FeatureID: "f1", Role: "narrator", Content: "x"}); err == nil {
		t.Fatal("expected invalid role rejection")
	}

	got, err := s.ListHistory("f1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[0].Role != db.HistoryRoleUser || got[2].TaskID != "t1" {
		t.Fatalf("entries out of order or mangled: %+v", got)
	}
}

func mustInsert(t *testing.T, s *Store, task db.Task) {
	t.Helper()
	if err := s.InsertTask(task); err != nil {
		t.Fatalf("insert %s: %v", task.TaskID, err)
	}
}
