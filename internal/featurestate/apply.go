package featurestate

import (
	"fmt"

	"planloom/internal/reconcile"
)

// ApplyPlanOps persists a reconciliation result. Deletes run first inside one
// transaction so a full-replace plan never leaves orphans behind; adds and
// updates follow sequentially. An add or update failure aborts the remainder
// and reports which task it died on.
func (s *Store) ApplyPlanOps(featureID string, ops reconcile.Ops) error {
	if err := s.DeleteTasks(featureID, ops.DeleteIDs); err != nil {
		return fmt.Errorf("delete reconciled tasks: %w", err)
	}
	for _, task := range ops.Adds {
		task.FeatureID = featureID
		if err := s.InsertTask(task); err != nil {
			return fmt.Errorf("insert task %s: %w", task.TaskID, err)
		}
	}
	for _, update := range ops.Updates {
		if err := s.UpdateTaskFields(update.TaskID, update.Fields); err != nil {
			return fmt.Errorf("update task %s: %w", update.TaskID, err)
		}
	}
	return nil
}
