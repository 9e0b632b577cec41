package planner

import (
	"fmt"
	"log/slog"

	"planloom/internal/db"
	"planloom/internal/featurestate"
	"planloom/internal/protocol"
)

// Notifier pushes realtime messages to connected clients. The hub in
// internal/localapi implements it; tests substitute a recorder.
type Notifier interface {
	Broadcast(msg protocol.Message)
}

// rank orders the actionable statuses; a task never moves backwards.
var statusRank = map[string]int{
	db.StatusPending:    0,
	db.StatusInProgress: 1,
	db.StatusCompleted:  2,
}

// StateMachine advances task statuses and cascades completion one parent
// level. All notifications go out strictly after persistence.
type StateMachine struct {
	Store    *featurestate.Store
	Notifier Notifier
	Logger   *slog.Logger
}

// MarkTaskStatus moves a task to status and returns a human-readable result
// message. Completing an already-completed task is an idempotent no-op.
// When the completion finishes the last pending sibling under a parent, the
// parent auto-completes too; the cascade stops there.
func (m *StateMachine) MarkTaskStatus(featureID, taskID, status string) (string, error) {
	if _, ok := statusRank[status]; !ok {
		return "", fmt.Errorf("status %q cannot be set directly", status)
	}
	task, found, err := m.Store.GetTask(taskID)
	if err != nil {
		return "", err
	}
	if !found || task.FeatureID != featureID {
		return "", fmt.Errorf("task not found: %s", taskID)
	}
	if task.Status == db.StatusDecomposed {
		return "", fmt.Errorf("task %s is a decomposed container and cannot change status", taskID)
	}
	if task.Status == status {
		if status == db.StatusCompleted {
			return fmt.Sprintf("Task %q is already complete.", task.Title), nil
		}
		return fmt.Sprintf("Task %q is already %s.", task.Title, status), nil
	}
	if statusRank[status] < statusRank[task.Status] {
		return "", fmt.Errorf("task %s cannot move from %s back to %s", taskID, task.Status, status)
	}

	if err := m.Store.UpdateTaskFields(taskID, map[string]any{"status": status}); err != nil {
		return "", err
	}
	m.broadcastStatus(featureID, taskID, status, false)

	if status != db.StatusCompleted {
		return fmt.Sprintf("Task %q moved to %s.", task.Title, status), nil
	}

	msg := fmt.Sprintf("Task %q marked as complete.", task.Title)
	if task.ParentTaskID != "" {
		completedParent, err := m.completeParentIfDone(featureID, task.ParentTaskID)
		if err != nil {
			m.Logger.Warn("parent completion check failed",
				"taskId", taskID, "parentTaskId", task.ParentTaskID, "error", err)
		} else if completedParent != "" {
			msg += fmt.Sprintf(" Parent task %q was auto-completed.", completedParent)
		}
	}
	m.Notifier.Broadcast(protocol.Message{Type: protocol.TypeTasksUpdated, FeatureID: featureID})
	return msg, nil
}

// completeParentIfDone closes the parent when every child under it is
// completed. Returns the parent title when it transitioned, "" otherwise.
// The check never recurses to the grandparent.
func (m *StateMachine) completeParentIfDone(featureID, parentTaskID string) (string, error) {
	parent, found, err := m.Store.GetTask(parentTaskID)
	if err != nil || !found {
		return "", err
	}
	if parent.Status == db.StatusCompleted {
		return "", nil
	}
	siblings, err := m.Store.ListSiblings(featureID, parentTaskID)
	if err != nil {
		return "", err
	}
	for _, sib := range siblings {
		if sib.Status != db.StatusCompleted {
			return "", nil
		}
	}
	if err := m.Store.UpdateTaskFields(parentTaskID, map[string]any{"status": db.StatusCompleted}); err != nil {
		return "", err
	}
	m.broadcastStatus(featureID, parentTaskID, db.StatusCompleted, true)
	return parent.Title, nil
}

func (m *StateMachine) broadcastStatus(featureID, taskID, status string, auto bool) {
	m.Notifier.Broadcast(protocol.Message{
		Type:      protocol.TypeStatusChanged,
		FeatureID: featureID,
		Payload: protocol.MustRaw(protocol.StatusChangedPayload{
			TaskID:        taskID,
			Status:        status,
			AutoCompleted: auto,
		}),
	})
}
