package featurestate

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"planloom/internal/db"

	"gorm.io/gorm"
)

func (s *Store) InsertTask(task db.Task) error {
	h, release, err := s.db()
	if err != nil {
		return err
	}
	defer func() { _ = release() }()

	if strings.TrimSpace(task.TaskID) == "" {
		return errors.New("task id is required")
	}
	if strings.TrimSpace(task.FeatureID) == "" {
		return errors.New("feature id is required")
	}
	now := time.Now().UTC().Unix()
	status := task.Status
	if status == "" {
		status = db.StatusPending
	}
	if !db.ValidStatus(status) {
		return errors.New("invalid task status: " + status)
	}
	title := task.Title
	if strings.TrimSpace(title) == "" {
		title = task.Description
	}
	createdAt := task.CreatedAt
	if createdAt == 0 {
		createdAt = now
	}
	_, err = h.Exec(`
INSERT INTO tasks(task_id, feature_id, parent_task_id, title, description, status, completed, effort, from_review, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, task.TaskID, task.FeatureID, task.ParentTaskID, title, task.Description, status, status == db.StatusCompleted, task.Effort, task.FromReview, createdAt, now)
	return err
}

func (s *Store) GetTask(taskID string) (db.Task, bool, error) {
	h, release, err := s.db()
	if err != nil {
		return db.Task{}, false, err
	}
	defer func() { _ = release() }()

	row := h.QueryRow(`
SELECT task_id, feature_id, parent_task_id, title, description, status, completed, effort, from_review, created_at, updated_at
FROM tasks WHERE task_id = ?
`, taskID)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return db.Task{}, false, nil
	}
	if err != nil {
		return db.Task{}, false, err
	}
	return task, true, nil
}

func (s *Store) ListTasksByFeature(featureID string) ([]db.Task, error) {
	h, release, err := s.db()
	if err != nil {
		return nil, err
	}
	defer func() { _ = release() }()

	rows, err := h.Query(`
SELECT task_id, feature_id, parent_task_id, title, description, status, completed, effort, from_review, created_at, updated_at
FROM tasks WHERE feature_id = ? ORDER BY created_at ASC, task_id ASC
`, featureID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]db.Task, 0, 16)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (s *Store) ListSiblings(featureID, parentTaskID string) ([]db.Task, error) {
	if strings.TrimSpace(parentTaskID) == "" {
		return nil, errors.New("parent task id is required")
	}
	h, release, err := s.db()
	if err != nil {
		return nil, err
	}
	defer func() { _ = release() }()

	rows, err := h.Query(`
SELECT task_id, feature_id, parent_task_id, title, description, status, completed, effort, from_review, created_at, updated_at
FROM tasks WHERE feature_id = ? AND parent_task_id = ? ORDER BY created_at ASC, task_id ASC
`, featureID, parentTaskID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]db.Task, 0, 8)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// UpdateTaskFields writes only the given columns. The completed projection and
// updated_at are maintained here so callers cannot desync them.
func (s *Store) UpdateTaskFields(taskID string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	gdb, release, err := s.dbGORM()
	if err != nil {
		return err
	}
	defer func() { _ = release() }()

	out := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		switch k {
		case "title", "description", "effort", "parent_task_id", "from_review", "status":
		default:
			return errors.New("unsupported task field: " + k)
		}
		out[k] = v
	}
	if status, ok := out["status"].(string); ok {
		if !db.ValidStatus(status) {
			return errors.New("invalid task status: " + status)
		}
		out["completed"] = status == db.StatusCompleted
	}
	out["updated_at"] = time.Now().UTC().Unix()

	res := gdb.Model(&db.Task{}).Where("task_id = ?", taskID).Updates(out)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("task not found: " + taskID)
	}
	return nil
}

// DeleteTasks removes the given ids inside one transaction.
func (s *Store) DeleteTasks(featureID string, taskIDs []string) error {
	if len(taskIDs) == 0 {
		return nil
	}
	gdb, release, err := s.dbGORM()
	if err != nil {
		return err
	}
	defer func() { _ = release() }()

	return gdb.Transaction(func(tx *gorm.DB) error {
		return tx.Where("feature_id = ? AND task_id IN ?", featureID, taskIDs).Delete(&db.Task{}).Error
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (db.Task, error) {
	var task db.Task
	err := row.Scan(
		&task.TaskID, &task.FeatureID, &task.ParentTaskID, &task.Title,
		&task.Description, &task.Status, &task.Completed, &task.Effort,
		&task.FromReview, &task.CreatedAt, &task.UpdatedAt,
	)
	return task, err
}
