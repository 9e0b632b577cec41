package featurestate

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"planloom/internal/db"

	"gorm.io/gorm"
)

// PutPlanningState persists an in-flight clarification keyed by question id.
func (s *Store) PutPlanningState(state db.PlanningState) error {
	h, release, err := s.db()
	if err != nil {
		return err
	}
	defer func() { _ = release() }()

	if strings.TrimSpace(state.QuestionID) == "" {
		return errors.New("question id is required")
	}
	if strings.TrimSpace(state.FeatureID) == "" {
		return errors.New("feature id is required")
	}
	planningType := state.PlanningType
	if planningType == "" {
		planningType = db.PlanningTypeFeature
	}
	createdAt := state.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().UTC().Unix()
	}
	_, err = h.Exec(`
INSERT INTO planning_states(question_id, feature_id, prompt, partial_response, planning_type, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`, state.QuestionID, state.FeatureID, state.Prompt, state.PartialResponse, planningType, createdAt)
	return err
}

func (s *Store) GetPlanningState(questionID string) (db.PlanningState, bool, error) {
	h, release, err := s.db()
	if err != nil {
		return db.PlanningState{}, false, err
	}
	defer func() { _ = release() }()

	var state db.PlanningState
	err = h.QueryRow(`
SELECT question_id, feature_id, prompt, partial_response, planning_type, created_at
FROM planning_states WHERE question_id = ?
`, questionID).Scan(&state.QuestionID, &state.FeatureID, &state.Prompt, &state.PartialResponse, &state.PlanningType, &state.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return db.PlanningState{}, false, nil
	}
	if err != nil {
		return db.PlanningState{}, false, err
	}
	return state, true, nil
}

// ConsumePlanningState reads and deletes a clarification record in one
// transaction. The second return is false when the record was already consumed
// (or never existed), which callers treat as "nothing to resume".
func (s *Store) ConsumePlanningState(questionID string) (db.PlanningState, bool, error) {
	gdb, release, err := s.dbGORM()
	if err != nil {
		return db.PlanningState{}, false, err
	}
	defer func() { _ = release() }()

	var state db.PlanningState
	found := false
	err = gdb.Transaction(func(tx *gorm.DB) error {
		row := tx.Raw(`
SELECT question_id, feature_id, prompt, partial_response, planning_type, created_at
FROM planning_states WHERE question_id = ?
`, questionID).Row()
		err := row.Scan(&state.QuestionID, &state.FeatureID, &state.Prompt, &state.PartialResponse, &state.PlanningType, &state.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		res := tx.Exec(`DELETE FROM planning_states WHERE question_id = ?`, questionID)
		if res.Error != nil {
			return res.Error
		}
		found = res.RowsAffected > 0
		return nil
	})
	if err != nil || !found {
		return db.PlanningState{}, false, err
	}
	return state, true, nil
}

func (s *Store) DeletePlanningState(questionID string) error {
	h, release, err := s.db()
	if err != nil {
		return err
	}
	defer func() { _ = release() }()

	_, err = h.Exec(`DELETE FROM planning_states WHERE question_id = ?`, questionID)
	return err
}
