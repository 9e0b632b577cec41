package featurestate

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"planloom/internal/db"
)

// AppendHistory records one audit entry. History is append-only; there is no
// update or delete path.
func (s *Store) AppendHistory(entry db.HistoryEntry) error {
	h, release, err := s.db()
	if err != nil {
		return err
	}
	defer func() { _ = release() }()

	if strings.TrimSpace(entry.FeatureID) == "" {
		return errors.New("feature id is required")
	}
	switch entry.Role {
	case db.HistoryRoleUser, db.HistoryRoleModel, db.HistoryRoleToolCall, db.HistoryRoleToolResponse:
	default:
		return errors.New("invalid history role: " + entry.Role)
	}
	ts := entry.Timestamp
	if ts == 0 {
		ts = time.Now().UTC().Unix()
	}
	_, err = h.Exec(`
INSERT INTO history_entries(feature_id, ts, role, content, task_id, action, details)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, entry.FeatureID, ts, entry.Role, entry.Content, entry.TaskID, entry.Action, entry.Details)
	return err
}

func (s *Store) AppendHistoryJSON(featureID, role string, content any) error {
	raw, err := json.Marshal(content)
	if err != nil {
		return err
	}
	return s.AppendHistory(db.HistoryEntry{
		FeatureID: featureID,
		Role:      role,
		Content:   string(raw),
	})
}

func (s *Store) ListHistory(featureID string, limit int) ([]db.HistoryEntry, error) {
	h, release, err := s.db()
	if err != nil {
		return nil, err
	}
	defer func() { _ = release() }()

	if limit <= 0 {
		limit = 100
	}
	rows, err := h.Query(`
SELECT id, feature_id, ts, role, content, task_id, action, details
FROM history_entries WHERE feature_id = ? ORDER BY ts ASC, id ASC LIMIT ?
`, featureID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	entries := make([]db.HistoryEntry, 0, limit)
	for rows.Next() {
		var e db.HistoryEntry
		if err := rows.Scan(&e.ID, &e.FeatureID, &e.Timestamp, &e.Role, &e.Content, &e.TaskID, &e.Action, &e.Details); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
