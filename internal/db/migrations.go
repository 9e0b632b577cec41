package db

import (
	"errors"

	"planloom/internal/db/migration"

	"gorm.io/gorm"
)

// SyncSchema creates tables and indexes. Tables are declared with raw DDL so
// the status/effort/role domains are CHECK-enforced at the storage layer;
// AutoMigrate cannot express those constraints on sqlite.
func SyncSchema(db *gorm.DB) error {
	if db == nil {
		return errors.New("db is required")
	}
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS tasks (
	task_id TEXT PRIMARY KEY,
	feature_id TEXT NOT NULL,
	parent_task_id TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','in_progress','completed','decomposed')),
	completed BOOLEAN NOT NULL DEFAULT 0,
	effort TEXT NOT NULL DEFAULT '' CHECK (effort IN ('','low','medium','high')),
	from_review BOOLEAN NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL DEFAULT 0
);`,
		`CREATE TABLE IF NOT EXISTS planning_states (
	question_id TEXT PRIMARY KEY,
	feature_id TEXT NOT NULL,
	prompt TEXT NOT NULL DEFAULT '',
	partial_response TEXT NOT NULL DEFAULT '',
	planning_type TEXT NOT NULL DEFAULT 'feature_planning' CHECK (planning_type IN ('feature_planning','plan_adjustment')),
	created_at INTEGER NOT NULL DEFAULT 0
);`,
		`CREATE TABLE IF NOT EXISTS history_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	feature_id TEXT NOT NULL,
	ts INTEGER NOT NULL DEFAULT 0,
	role TEXT NOT NULL CHECK (role IN ('user','model','tool_call','tool_response')),
	content TEXT NOT NULL DEFAULT '',
	task_id TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL DEFAULT '',
	details TEXT NOT NULL DEFAULT ''
);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_feature_id ON tasks(feature_id);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_parent_task_id ON tasks(parent_task_id);`,
		`CREATE INDEX IF NOT EXISTS idx_planning_states_feature_id ON planning_states(feature_id);`,
		`CREATE INDEX IF NOT EXISTS idx_history_feature_ts ON history_entries(feature_id, ts);`,
	} {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// MigrateUp syncs schema then runs data migrations.
func MigrateUp(db *gorm.DB) error {
	if err := SyncSchema(db); err != nil {
		return err
	}
	migration.Init()
	return migration.RunAll(db)
}
