package db

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:db_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := OpenSQLiteGORMWithMigrationsFromDSN(dsn)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	return gdb
}

func TestSyncSchema_CreatesTables(t *testing.T) {
	gdb := openTestDB(t)
	for _, table := range []string{"tasks", "planning_states", "history_entries"} {
		var count int64
		err := gdb.Raw(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count).Error
		if err != nil {
			t.Fatalf("sqlite_master query failed: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected table %s to exist", table)
		}
	}
}

func TestSchema_RejectsInvalidStatusAndEffort(t *testing.T) {
	gdb := openTestDB(t)

	err := gdb.Exec(`INSERT INTO tasks(task_id, feature_id, status) VALUES ('t1','f1','exploded')`).Error
	if err == nil {
		t.Fatal("expected invalid status to violate CHECK constraint")
	}

	err = gdb.Exec(`INSERT INTO tasks(task_id, feature_id, effort) VALUES ('t2','f1','enormous')`).Error
	if err == nil {
		t.Fatal("expected invalid effort to violate CHECK constraint")
	}

	err = gdb.Exec(`INSERT INTO tasks(task_id, feature_id, status, effort) VALUES ('t3','f1','pending','high')`).Error
	if err != nil {
		t.Fatalf("valid row rejected: %v", err)
	}
}

func TestSchema_RejectsInvalidHistoryRole(t *testing.T) {
	gdb := openTestDB(t)
	err := gdb.Exec(`INSERT INTO history_entries(feature_id, ts, role) VALUES ('f1', 1, 'narrator')`).Error
	if err == nil {
		t.Fatal("expected invalid role to violate CHECK constraint")
	}
}

func TestMigration_BackfillsCompletedProjection(t *testing.T) {
	gdb := openTestDB(t)
	if err := gdb.Exec(`INSERT INTO tasks(task_id, feature_id, status, completed) VALUES ('t1','f1','completed',0)`).Error; err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := MigrateUp(gdb); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	var completed bool
	if err := gdb.Raw(`SELECT completed FROM tasks WHERE task_id='t1'`).Scan(&completed).Error; err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if !completed {
		t.Fatal("expected completed projection to be backfilled from status")
	}
}
