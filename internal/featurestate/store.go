package featurestate

import (
	"database/sql"
	"errors"
	"sync"

	"planloom/internal/db"

	"gorm.io/gorm"
)

var (
	globalDBMu   sync.Mutex
	globalDB     *sql.DB
	globalDBGORM *gorm.DB
	globalDBPath string
)

// Store reads and writes the durable planning state for features. All access
// goes through the process-wide sqlite handle; each logical operation acquires
// and releases it independently.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// InitGlobalDB sets the process-wide sqlite file used by feature state storage.
func InitGlobalDB(dbPath string) error {
	return InitGlobalDBWithDSN(dbPath)
}

// InitGlobalDBWithDSN sets the process-wide sqlite dsn used by feature state storage.
func InitGlobalDBWithDSN(dsn string) error {
	globalDBMu.Lock()
	defer globalDBMu.Unlock()

	if dsn == "" {
		return errors.New("db path is required")
	}
	if globalDBGORM != nil && globalDBPath == dsn {
		return nil
	}
	if globalDB != nil {
		_ = globalDB.Close()
		globalDB = nil
	}
	globalDBGORM = nil

	gdb, err := db.OpenSQLiteGORMWithMigrationsFromDSN(dsn)
	if err != nil {
		return err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}

	globalDBGORM = gdb
	globalDB = sqlDB
	globalDBPath = dsn
	return nil
}

func (s *Store) db() (*sql.DB, func() error, error) {
	globalDBMu.Lock()
	h := globalDB
	globalDBMu.Unlock()
	if h == nil {
		return nil, nil, errors.New("global DB not initialized: call InitGlobalDB first")
	}
	return h, func() error { return nil }, nil
}

func (s *Store) dbGORM() (*gorm.DB, func() error, error) {
	globalDBMu.Lock()
	gdb := globalDBGORM
	globalDBMu.Unlock()
	if gdb == nil {
		return nil, nil, errors.New("global DB not initialized: call InitGlobalDB first")
	}
	return gdb, func() error { return nil }, nil
}
