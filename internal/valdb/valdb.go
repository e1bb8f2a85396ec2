// Package valdb persists validation test runs in SQLite. The schema is
// owned by the embedded migrations; Open never creates tables itself.
//
// Save and Load walk the test-run tree at a caller-chosen load level, so
// a listing query does not drag every test step and event across the
// wire. Locked runs reject writes, deleted runs are soft-deleted and
// stay out of queries until cleaned up.
package valdb

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a test run id does not exist or is deleted.
var ErrNotFound = errors.New("valdb: test run not found")

// ErrLocked is returned when saving into a locked test run.
var ErrLocked = errors.New("valdb: test run is locked")

// DB wraps the SQL handle of one validation results database.
type DB struct {
	*sql.DB
	path string
}

// Open opens (or creates) the database file and applies the connection
// pragmas. The schema is not touched; run MigrateUp for that.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Pragmas are per connection; a single pooled connection keeps them
	// in force and serializes writers.
	db.SetMaxOpenConns(1)

	// WAL keeps readers unblocked during batch saves. Foreign keys must
	// be on for the ON DELETE CASCADE chains to fire.
	_, err = db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
		PRAGMA synchronous = NORMAL;
		PRAGMA temp_store = MEMORY;
		PRAGMA foreign_keys = ON;
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	return &DB{DB: db, path: path}, nil
}

// OpenAndMigrate opens the database and brings the schema up to date.
func OpenAndMigrate(path string) (*DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the file path the database was opened with.
func (db *DB) Path() string { return db.path }
