package valdb

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/openadas/stk/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrateUp applies all pending migrations. Returns nil when the schema
// is already at the latest version.
func (db *DB) MigrateUp() error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func (db *DB) MigrateDown() error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the current schema version and dirty state.
// A database without applied migrations reports version 0.
func (db *DB) MigrateVersion() (version uint, dirty bool, err error) {
	m, err := db.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// MigrateForce overwrites the recorded schema version without running
// migrations. Recovery tool for a dirty state only.
func (db *DB) MigrateForce(version int) error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Force(version); err != nil {
		return fmt.Errorf("force migration to version %d failed: %w", version, err)
	}
	return nil
}

// MigrateTo migrates up or down to a specific version.
func (db *DB) MigrateTo(version uint) error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration to version %d failed: %w", version, err)
	}
	return nil
}

// MigrationStatus summarizes where the schema stands relative to the
// embedded migrations.
type MigrationStatus struct {
	Version uint
	Dirty   bool
	Latest  uint
	// Applied reports whether the schema_migrations table exists at all.
	Applied bool
}

// Status collects the migration status of the open database.
func (db *DB) Status() (MigrationStatus, error) {
	version, dirty, err := db.MigrateVersion()
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("failed to get migration version: %w", err)
	}

	latest, err := LatestMigrationVersion()
	if err != nil {
		return MigrationStatus{}, err
	}

	var applied bool
	err = db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='schema_migrations'
	`).Scan(&applied)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return MigrationStatus{}, fmt.Errorf("failed to check schema_migrations table: %w", err)
	}

	return MigrationStatus{Version: version, Dirty: dirty, Latest: latest, Applied: applied}, nil
}

// LatestMigrationVersion returns the highest version among the embedded
// migration files.
func LatestMigrationVersion() (uint, error) {
	entries, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	if err != nil {
		return 0, fmt.Errorf("failed to list embedded migrations: %w", err)
	}
	var max uint
	for _, entry := range entries {
		var version uint
		// Migration files follow the format 0001_name.up.sql.
		name := strings.TrimPrefix(entry, "migrations/")
		if _, err := fmt.Sscanf(name, "%d_", &version); err == nil && version > max {
			max = version
		}
	}
	if max == 0 {
		return 0, fmt.Errorf("no embedded migration files found")
	}
	return max, nil
}

// newMigrate builds a migrate instance over the embedded migrations.
// The instance is never closed: closing it would close the shared DB
// handle, so it is left to the garbage collector.
func (db *DB) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}

	return m, nil
}

// migrateLogger routes golang-migrate output through the toolkit logger.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}
