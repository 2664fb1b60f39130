// Package postgres is the PostgreSQL record store: connection pooling,
// schema migrations and a simulant store over the simulants and
// composition_components tables.
package postgres

import (
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // postgres:// driver
	_ "github.com/golang-migrate/migrate/v4/source/file"       // file:// source
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/migrations"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Migrator construction
// ─────────────────────────────────────────────────────────────────────────────

// newMigrate opens a migrator over migrationsPath ("file://dir"), or over the
// embedded migrations when the path is empty.
func newMigrate(dbURL, migrationsPath string) (*migrate.Migrate, error) {
	if migrationsPath != "" {
		m, err := migrate.New(migrationsPath, dbURL)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "create migrate instance").WithDetail(migrationsPath)
		}
		return m, nil
	}
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "open embedded migrations")
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "create migrate instance")
	}
	return m, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// RunMigrations applies all pending migrations.
// ─────────────────────────────────────────────────────────────────────────────

// RunMigrations applies every pending migration.  No pending migrations is
// not an error.
func RunMigrations(dbURL, migrationsPath string, log logging.Logger) error {
	m, err := newMigrate(dbURL, migrationsPath)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		version, _, _ := m.Version()
		return errors.Wrap(err, errors.ErrCodeDatabaseError, fmt.Sprintf("run migrations (current version: %d)", version))
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		if log != nil {
			log.Warn("Failed to get migration version", logging.Err(err))
		}
		return nil
	}
	if log != nil {
		log.Info("Database migrations completed",
			logging.Int64("version", int64(version)),
			logging.Bool("dirty", dirty),
		)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// RollbackMigration rolls back the given number of steps.
// ─────────────────────────────────────────────────────────────────────────────

// RollbackMigration reverts steps migrations.
func RollbackMigration(dbURL, migrationsPath string, steps int) error {
	if steps <= 0 {
		return errors.InvalidParam(fmt.Sprintf("steps must be greater than 0, got %d", steps))
	}
	m, err := newMigrate(dbURL, migrationsPath)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Steps(-steps); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return errors.New(errors.ErrCodeConflict, "no migrations to roll back")
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, fmt.Sprintf("rollback %d step(s)", steps))
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// MigrationStatus reports the current migration version.
// ─────────────────────────────────────────────────────────────────────────────

// MigrationStatus returns the applied version (0 when none) and whether a
// previous migration left the schema dirty.
func MigrationStatus(dbURL, migrationsPath string) (version uint, dirty bool, err error) {
	m, err := newMigrate(dbURL, migrationsPath)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	version, dirty, err = m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, errors.Wrap(err, errors.ErrCodeDatabaseError, "get migration version")
	}
	return version, dirty, nil
}
