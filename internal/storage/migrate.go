package storage

import (
	"database/sql"
	"embed"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"budget-reconciliation-service/pkg/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// runMigrations applies all pending schema migrations to the database.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return errors.StorageError(errors.CodeMigrationFailed, "creating migration driver", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return errors.StorageError(errors.CodeMigrationFailed, "loading embedded migrations", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return errors.StorageError(errors.CodeMigrationFailed, "creating migrator", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return errors.StorageError(errors.CodeMigrationFailed, "applying migrations", err)
	}
	return nil
}
