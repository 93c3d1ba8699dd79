package sqlite

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var schemaFS embed.FS

// applySchema brings the blobs, tags, and commits tables up to the
// current version. Runs on every Open; versions already applied are
// skipped, so an existing store only pays a version-table lookup.
func applySchema(writer *sql.DB) error {
	source, err := iofs.New(schemaFS, "migrations")
	if err != nil {
		return fmt.Errorf("load schema migrations: %w", err)
	}

	target, err := migratesqlite.WithInstance(writer, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("prepare schema target: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", target)
	if err != nil {
		return fmt.Errorf("build schema migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
