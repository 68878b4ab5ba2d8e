package sqldb

import (
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

// Migrate runs all pending migrations for the active driver.
// SQL files are embedded per driver: the dialects differ on identity columns.
func (s *Store) Migrate() error {
	source, err := iofs.New(migrationFS, "migrations/"+s.driver)
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	var m *migrate.Migrate
	switch s.driver {
	case driverPostgres:
		driver, derr := migratepg.WithInstance(s.db, &migratepg.Config{})
		if derr != nil {
			return fmt.Errorf("failed to create migration driver: %w", derr)
		}
		m, err = migrate.NewWithInstance("iofs", source, "postgres", driver)
	default:
		driver, derr := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
		if derr != nil {
			return fmt.Errorf("failed to create migration driver: %w", derr)
		}
		m, err = migrate.NewWithInstance("iofs", source, "sqlite", driver)
	}
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
