package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// SchemaVersion is the newest migration embedded in the binary.
const SchemaVersion uint = 2

//go:embed migrations/*.sql
var migrationFS embed.FS

// withMigrator opens a migrator over the embedded migrations, runs fn and
// releases both the source and the database connection.
func withMigrator(databaseURL string, fn func(*migrate.Migrate) error) error {
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return fmt.Errorf("connect migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()
	return fn(m)
}

// RunMigrations brings the schema up to SchemaVersion.
func RunMigrations(databaseURL string) error {
	return withMigrator(databaseURL, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("apply migrations: %w", err)
		}
		return nil
	})
}

// GetMigrationVersion reports the applied version and whether the last
// migration left the schema dirty. An empty database reports version 0.
func GetMigrationVersion(databaseURL string) (version uint, dirty bool, err error) {
	err = withMigrator(databaseURL, func(m *migrate.Migrate) error {
		v, d, verr := m.Version()
		switch {
		case errors.Is(verr, migrate.ErrNilVersion):
			return nil
		case verr != nil:
			return fmt.Errorf("read migration version: %w", verr)
		}
		version, dirty = v, d
		return nil
	})
	return version, dirty, err
}
