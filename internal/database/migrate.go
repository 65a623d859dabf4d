package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MigrateCommand is one of up, down or version.
type MigrateCommand string

const (
	MigrateUp      MigrateCommand = "up"
	MigrateDown    MigrateCommand = "down"
	MigrateVersion MigrateCommand = "version"
)

// Migrate applies the embedded schema migrations. Steps > 0 limits up/down
// to that many migrations. The returned string describes the outcome.
// The migrator takes ownership of db and closes it.
func Migrate(db *sql.DB, command MigrateCommand, steps int) (string, error) {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return "", fmt.Errorf("opening migrations: %w", err)
	}

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return "", fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return "", fmt.Errorf("initializing migrate: %w", err)
	}
	defer m.Close()

	switch command {
	case MigrateUp:
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case MigrateDown:
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	case MigrateVersion:
		version, dirty, verErr := m.Version()
		if errors.Is(verErr, migrate.ErrNilVersion) {
			return "no migrations applied", nil
		}

		if verErr != nil {
			return "", fmt.Errorf("reading version: %w", verErr)
		}

		return fmt.Sprintf("version %d (dirty: %v)", version, dirty), nil
	default:
		return "", fmt.Errorf("unknown migrate command %q", command)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		return "no change", nil
	}

	if err != nil {
		return "", fmt.Errorf("migrating %s: %w", command, err)
	}

	return "migrated " + string(command), nil
}
