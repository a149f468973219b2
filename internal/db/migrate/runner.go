// Package migrate walks the embedded schema migrations.
package migrate

import (
	"errors"
	"fmt"

	"nestcare/backend/internal/db"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Direction selects which way Run walks the migration history.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// ErrNoChange reports that the schema was already at the requested version.
var ErrNoChange = migrate.ErrNoChange

// Run walks the embedded migrations against dsn. Callers decide what to do
// with ErrNoChange; every other error is a real failure.
func Run(dsn string, dir Direction) error {
	if dsn == "" {
		return errors.New("no database dsn configured")
	}
	if dir != Up && dir != Down {
		return fmt.Errorf("unknown migration direction %q", dir)
	}

	src, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("read embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("open migration target: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if dir == Up {
		return m.Up()
	}
	return m.Down()
}
