// Package database provides database migration tooling.
package database

import (
	"embed"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // pgx5 database driver
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationsFromSource returns a migration source driver from the embedded migrations.
func migrationsFromSource() source.Driver {
	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		panic(err)
	}
	return d
}

// Migrator is the interface for the migration tooling.
type Migrator interface {
	Up() error
	Down() error
	Steps(int) error
	Version() (uint, bool, error)
	Close() (error, error)
}

// NewFromConnectionString returns a new migration instance from the given
// connection string. Postgres URLs are rewritten to the pgx5 driver scheme.
func NewFromConnectionString(connString string) (Migrator, error) {
	d := migrationsFromSource()

	switch {
	case strings.HasPrefix(connString, "postgres://"):
		connString = "pgx5://" + strings.TrimPrefix(connString, "postgres://")
	case strings.HasPrefix(connString, "postgresql://"):
		connString = "pgx5://" + strings.TrimPrefix(connString, "postgresql://")
	case strings.HasPrefix(connString, "pgx5://"):
	default:
		return nil, fmt.Errorf("unsupported connection string scheme: %s", connString)
	}

	return migrate.NewWithSourceInstance("iofs", d, connString)
}
