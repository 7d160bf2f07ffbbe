package storage

import (
	"context"
	"fmt"
)

// Options selects and locates a Medium.
type Options struct {
	Driver string
	// Path is the SQLite database file.
	Path string
	// DSN is the PostgreSQL connection string.
	DSN string
}

// Open returns the Medium for opts.Driver, applying migrations first for the
// SQL drivers.
func Open(ctx context.Context, opts Options) (Medium, error) {
	switch opts.Driver {
	case DriverSQLite, "":
		return OpenSQLite(ctx, opts.Path)
	case DriverPostgres:
		if err := RunMigrations(DriverPostgres, opts.DSN); err != nil {
			return nil, err
		}
		return OpenPostgres(ctx, opts.DSN)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
