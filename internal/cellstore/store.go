// Package cellstore persists grid cells. The rest of the system only sees the
// Store interface; one concrete adapter is picked from the DSN at startup.
package cellstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/zeebo/errs"

	"github.com/dyluth/songgrid/pkg/grid"
)

// Error is the error class for cell store failures.
var Error = errs.Class("cellstore")

// Store is durable access to cell rows keyed by coordinate.
// Implementations must be safe for concurrent use and must only ever bind
// values as query parameters.
type Store interface {
	// Get returns the cell at c. ok is false when no row exists.
	Get(ctx context.Context, c grid.Coord) (cell grid.Cell, ok bool, err error)

	// All returns every stored row in row-major order.
	All(ctx context.Context) ([]grid.Cell, error)

	// Upsert writes link, username and timestamp for cell.Coord and returns
	// the number of rows affected.
	Upsert(ctx context.Context, cell grid.Cell) (int64, error)

	// Ping verifies connectivity. Used by the health check.
	Ping(ctx context.Context) error

	Close() error
}

// Migrator is implemented by stores that need schema setup before use.
type Migrator interface {
	// Migrate creates the schema if needed and pre-materializes every
	// coordinate of extent so upserts always hit an existing row.
	Migrate(ctx context.Context, extent grid.Extent) error
}

// Open builds a store from dsn.
//
// Supported schemes:
//   - postgres://, postgresql:// : PostgreSQL via lib/pq
//   - memory://, mem://          : process-local map, for development and tests
func Open(dsn string, opts Options) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("database url cannot be empty")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		pg, err := OpenPostgres(dsn, opts)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case "memory", "mem":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported database url scheme %q (use postgres:// or memory://)", parsed.Scheme)
	}
}

// wrapUnavailable classifies an I/O failure from the backing database.
func wrapUnavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return Error.Wrap(fmt.Errorf("%w: %s: %v", grid.ErrStoreUnavailable, op, err))
}
