package database

import (
	"context"

	"github.com/haleyrc/workdriver/internal/config"
)

// DB is the storage interface backing the seen/throttle state store.
// The only implementation is SQLite; the interface keeps the store
// testable without a real file.
type DB interface {
	// Select executes a query and scans rows into dest (slice pointer).
	Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error

	// Upsert inserts or updates based on conflictCols (ON CONFLICT clause).
	Upsert(ctx context.Context, table string, record interface{}, conflictCols []string) error

	// Migrate applies pending schema migrations in order.
	Migrate(ctx context.Context) error

	// Ping verifies the database connection is alive.
	Ping(ctx context.Context) error

	// Close releases the database connection.
	Close() error
}

// New opens the SQLite database described by cfg.
func New(cfg config.StateConfig) (DB, error) {
	return NewSQLite(cfg)
}
