package database

import (
	"context"
	"fmt"

	"github.com/stocksense/stocksense/internal/config"
)

// NewInMemory creates a migrated in-memory SQLite database. Tests and the
// -report dry runs use it; nothing is written to disk.
func NewInMemory(ctx context.Context) (*DB, error) {
	db, err := Open(":memory:", &config.DatabaseConfig{}, "")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}

	if _, err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating in-memory database: %w", err)
	}

	return db, nil
}
