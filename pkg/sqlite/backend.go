// Package sqlite exposes the SQLite storage engine to programs that embed
// folio without the connection manager.
//
// Example:
//
//	schemas, err := catalogue.Load("schemas")
//	store, err := sqlite.Open(ctx, "books.db", schemas)
//	defer store.Close()
package sqlite

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/folio/internal/sqlite"
	"github.com/mesh-intelligence/folio/pkg/types"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = sqlite.MemoryPath

// Store is a types.Store backed by one SQLite database.
type Store interface {
	types.Store
	// Path returns the database path the store was opened with.
	Path() string
	Close() error
}

type store struct {
	*sqlite.Backend
}

func (s store) Close() error { return s.Detach() }

// Open attaches the database at dbPath, installs schemas and migrates the
// tables to them. Patches are not run; use the connection manager for that.
func Open(ctx context.Context, dbPath string, schemas types.SchemaMap) (Store, error) {
	b := sqlite.NewBackend()
	if err := b.Attach(ctx, dbPath); err != nil {
		return nil, err
	}
	b.SetSchemaMap(schemas)
	if err := b.Migrate(ctx, types.MigrateConfig{}); err != nil {
		_ = b.Detach()
		return nil, fmt.Errorf("migrate %s: %w", dbPath, err)
	}
	return store{b}, nil
}
