// Package sqlite implements the schema-driven storage engine on SQLite.
//
// One table is kept per non-single schema with the primary key on name.
// Child schemas get parent, parentSchemaName, parentFieldname and idx
// columns. Every single schema stores its fields as rows of the shared
// SingleValue table. The Backend satisfies types.Store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

var _ types.Store = (*Backend)(nil)

// Backend implements types.Store on a single SQLite connection. The engine
// assumes one writer; mu serializes access from the process.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	path     string
	db       *sql.DB
	schemas  types.SchemaMap

	log   *zap.SugaredLogger
	user  string
	clock func() time.Time
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger used for migration and connection events.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(b *Backend) { b.log = log }
}

// WithUser sets the user stamped on single values.
func WithUser(user string) Option {
	return func(b *Backend) { b.user = user }
}

// WithClock replaces time.Now for timestamps written by the engine.
func WithClock(clock func() time.Time) Option {
	return func(b *Backend) { b.clock = clock }
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach to open a database.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		schemas: types.SchemaMap{},
		log:     zap.NewNop().Sugar(),
		user:    types.DefaultUser,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach opens the database at dbPath, creating parent directories as
// needed. Foreign key enforcement is switched on for the connection.
// Returns ErrAlreadyConnected if already attached.
func (b *Backend) Attach(ctx context.Context, dbPath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyConnected
	}

	if dbPath != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return fmt.Errorf("creating data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("open %s: %w", dbPath, err)
	}
	// PRAGMA state is per connection; keep exactly one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("open %s: %w", dbPath, err)
	}

	b.db = db
	b.path = dbPath
	b.attached = true
	b.log.Infow("database attached", "path", dbPath)
	return nil
}

// Detach closes the connection. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	b.attached = false
	if err != nil {
		return fmt.Errorf("close %s: %w", b.path, err)
	}
	b.log.Infow("database detached", "path", b.path)
	return nil
}

// Path returns the path passed to Attach.
func (b *Backend) Path() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.path
}

// SetSchemaMap installs the live schema catalogue.
func (b *Backend) SetSchemaMap(schemas types.SchemaMap) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.schemas = schemas
}

// SchemaMap returns the installed catalogue. Callers must not modify it.
func (b *Backend) SchemaMap() types.SchemaMap {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.schemas
}

// TableExists reports whether a table named name exists in the database.
func (b *Backend) TableExists(ctx context.Context, name string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return false, types.ErrNotConnected
	}
	return tableExists(ctx, b.db, name)
}

// schema returns the named schema; the caller holds mu.
func (b *Backend) schema(name string) (*types.Schema, error) {
	if !b.attached {
		return nil, types.ErrNotConnected
	}
	return b.schemas.Get(name)
}

func (b *Backend) now() string {
	return b.clock().UTC().Format(datetimeLayout)
}

// withTx runs fn in a transaction, rolling back on error.
func (b *Backend) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// generateName generates a new UUID v7 for records inserted without a name.
func generateName() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to UUID v4 if v7 generation fails
		return uuid.New().String()
	}
	return id.String()
}
