// Package dbmanager owns the lifecycle of one storage connection: it opens
// the store, installs the schema catalogue, runs the first-run migration and
// then the patch and migration sequence of every connection, taking backups
// before the database is changed.
package dbmanager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/folio/internal/patch"
	"github.com/mesh-intelligence/folio/internal/sqlite"
	"github.com/mesh-intelligence/folio/pkg/types"
)

// Manager connects to one database at a time. It is constructed once at
// startup and handed to every collaborator that needs the store.
type Manager struct {
	mu      sync.Mutex
	cfg     types.Config
	schemas types.SchemaMap
	patches []patch.Patch
	allowed map[Method]bool
	log     *zap.SugaredLogger
	clock   func() time.Time

	store  *sqlite.Backend
	dbPath string
	// backups lists the backup files taken by the current connection.
	backups []string
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger passed down to the store and patch runner.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(m *Manager) { m.log = log }
}

// WithPatches registers the upgrade routines run on every connection.
func WithPatches(patches ...patch.Patch) Option {
	return func(m *Manager) { m.patches = append(m.patches, patches...) }
}

// WithAllowedMethods restricts Call to the given methods.
func WithAllowedMethods(methods ...Method) Option {
	return func(m *Manager) {
		m.allowed = make(map[Method]bool, len(methods))
		for _, method := range methods {
			m.allowed[method] = true
		}
	}
}

// WithClock replaces time.Now for backup names and stored timestamps.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// New returns a Manager for cfg and the given schema catalogue. The config is
// validated after defaults are applied.
func New(cfg types.Config, schemas types.SchemaMap, opts ...Option) (*Manager, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	m := &Manager{
		cfg:     cfg,
		schemas: schemas,
		allowed: defaultAllowed(),
		log:     zap.NewNop().Sugar(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// DefaultPath returns the database file configured by DataDir and DBFile.
func (m *Manager) DefaultPath() string {
	return filepath.Join(m.cfg.DataDir, m.cfg.DBFile)
}

// CreateNewDatabase removes any database at dbPath and connects to a fresh
// one.
func (m *Manager) CreateNewDatabase(ctx context.Context, dbPath string) error {
	if dbPath != sqlite.MemoryPath {
		if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", dbPath, err)
		}
	}
	return m.ConnectToDatabase(ctx, dbPath)
}

// ConnectToDatabase opens dbPath, closing any previous connection. A database
// without patch history is migrated in full first. Then due patches and the
// schema migration run. Patch failures are logged and recorded but do not
// fail the connection.
func (m *Manager) ConnectToDatabase(ctx context.Context, dbPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.closeLocked(); err != nil {
		return err
	}

	store := sqlite.NewBackend(
		sqlite.WithLogger(m.log),
		sqlite.WithUser(m.cfg.User),
		sqlite.WithClock(m.clock),
	)
	if err := store.Attach(ctx, dbPath); err != nil {
		return fmt.Errorf("connecting to %s: %w", dbPath, err)
	}
	store.SetSchemaMap(m.schemas)
	m.store = store
	m.dbPath = dbPath
	m.backups = nil

	hasHistory, err := store.TableExists(ctx, types.SchemaPatchRun)
	if err != nil {
		return m.abort(fmt.Errorf("checking patch history: %w", err))
	}
	firstRun := !hasHistory
	if firstRun {
		m.log.Infow("initializing database", "path", dbPath)
		if err := store.Migrate(ctx, types.MigrateConfig{}); err != nil {
			return m.abort(fmt.Errorf("initial migration: %w", err))
		}
	}

	if err := m.executeMigration(ctx, firstRun); err != nil {
		return m.abort(err)
	}
	m.log.Infow("database connected", "path", dbPath, "version", m.cfg.Version)
	return nil
}

// executeMigration runs the due patches around the schema migration. The
// database is backed up once, before the first change.
func (m *Manager) executeMigration(ctx context.Context, firstRun bool) error {
	runner := patch.NewRunner(m.store, m.cfg.Version, m.log)
	due, err := runner.DuePatches(ctx, m.patches)
	if err != nil {
		return err
	}
	before, after := patch.Split(due)

	// A database that was just created has nothing worth keeping.
	backedUp := firstRun
	backup := func(ctx context.Context) error {
		if backedUp {
			return nil
		}
		backedUp = true
		return m.backup(ctx)
	}

	if len(due) > 0 {
		if err := backup(ctx); err != nil {
			return err
		}
	}
	if err := runner.RunAll(ctx, before); err != nil {
		m.log.Warnw("before-migrate patches failed", "count", len(multierr.Errors(err)))
	}
	if err := m.store.Migrate(ctx, types.MigrateConfig{Pre: backup}); err != nil {
		return fmt.Errorf("migrating: %w", err)
	}
	if err := runner.RunAll(ctx, after); err != nil {
		m.log.Warnw("after-migrate patches failed", "count", len(multierr.Errors(err)))
	}
	return nil
}

func (m *Manager) backup(ctx context.Context) error {
	if m.dbPath == sqlite.MemoryPath {
		return nil
	}
	dir := m.cfg.BackupDir
	if dir == "" {
		dir = filepath.Join(filepath.Dir(m.dbPath), "backups")
	}
	path, err := Backup(ctx, m.dbPath, dir, m.cfg.Version, m.clock())
	if err != nil {
		return err
	}
	m.backups = append(m.backups, path)
	m.log.Infow("database backed up", "path", m.dbPath, "backup", path)
	return nil
}

// abort closes the half-opened connection and returns err.
func (m *Manager) abort(err error) error {
	return multierr.Append(err, m.closeLocked())
}

// Store returns the connected store, or nil before a connection is made.
func (m *Manager) Store() *sqlite.Backend {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store
}

// Schemas returns the installed schema catalogue.
func (m *Manager) Schemas() types.SchemaMap {
	return m.schemas
}

// Config returns the configuration with defaults applied.
func (m *Manager) Config() types.Config {
	return m.cfg
}

// Backups returns the backup files taken by the current connection.
func (m *Manager) Backups() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.backups...)
}

// Close closes the current connection, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked()
}

func (m *Manager) closeLocked() error {
	if m.store == nil {
		return nil
	}
	err := m.store.Detach()
	m.store = nil
	m.dbPath = ""
	return err
}
