package document

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/folio/internal/convert"
	"github.com/mesh-intelligence/folio/pkg/types"
)

// Cache creates documents and keeps the live ones keyed by schema and name,
// so every load of a record through the same Cache returns the same Doc.
// Unsaved documents are kept under a temporary name until they are
// inserted.
type Cache struct {
	mu        sync.Mutex
	docs      map[string]map[string]*Doc
	behaviors map[string]*Behavior

	store   types.Store
	schemas types.SchemaMap
	conv    *convert.Converter
	events  emitter

	log   *zap.SugaredLogger
	user  string
	clock func() time.Time
	dev   bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger for document events.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Cache) { c.log = log }
}

// WithUser sets the user stamped into createdBy and modifiedBy.
func WithUser(user string) Option {
	return func(c *Cache) { c.user = user }
}

// WithClock replaces time.Now for created and modified timestamps.
func WithClock(clock func() time.Time) Option {
	return func(c *Cache) { c.clock = clock }
}

// WithDev attaches stack traces to the structured errors documents return.
func WithDev(dev bool) Option {
	return func(c *Cache) { c.dev = dev }
}

// WithBehavior registers the behavior of a schema.
func WithBehavior(schemaName string, b *Behavior) Option {
	return func(c *Cache) { c.behaviors[schemaName] = b }
}

// NewCache returns a Cache over store, using the store's schema map.
func NewCache(store types.Store, opts ...Option) *Cache {
	c := &Cache{
		docs:      make(map[string]map[string]*Doc),
		behaviors: make(map[string]*Behavior),
		store:     store,
		schemas:   store.SchemaMap(),
		log:       zap.NewNop().Sugar(),
		user:      types.DefaultUser,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.conv = convert.New(c.schemas)
	return c
}

// Register sets the behavior of a schema. Documents created afterwards use
// it.
func (c *Cache) Register(schemaName string, b *Behavior) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.behaviors[schemaName] = b
}

func (c *Cache) behavior(schemaName string) *Behavior {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.behaviors[schemaName]
}

// Store returns the underlying store.
func (c *Cache) Store() types.Store { return c.store }

// Schemas returns the schema map documents are built from.
func (c *Cache) Schemas() types.SchemaMap { return c.schemas }

// On registers h for events of every document of the cache.
func (c *Cache) On(name EventName, h Handler) {
	c.events.on(name, h)
}

// New creates an unsaved document of schemaName with defaults applied, then
// sets values in key order.
func (c *Cache) New(schemaName string, values types.Record) (*Doc, error) {
	s, err := c.schemas.Get(schemaName)
	if err != nil {
		return nil, err
	}
	if s.IsChild {
		return nil, types.NewValueError("%s rows are created through their parent", schemaName)
	}
	d := c.newDoc(s)
	c.add(d)

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if err := d.Set(k, values[k]); err != nil {
			c.evict(d)
			return nil, err
		}
	}
	return d, nil
}

// Get returns the live document for the record, loading it from the store
// on first use. Single schemas are loaded by schema name whatever name is
// passed.
func (c *Cache) Get(ctx context.Context, schemaName, name string) (*Doc, error) {
	s, err := c.schemas.Get(schemaName)
	if err != nil {
		return nil, err
	}
	if s.IsChild {
		return nil, types.NewValueError("%s rows are loaded with their parent", schemaName)
	}
	if s.IsSingle {
		name = s.Name
	}
	if name == "" {
		return nil, types.NewValueError("name is required to load a %s", schemaName)
	}
	if d := c.Peek(schemaName, name); d != nil {
		return d, nil
	}

	d := c.newDoc(s)
	if err := d.load(ctx, name); err != nil {
		return nil, c.surface(err)
	}
	c.add(d)
	return d, nil
}

// Peek returns the cached document without loading it, or nil.
func (c *Cache) Peek(schemaName, key string) *Doc {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.docs[schemaName][key]
}

// Evict drops a document from the cache. Later Gets load a fresh copy.
func (c *Cache) Evict(schemaName, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.docs[schemaName], key)
}

// Len returns the number of cached documents.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.docs {
		n += len(m)
	}
	return n
}

func (c *Cache) add(d *Doc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.docs[d.schema.Name]
	if !ok {
		m = make(map[string]*Doc)
		c.docs[d.schema.Name] = m
	}
	m[d.key()] = d
}

func (c *Cache) rekey(d *Doc, oldKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.docs[d.schema.Name]
	if m == nil {
		return
	}
	if m[oldKey] == d {
		delete(m, oldKey)
	}
	m[d.key()] = d
}

func (c *Cache) evict(d *Doc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.docs[d.schema.Name]
	if m[d.key()] == d {
		delete(m, d.key())
	}
}

// now returns the current time at the precision timestamps are stored with.
func (c *Cache) now() time.Time {
	return c.clock().UTC().Truncate(time.Millisecond)
}
