// Package imagecache holds resolved banner images shared between views.
//
// Entries are reference counted: every view displaying an entry holds a
// Lease on it, and the entry is removed (and its disposable handle
// disposed) when the last lease is released. Park hands a lease back
// without removing the entry. A lease remembers the
// generation of the entry it was taken on, so releasing a lease that
// outlived InvalidateAll never touches a newer entry with the same key.
package imagecache

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/alnah/go-mdbanner/internal/metrics"
)

// Kind tells how a cached resource was produced.
type Kind string

// Entry kinds.
const (
	KindVault  Kind = "vault"
	KindRemote Kind = "remote-data"
	KindInline Kind = "inline"
)

// Disposer releases the memory behind a resource URL.
type Disposer interface {
	Dispose() error
}

// Resource is a displayable image.
type Resource struct {
	URL    string
	MIME   string
	Width  int
	Height int
	Size   int
	Handle Disposer // nil when nothing needs to be released
}

// Disposable reports whether the resource owns a handle.
func (r Resource) Disposable() bool {
	return r.Handle != nil
}

// Entry is a snapshot of a cache entry.
type Entry struct {
	Key        string
	Resource   Resource
	Kind       Kind
	CreatedAt  time.Time
	Refs       int
	Generation uint64
}

type entry struct {
	Entry
	disposed bool
}

// Lease is one holder's claim on a cache entry.
type Lease struct {
	key      string
	gen      uint64
	res      Resource
	kind     Kind
	released bool
}

// Key returns the cache key the lease was taken on.
func (l *Lease) Key() string { return l.key }

// Generation returns the generation of the leased entry.
func (l *Lease) Generation() uint64 { return l.gen }

// Resource returns the leased resource.
func (l *Lease) Resource() Resource { return l.res }

// Kind returns the kind of the leased entry.
func (l *Lease) Kind() Kind { return l.kind }

// Option configures a Cache.
type Option func(*Cache)

// WithStrict makes programming errors (double release, refcount underflow,
// double dispose) panic instead of being logged.
func WithStrict(strict bool) Option {
	return func(c *Cache) { c.strict = strict }
}

// WithLogger sets the logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock sets the time source stamped on new entries.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// Cache is a reference-counted image cache. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	nextGen uint64

	strict bool
	logger *zap.Logger
	now    func() time.Time
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a snapshot of the entry for key without taking a lease.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	return e.Entry, true
}

// Put stores res under key with no references. When key is already present
// the existing entry is kept, the incoming handle is disposed, and Put
// returns false.
func (c *Cache) Put(key string, res Resource, kind Kind) bool {
	c.mu.Lock()
	if _, ok := c.entries[key]; ok {
		c.mu.Unlock()
		c.logger.Debug("cache entry already present", zap.String("key", key))
		if res.Handle != nil {
			if err := res.Handle.Dispose(); err != nil {
				c.logger.Warn("dispose duplicate resource", zap.String("key", key), zap.Error(err))
			}
		}
		return false
	}
	c.nextGen++
	c.entries[key] = &entry{Entry: Entry{
		Key:        key,
		Resource:   res,
		Kind:       kind,
		CreatedAt:  c.now(),
		Generation: c.nextGen,
	}}
	n := len(c.entries)
	c.mu.Unlock()

	metrics.SetCacheEntries(n)
	return true
}

// Acquire takes a lease on key. It reports false on a miss.
func (c *Cache) Acquire(key string) (*Lease, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		e.Refs++
	}
	c.mu.Unlock()

	metrics.ObserveCacheLookup(ok)
	if !ok {
		return nil, false
	}
	return &Lease{key: key, gen: e.Generation, res: e.Resource, kind: e.Kind}, true
}

// Release gives a lease back. The entry is removed and its handle disposed
// when the last lease is released. Releasing a lease whose entry has since
// been invalidated is a no-op.
func (c *Cache) Release(l *Lease) {
	c.giveBack(l, true)
}

// Park gives a lease back but keeps the entry stored when no lease is left,
// so a later Acquire can reuse it. A parked entry goes away on
// InvalidateAll, or when a later lease on it is released.
func (c *Cache) Park(l *Lease) {
	c.giveBack(l, false)
}

func (c *Cache) giveBack(l *Lease, evict bool) {
	if l == nil {
		c.fault("release of nil lease")
		return
	}

	c.mu.Lock()
	if l.released {
		c.mu.Unlock()
		c.fault(fmt.Sprintf("double release of %q (generation %d)", l.key, l.gen))
		return
	}
	l.released = true

	e, ok := c.entries[l.key]
	if !ok || e.Generation != l.gen {
		c.mu.Unlock()
		c.logger.Debug("release of stale lease", zap.String("key", l.key), zap.Uint64("generation", l.gen))
		return
	}
	e.Refs--
	if e.Refs < 0 {
		e.Refs = 0
		c.mu.Unlock()
		c.fault(fmt.Sprintf("refcount underflow on %q", l.key))
		return
	}
	if e.Refs > 0 || !evict {
		c.mu.Unlock()
		return
	}
	delete(c.entries, l.key)
	n := len(c.entries)
	c.mu.Unlock()

	metrics.SetCacheEntries(n)
	metrics.ObserveDisposal("release")
	if err := c.dispose(e); err != nil {
		c.logger.Warn("dispose cache entry", zap.String("key", e.Key), zap.Error(err))
	}
}

// InvalidateAll removes every entry and disposes the disposable ones.
// Outstanding leases become stale. Dispose failures are aggregated.
func (c *Cache) InvalidateAll() error {
	c.mu.Lock()
	old := c.entries
	c.entries = make(map[string]*entry)
	c.mu.Unlock()

	metrics.SetCacheEntries(0)

	var err error
	for _, e := range old {
		metrics.ObserveDisposal("invalidate")
		err = multierr.Append(err, c.dispose(e))
	}
	if err != nil {
		c.logger.Warn("invalidate cache", zap.Int("entries", len(old)), zap.Error(err))
	}
	return err
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Refs returns the reference count of key, or 0 when absent.
func (c *Cache) Refs(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.Refs
	}
	return 0
}

// dispose releases e's handle exactly once. The entry has already been
// unlinked from the map, so only the caller can reach it.
func (c *Cache) dispose(e *entry) error {
	if e.Resource.Handle == nil {
		return nil
	}
	if e.disposed {
		c.fault(fmt.Sprintf("double dispose of %q", e.Key))
		return nil
	}
	e.disposed = true
	if err := e.Resource.Handle.Dispose(); err != nil {
		return fmt.Errorf("dispose %q: %w", e.Key, err)
	}
	return nil
}

func (c *Cache) fault(msg string) {
	if c.strict {
		panic("imagecache: " + msg)
	}
	c.logger.Error("image cache misuse", zap.String("detail", msg))
}
