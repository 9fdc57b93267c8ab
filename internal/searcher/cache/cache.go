// Package cache provides the bounded get-or-load caches the collection
// keeps in front of the index store.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/metrics"
)

// Loader fetches the value for key on a miss. An error, not-found
// included, is handed to the caller and nothing is cached.
type Loader[K comparable, V any] func(ctx context.Context, key K) (V, error)

// entries is the subset shared by lru.Cache and expirable.LRU.
type entries[K comparable, V any] interface {
	Get(key K) (V, bool)
	Peek(key K) (V, bool)
	Add(key K, value V) bool
	Remove(key K) bool
	Purge()
	Len() int
}

type Option func(*options)

type options struct {
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Stats is a snapshot of a cache's counters.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Loads  int64 `json:"loads"`
	Size   int   `json:"size"`
}

// Cache maps keys to loaded values. Concurrent misses on one key share a
// single loader call. Values are shared between callers and must not be
// modified.
type Cache[K comparable, V any] struct {
	name         string
	entries      entries[K, V]
	refreshOnHit bool
	load         Loader[K, V]

	// mu orders inserts against invalidation: loads capture gen before
	// calling the loader and only insert if no invalidation happened since.
	// InvalidateAll swaps group so later misses do not join stale loads.
	mu    sync.RWMutex
	gen   uint64
	group *singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
	loads  atomic.Int64

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewLRU returns a cache holding at most size entries, evicting the least
// recently used.
func NewLRU[K comparable, V any](name string, size int, load Loader[K, V], opts ...Option) (*Cache[K, V], error) {
	l, err := lru.New[K, V](size)
	if err != nil {
		return nil, fmt.Errorf("creating %s cache: %w", name, err)
	}
	return newCache(name, l, false, load, opts), nil
}

// NewIdle returns a cache whose entries expire after idle without being
// read. Every hit restarts the entry's idle period. A size of zero leaves
// the cache unbounded.
func NewIdle[K comparable, V any](name string, size int, idle time.Duration, load Loader[K, V], opts ...Option) *Cache[K, V] {
	l := expirable.NewLRU[K, V](size, nil, idle)
	return newCache(name, l, true, load, opts)
}

func newCache[K comparable, V any](name string, e entries[K, V], refresh bool, load Loader[K, V], opts []Option) *Cache[K, V] {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[K, V]{
		name:         name,
		entries:      e,
		refreshOnHit: refresh,
		load:         load,
		group:        &singleflight.Group{},
		metrics:      o.metrics,
		logger:       o.logger.With("component", "cache", "cache", name),
	}
}

// Get returns the cached value for key, loading it on a miss.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, error) {
	if v, ok := c.lookup(key); ok {
		c.hits.Add(1)
		c.metrics.CacheHit(c.name)
		return v, nil
	}
	c.misses.Add(1)
	c.metrics.CacheMiss(c.name)
	return c.fill(ctx, key)
}

// fill loads key through the single-flight group and caches the result.
func (c *Cache[K, V]) fill(ctx context.Context, key K) (V, error) {
	c.mu.RLock()
	group, gen := c.group, c.gen
	c.mu.RUnlock()

	ch := group.DoChan(fmt.Sprint(key), func() (any, error) {
		// A flight that finished between our lookup and DoChan may already
		// have cached the value.
		c.mu.RLock()
		v, ok := c.entries.Peek(key)
		c.mu.RUnlock()
		if ok {
			return v, nil
		}

		// The loader outlives any single caller, so one caller giving up
		// must not fail the others waiting on the same key.
		v, err := c.load(context.WithoutCancel(ctx), key)
		c.loads.Add(1)
		c.metrics.CacheLoad(c.name, err == nil)
		if err != nil {
			return v, err
		}

		c.mu.RLock()
		if c.gen == gen {
			c.entries.Add(key, v)
		}
		c.mu.RUnlock()
		return v, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			var zero V
			return zero, r.Err
		}
		return r.Val.(V), nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Peek returns the cached value for key without loading, refreshing or
// counting.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	return c.entries.Peek(key)
}

func (c *Cache[K, V]) lookup(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries.Get(key)
	if ok && c.refreshOnHit {
		c.entries.Add(key, v)
	}
	return v, ok
}

// Invalidate drops the given keys. Loads already in flight complete for
// their callers but are not cached.
func (c *Cache[K, V]) Invalidate(keys ...K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	for _, k := range keys {
		c.entries.Remove(k)
		c.group.Forget(fmt.Sprint(k))
	}
}

// InvalidateAll empties the cache. Any Get starting after it returns
// observes a fresh load.
func (c *Cache[K, V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	n := c.entries.Len()
	c.entries.Purge()
	c.group = &singleflight.Group{}
	c.logger.Debug("cache cleared", "entries", n)
}

func (c *Cache[K, V]) Len() int {
	return c.entries.Len()
}

func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Loads:  c.loads.Load(),
		Size:   c.entries.Len(),
	}
}
