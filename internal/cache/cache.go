// Package cache implements the content-addressed step result cache. A hit
// short-circuits execution entirely; concurrent lookups for the same key
// collapse to a single underlying execution.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL applies to entries whose step declares no explicit TTL.
const DefaultTTL = time.Hour

// DefaultMaxEntries bounds the in-memory store.
const DefaultMaxEntries = 10000

type entry struct {
	outputs   map[string]any
	createdAt time.Time
	expiresAt time.Time
}

// Cache stores step outputs keyed by content hash. Entries expire by TTL
// only. There is no invalidation API: any semantically relevant change to a
// step or its inputs yields a different key.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	maxEntries int
	defaultTTL time.Duration
	group      singleflight.Group
	now        func() time.Time

	hits   int64
	misses int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxEntries overrides the entry bound.
func WithMaxEntries(n int) Option {
	return func(c *Cache) { c.maxEntries = n }
}

// WithDefaultTTL overrides the default entry lifetime.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.defaultTTL = ttl }
}

// WithClock substitutes the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:    make(map[string]*entry),
		maxEntries: DefaultMaxEntries,
		defaultTTL: DefaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached outputs for key, if present and unexpired.
func (c *Cache) Get(key string) (map[string]any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	c.hits++
	return cloneOutputs(e.outputs), true
}

// Put stores outputs under key with the given TTL. A non-positive TTL uses
// the cache default.
func (c *Cache) Put(key string, outputs map[string]any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = &entry{
		outputs:   cloneOutputs(outputs),
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
}

// GetOrExecute returns the cached outputs for key, or runs fn exactly once
// to produce them. Concurrent callers with the same key await the single
// in-flight execution and observe the same result. The cached flag is true
// when this caller's fn did not run, whether the result came from the
// store or from another caller's in-flight execution.
func (c *Cache) GetOrExecute(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) (map[string]any, error)) (map[string]any, bool, error) {
	if outputs, ok := c.Get(key); ok {
		return outputs, true, nil
	}

	executed := false
	result, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check under the flight: a concurrent caller may have
		// populated the entry between our miss and this call.
		if outputs, ok := c.Get(key); ok {
			return outputs, nil
		}
		executed = true
		outputs, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.Put(key, outputs, ttl)
		return cloneOutputs(outputs), nil
	})
	if err != nil {
		return nil, false, err
	}
	return result.(map[string]any), !executed, nil
}

// Len returns the current number of entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cumulative hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Purge removes expired entries. Called periodically by the engine's
// housekeeping loop.
func (c *Cache) Purge() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for key, e := range c.entries {
		if oldestKey == "" || e.createdAt.Before(oldest) {
			oldestKey = key
			oldest = e.createdAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func cloneOutputs(outputs map[string]any) map[string]any {
	if outputs == nil {
		return nil
	}
	out := make(map[string]any, len(outputs))
	for k, v := range outputs {
		out[k] = v
	}
	return out
}
