// Package cache implements the bounded, TTL-based, approximate-LRU cache
// that sits in front of every repository (spec §4.1's "Cache contract").
// It is a generic, entity-agnostic rework of the teacher's
// internal/rpc.QueryCache: same hit/miss/eviction counters, same
// expired-first-then-oldest eviction order, generalized from a single
// Response type to any entity type via Go generics and backed by
// hashicorp/golang-lru/v2 for the underlying bookkeeping map. The oldest
// entry is still found by a linear scan over every entry's cachedAt.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultMaxSize is the default bound on cached entries (spec §4.1).
	DefaultMaxSize = 1000
	// DefaultTTL is the default entry lifetime (spec §4.1).
	DefaultTTL = 300 * time.Second
)

type entry[V any] struct {
	value    V
	cachedAt time.Time
}

// Cache is a bounded, TTL-aware cache for one entity kind. One Cache
// instance per repository; caches are never shared across entity kinds
// (spec §9 design notes).
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	lru     *lru.Cache[K, *entry[V]]
	ttl     time.Duration
	maxSize int
	enabled atomic.Bool

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// Stats is a point-in-time snapshot of cache counters (spec §4.1).
type Stats struct {
	Size      int
	MaxSize   int
	TTL       time.Duration
	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64
	Enabled   bool
}

// Option configures a Cache at construction time.
type Option[K comparable, V any] func(*Cache[K, V])

// WithMaxSize overrides DefaultMaxSize.
func WithMaxSize[K comparable, V any](n int) Option[K, V] {
	return func(c *Cache[K, V]) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithTTL overrides DefaultTTL.
func WithTTL[K comparable, V any](d time.Duration) Option[K, V] {
	return func(c *Cache[K, V]) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// New creates a Cache bounded by DefaultMaxSize/DefaultTTL unless
// overridden by options.
func New[K comparable, V any](opts ...Option[K, V]) *Cache[K, V] {
	c := &Cache[K, V]{
		ttl:     DefaultTTL,
		maxSize: DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	// The underlying lru.Cache is sized generously beyond maxSize: we do
	// our own expired-first eviction in Set, so the library's built-in
	// eviction (plain LRU, no TTL awareness) should rarely fire. Sizing it
	// at maxSize+1 keeps Set's pre-insert headroom check meaningful.
	l, _ := lru.New[K, *entry[V]](c.maxSize + 1)
	c.lru = l
	c.enabled.Store(true)
	return c
}

// Get returns the cached value for key if present and not expired. A
// miss (absent, expired, or disabled) returns the zero value and false,
// and - for expired entries - evicts the stale entry (spec §4.1 TTL
// bound: "Entries older than TTL are treated as missing and evicted on
// access").
func (c *Cache[K, V]) Get(key K) (V, bool) {
	var zero V
	if !c.enabled.Load() {
		return zero, false
	}

	c.mu.Lock()
	e, ok := c.lru.Get(key)
	if !ok {
		c.mu.Unlock()
		c.misses.Add(1)
		return zero, false
	}
	if time.Since(e.cachedAt) > c.ttl {
		c.lru.Remove(key)
		c.mu.Unlock()
		c.misses.Add(1)
		c.evictions.Add(1)
		return zero, false
	}
	c.mu.Unlock()
	c.hits.Add(1)
	return e.value, true
}

// Set stores value under key, evicting expired entries first and then
// the oldest entry if the cache is still full (spec §4.1 eviction bound).
func (c *Cache[K, V]) Set(key K, value V) {
	if !c.enabled.Load() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.lru.Peek(key); !exists && c.lru.Len() >= c.maxSize {
		c.evictExpiredLocked()
	}
	if _, exists := c.lru.Peek(key); !exists && c.lru.Len() >= c.maxSize {
		c.evictOldestLocked()
	}

	c.lru.Add(key, &entry[V]{value: value, cachedAt: time.Now()})
}

// Delete removes a single key, used when a write invalidates one entity
// (spec §4.1: "Writes that modify an entity invalidate its cache entry").
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Clear empties the cache.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// SetEnabled toggles caching on/off without losing accumulated counters.
func (c *Cache[K, V]) SetEnabled(enabled bool) {
	c.enabled.Store(enabled)
	if !enabled {
		c.Clear()
	}
}

// Stats returns a snapshot of cache counters and configuration.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	size := c.lru.Len()
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Size:      size,
		MaxSize:   c.maxSize,
		TTL:       c.ttl,
		Hits:      hits,
		Misses:    misses,
		Evictions: c.evictions.Load(),
		HitRate:   rate,
		Enabled:   c.enabled.Load(),
	}
}

// evictExpiredLocked removes all expired entries. Caller holds c.mu.
func (c *Cache[K, V]) evictExpiredLocked() {
	now := time.Now()
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if ok && now.Sub(e.cachedAt) > c.ttl {
			c.lru.Remove(key)
			c.evictions.Add(1)
		}
	}
}

// evictOldestLocked removes the single oldest-cached entry. Caller holds
// c.mu. This is the approximate-LRU fallback spec §4.1 calls for when
// expired-entry eviction alone doesn't free a slot.
func (c *Cache[K, V]) evictOldestLocked() {
	var oldestKey K
	var oldestTime time.Time
	first := true
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		if first || e.cachedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.cachedAt
			first = false
		}
	}
	if !first {
		c.lru.Remove(oldestKey)
		c.evictions.Add(1)
	}
}
