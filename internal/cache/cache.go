// Package cache provides bounded in-memory caches with LRU eviction and
// time-based expiry, and the fingerprint keys used to address them.
package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 1000

type entry[V any] struct {
	value  V
	stored time.Time
}

// Cache is an LRU cache whose entries expire TTL after they were stored.
// Reads refresh recency but not age. Safe for concurrent use.
type Cache[V any] struct {
	lru      *lru.Cache[string, entry[V]]
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New creates a cache holding at most capacity entries. A non-positive ttl
// disables expiry.
func New[V any](capacity int, ttl time.Duration, opts ...Option) *Cache[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	// lru.New only fails for non-positive sizes.
	l, _ := lru.New[string, entry[V]](capacity)
	return &Cache[V]{lru: l, capacity: capacity, ttl: ttl, now: o.now}
}

// Get returns the value for key. Expired entries are removed and reported
// as absent.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	e, ok := c.lru.Get(key)
	if !ok {
		return zero, false
	}
	if c.ttl > 0 && c.now().Sub(e.stored) > c.ttl {
		c.lru.Remove(key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, evicting the least recently used entry when
// the cache is full. Overwriting resets the entry's age.
func (c *Cache[V]) Set(key string, value V) {
	c.lru.Add(key, entry[V]{value: value, stored: c.now()})
}

// Remove deletes key.
func (c *Cache[V]) Remove(key string) {
	c.lru.Remove(key)
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.lru.Purge()
}

// Len returns the number of entries, including expired ones not yet read.
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}

// Capacity returns the maximum number of entries.
func (c *Cache[V]) Capacity() int {
	return c.capacity
}
