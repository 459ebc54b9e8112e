package cache

import (
	"sync"
)

// LRU is a bounded, thread-safe least-recently-used cache keyed by string.
// A zero or negative capacity disables caching: Get always misses and Put
// is a no-op.
type LRU[V any] struct {
	mu      sync.Mutex
	entries map[string]V
	order   []string
	maxSize int
	hits    uint64
	misses  uint64
}

// NewLRU creates an LRU holding at most maxSize entries.
func NewLRU[V any](maxSize int) *LRU[V] {
	if maxSize < 0 {
		maxSize = 0
	}
	return &LRU[V]{
		entries: make(map[string]V, maxSize),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
	}
}

// Get returns the cached value for key and marks it most recently used.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries[key]
	if !ok {
		c.misses++
		return v, false
	}
	c.hits++
	c.moveToEnd(key)
	return v, true
}

// Put stores value under key, evicting the least recently used entry when full.
func (c *LRU[V]) Put(key string, value V) {
	if c.maxSize == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.entries[key] = value
		c.moveToEnd(key)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = value
	c.order = append(c.order, key)
}

// GetOrCompute returns the cached value or computes, stores and returns it.
// compute runs outside the lock; concurrent misses may compute twice, which
// is harmless for pure functions.
func (c *LRU[V]) GetOrCompute(key string, compute func() V) V {
	if v, ok := c.Get(key); ok {
		return v
	}
	v := compute()
	c.Put(key, v)
	return v
}

// Len returns the number of cached entries.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cumulative hit and miss counts.
func (c *LRU[V]) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Purge drops every entry.
func (c *LRU[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]V, c.maxSize)
	c.order = c.order[:0]
}

func (c *LRU[V]) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *LRU[V]) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *LRU[V]) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
