package secrets

import (
	"sync"
	"time"
)

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// Cache is a thread-safe in-memory TTL cache keyed by secret name, so
// resolved credentials are not re-fetched from the provider on every use.
type Cache[T any] struct {
	mu      sync.RWMutex
	entries map[string]entry[T]
	ttl     time.Duration
}

// NewCache creates a cache whose entries live for ttl after each Put.
func NewCache[T any](ttl time.Duration) *Cache[T] {
	return &Cache[T]{entries: make(map[string]entry[T]), ttl: ttl}
}

// Get returns the cached value for key, treating expired entries as misses.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(e.expiresAt) {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Put stores value under key with the cache's TTL.
func (c *Cache[T]) Put(key string, value T) {
	c.mu.Lock()
	c.entries[key] = entry[T]{value: value, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Bust drops one entry, forcing the next Get to miss (secret rotation).
func (c *Cache[T]) Bust(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}
