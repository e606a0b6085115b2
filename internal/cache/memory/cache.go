// Package memory provides an in-process durable cache, useful for tests and
// single-shot runs where persistence across processes is not needed.
package memory

import (
	"context"
	"sync"
)

// Cache stores key-value entries in a mutex-guarded map.
type Cache struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[string][]byte)}
}

// Get returns the cached value for key, if present.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

// Set stores value under key, replacing any previous entry.
func (c *Cache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	c.entries[key] = stored
	return nil
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
