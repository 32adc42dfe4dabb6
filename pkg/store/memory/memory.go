// Package memory provides the in-process store.Cache backend.
package memory

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/codeGROOVE-dev/flagcache/pkg/store"
)

// Cache is a map guarded by a single mutex. No method performs I/O.
type Cache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

var _ store.Cache = (*Cache)(nil)

// New creates an empty Cache that is not registered anywhere.
func New() *Cache {
	return &Cache{entries: make(map[string][]byte)}
}

// Factory returns a store.Factory handing out one Cache per identifier from reg.
func Factory(reg *store.Registry[*Cache]) store.Factory {
	return func(_ *slog.Logger, cacheID string) store.Cache {
		return Get(reg, cacheID)
	}
}

// Get returns the Cache registered for cacheID, creating it if needed.
func Get(reg *store.Registry[*Cache], cacheID string) *Cache {
	return reg.Get(cacheID, New)
}

func (c *Cache) Set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = slices.Clone(nonNil(value))
}

func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return slices.Clone(v), true
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Snapshot returns a copy of every entry.
func (c *Cache) Snapshot() map[string][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string][]byte, len(c.entries))
	for k, v := range c.entries {
		out[k] = slices.Clone(v)
	}
	return out
}

// Replace swaps the whole contents for entries.
func (c *Cache) Replace(entries map[string][]byte) {
	m := make(map[string][]byte, len(entries))
	for k, v := range entries {
		m[k] = slices.Clone(nonNil(v))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = m
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// nonNil keeps "set to empty" distinguishable from a miss after cloning,
// since slices.Clone(nil) is nil.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
