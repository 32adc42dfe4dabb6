// Package store defines the byte-oriented key/value capability that every
// flag cache backend implements, and the registry that keeps one backend
// instance per cache identifier.
package store

import (
	"log/slog"
	"sync"
)

// Cache is a single logical key/value store.
// Implementations are safe for concurrent use. Storage failures are logged
// by the backend and never reported to callers; a failed read is a miss.
type Cache interface {
	// Set stores value under key, replacing any previous value.
	Set(key string, value []byte)
	// Get returns the value stored under key.
	Get(key string) ([]byte, bool)
	// Delete removes key. Missing keys are ignored.
	Delete(key string)
	// Clear removes every key.
	Clear()
	// Keys lists the stored keys in no particular order.
	Keys() []string
}

// Factory returns the backend for cacheID. Factories must return the same
// instance for the same identifier for the lifetime of the process.
type Factory func(logger *slog.Logger, cacheID string) Cache

// Registry maps cache identifiers to backend instances. Lookups and
// construction happen under one lock, so concurrent callers never build two
// instances for the same identifier.
type Registry[T any] struct {
	mu        sync.Mutex
	instances map[string]T
}

// NewRegistry creates an empty Registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{instances: make(map[string]T)}
}

// Get returns the instance registered for id, calling build to create it on
// first use. build runs with the registry lock held.
func (r *Registry[T]) Get(id string, build func() T) T {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.instances[id]; ok {
		return v
	}
	v := build()
	r.instances[id] = v
	return v
}

// Lookup returns the instance for id without creating one.
func (r *Registry[T]) Lookup(id string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.instances[id]
	return v, ok
}

// Len returns the number of registered instances.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instances)
}

// Range calls fn for every registered instance.
// fn must not call back into the registry.
func (r *Registry[T]) Range(fn func(id string, v T)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, v := range r.instances {
		fn(id, v)
	}
}

// Reset forgets every instance. Existing instances keep working but later
// lookups build new ones.
func (r *Registry[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances = make(map[string]T)
}

// Logger returns l, or slog.Default() when l is nil.
func Logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
