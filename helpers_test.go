package flagcache

import (
	"log/slog"
	"sync"

	"github.com/codeGROOVE-dev/flagcache/pkg/store"
	"github.com/codeGROOVE-dev/flagcache/pkg/store/memory"
)

const testAppID = "com.example.app"

// recordingCache is a memory cache that records every call.
type recordingCache struct {
	*memory.Cache

	mu      sync.Mutex
	gets    []string
	sets    []string
	deletes []string
	clears  int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{Cache: memory.New()}
}

func (r *recordingCache) Get(key string) ([]byte, bool) {
	r.mu.Lock()
	r.gets = append(r.gets, key)
	r.mu.Unlock()
	return r.Cache.Get(key)
}

func (r *recordingCache) Set(key string, value []byte) {
	r.mu.Lock()
	r.sets = append(r.sets, key)
	r.mu.Unlock()
	r.Cache.Set(key, value)
}

func (r *recordingCache) Delete(key string) {
	r.mu.Lock()
	r.deletes = append(r.deletes, key)
	r.mu.Unlock()
	r.Cache.Delete(key)
}

func (r *recordingCache) Clear() {
	r.mu.Lock()
	r.clears++
	r.mu.Unlock()
	r.Cache.Clear()
}

// reset forgets recorded calls, keeping the data.
func (r *recordingCache) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets, r.sets, r.deletes, r.clears = nil, nil, nil, 0
}

// recordingFactory hands out recordingCaches per identifier and records
// the identifiers it was asked for.
type recordingFactory struct {
	mu     sync.Mutex
	ids    []string
	caches *store.Registry[*recordingCache]
}

func newRecordingFactory() *recordingFactory {
	return &recordingFactory{caches: store.NewRegistry[*recordingCache]()}
}

func (f *recordingFactory) factory(_ *slog.Logger, cacheID string) store.Cache {
	f.mu.Lock()
	f.ids = append(f.ids, cacheID)
	f.mu.Unlock()
	return f.cache(cacheID)
}

func (f *recordingFactory) cache(cacheID string) *recordingCache {
	return f.caches.Get(cacheID, newRecordingCache)
}

func (f *recordingFactory) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

func intPtr(i int) *int       { return &i }
func strPtr(s string) *string { return &s }
func testFlag(key string) FeatureFlag {
	return FeatureFlag{Key: key, Variation: intPtr(1), Version: intPtr(2), Value: []byte("true")}
}
