// Package flagcache persists flag evaluation results per evaluation context
// so that a client can start from cached data after a restart.
//
// A FlagCache keeps, for each context, the stored flags, a fingerprint of
// the context they were evaluated for together with the server etag, and an
// index of when each context was last updated. The index bounds how many
// contexts are retained: saving a new context evicts the least recently
// updated ones.
package flagcache

import (
	"cmp"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/flagcache/pkg/store"
)

// CachedData is the result of a cache lookup. Nil fields are absent.
type CachedData struct {
	Items       map[string]StoredItem
	Etag        *string
	LastUpdated *time.Time
}

type fingerprint struct {
	ContextHash string  `json:"contextHash"`
	Etag        *string `json:"etag,omitempty"`
}

// FlagCache is the context-scoped cache for one application and mobile key.
// All methods are safe for concurrent use.
type FlagCache struct {
	store             store.Cache
	cacheID           string
	maxCachedContexts int
	logger            *slog.Logger

	mu *sync.Mutex // shared by every FlagCache on the same identifier
}

// indexLocks serializes index read-modify-write per cache identifier across
// every FlagCache sharing that identifier's backend.
var indexLocks = store.NewRegistry[*sync.Mutex]()

// New opens the flag cache for mobileKey using backends from factory.
func New(factory store.Factory, mobileKey string, opts ...Option) *FlagCache {
	cfg := newConfig(opts)
	id := CacheIdentifier(cfg.appID, mobileKey)
	return &FlagCache{
		store:             factory(cfg.logger, id),
		cacheID:           id,
		maxCachedContexts: cfg.maxCachedContexts,
		logger:            cfg.logger.With("cache_id", id),
		mu:                indexLocks.Get(id, func() *sync.Mutex { return new(sync.Mutex) }),
	}
}

// MaxCachedContexts returns the retention bound.
func (c *FlagCache) MaxCachedContexts() int { return c.maxCachedContexts }

// CacheID returns the store identifier.
func (c *FlagCache) CacheID() string { return c.cacheID }

// Store returns the underlying backend.
func (c *FlagCache) Store() store.Cache { return c.store }

// GetCachedData returns what is cached for cacheKey.
//
// Flags are returned whenever they decode. The etag and last-updated time
// are only returned when contextHash matches the hash the flags were saved
// with; otherwise the flags are usable as a starting point but must be
// revalidated.
func (c *FlagCache) GetCachedData(cacheKey, contextHash string) CachedData {
	if c.maxCachedContexts == 0 {
		return CachedData{}
	}

	raw, ok := c.store.Get(flagsKey(cacheKey))
	if !ok {
		return CachedData{}
	}
	coll, err := DecodeCollection(raw)
	if err != nil {
		c.logger.Debug("discarding undecodable cached flags", "error", err, "context", cacheKey)
		return CachedData{}
	}
	data := CachedData{Items: coll.Flags}

	raw, ok = c.store.Get(fingerprintKey(cacheKey))
	if !ok {
		return data
	}
	var fp fingerprint
	if err := json.Unmarshal(raw, &fp); err != nil || fp.ContextHash != contextHash {
		return data
	}
	if fp.Etag != nil && *fp.Etag != "" {
		data.Etag = fp.Etag
	}

	if ms, ok := c.readIndex()[cacheKey]; ok {
		t := time.UnixMilli(ms)
		data.LastUpdated = &t
	}
	return data
}

// SaveCachedData stores items for cacheKey and enforces the retention bound.
func (c *FlagCache) SaveCachedData(items map[string]StoredItem, cacheKey, contextHash string, lastUpdated time.Time, etag *string) {
	if c.maxCachedContexts == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if data, err := json.Marshal(NewCollection(items)); err != nil {
		c.logger.Warn("failed to encode flags", "error", err, "context", cacheKey)
	} else {
		c.store.Set(flagsKey(cacheKey), data)
	}

	if data, err := json.Marshal(fingerprint{ContextHash: contextHash, Etag: etag}); err != nil {
		c.logger.Warn("failed to encode fingerprint", "error", err, "context", cacheKey)
	} else {
		c.store.Set(fingerprintKey(cacheKey), data)
	}

	index := c.readIndex()
	index[cacheKey] = lastUpdated.UnixMilli()
	index = c.trim(index)

	data, err := json.Marshal(index)
	if err != nil {
		c.logger.Warn("failed to encode context index", "error", err)
		return
	}
	c.store.Set(indexKey, data)
}

// Clear drops everything cached under this identifier.
func (c *FlagCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Clear()
}

type indexEntry struct {
	key string
	ms  int64
}

// trim keeps the newest maxCachedContexts entries and deletes the stored
// records of the rest. Ties on timestamp are broken by key.
func (c *FlagCache) trim(index map[string]int64) map[string]int64 {
	if c.maxCachedContexts < 0 || len(index) <= c.maxCachedContexts {
		return index
	}

	entries := make([]indexEntry, 0, len(index))
	for k, ms := range index {
		entries = append(entries, indexEntry{key: k, ms: ms})
	}
	slices.SortFunc(entries, func(a, b indexEntry) int {
		if n := cmp.Compare(b.ms, a.ms); n != 0 {
			return n
		}
		return cmp.Compare(a.key, b.key)
	})

	kept := make(map[string]int64, c.maxCachedContexts)
	for _, e := range entries[:c.maxCachedContexts] {
		kept[e.key] = e.ms
	}
	for _, e := range entries[c.maxCachedContexts:] {
		c.store.Delete(flagsKey(e.key))
		c.store.Delete(fingerprintKey(e.key))
		c.logger.Debug("evicted cached context", "context", e.key)
	}
	return kept
}

// readIndex decodes the context index. An undecodable index reads as empty
// and entries that are not integer timestamps are skipped.
func (c *FlagCache) readIndex() map[string]int64 {
	index := make(map[string]int64)

	raw, ok := c.store.Get(indexKey)
	if !ok {
		return index
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		c.logger.Debug("discarding undecodable context index", "error", err)
		return index
	}
	for k, v := range entries {
		var ms int64
		if err := json.Unmarshal(v, &ms); err != nil {
			continue
		}
		index[k] = ms
	}
	return index
}
