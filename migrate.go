package flagcache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/flagcache/pkg/store"
)

// CurrentSchemaVersion is written to every converted store.
const CurrentSchemaVersion = 8

// DefaultStoreID is the identifier of the shared default store that held
// v5 data.
const DefaultStoreID = ""

// v5 data lived under fixed keys in the default store.
var (
	v5Keys = []string{
		"com.launchdarkly.cachedUserEnvironmentFlags",
		"com.launchdarkly.dataStore.userEnvironments",
		"ldUserModelDictionary",
	}
	v5Prefix = "com.launchdarkly.cachedFlags."
)

// MigrationStats summarizes a ConvertCacheData run.
type MigrationStats struct {
	Skipped   int // stores already at the current schema
	Converted int // legacy records written to the current schema
	Failed    int // legacy records dropped because they did not decode
}

// Migrator converts caches written by older versions.
type Migrator struct {
	current store.Factory
	legacy  store.Factory
	cfg     *config
}

// NewMigrator creates a Migrator writing through current and reading from
// legacy. legacy may be nil when there is no older backend.
func NewMigrator(current, legacy store.Factory, opts ...Option) *Migrator {
	return &Migrator{current: current, legacy: legacy, cfg: newConfig(opts)}
}

// legacyRecord is the v7 per-context record: one key per context holding
// flags, fingerprint and timestamp together.
type legacyRecord struct {
	ContextHash string                `json:"contextHash"`
	Etag        *string               `json:"etag"`
	LastUpdated *int64                `json:"lastUpdated"`
	Flags       map[string]legacyFlag `json:"flags"`
}

type legacyFlag struct {
	FeatureFlag
	Deleted bool `json:"deleted"`
}

type schemaVersion struct {
	Version int `json:"version"`
}

// ConvertCacheData brings the caches of mobileKeys up to the current
// schema. Each store is checked first and skipped when already converted,
// so running it again is a no-op. Records that do not decode are logged and
// removed along with the converted ones; one bad record never stops the others.
func (m *Migrator) ConvertCacheData(mobileKeys []string, maxCachedContexts int) MigrationStats {
	logger := m.cfg.logger
	m.cleanupV5(m.current(logger, DefaultStoreID))

	var stats MigrationStats
	for _, mobileKey := range mobileKeys {
		fc := New(m.current, mobileKey,
			WithAppID(m.cfg.appID),
			WithLogger(logger),
			WithMaxCachedContexts(maxCachedContexts))

		if v, err := readSchemaVersion(fc.Store()); err == nil && v >= CurrentSchemaVersion {
			stats.Skipped++
			continue
		}

		converted, failed := m.convert(fc)
		stats.Converted += converted
		stats.Failed += failed

		data, err := json.Marshal(schemaVersion{Version: CurrentSchemaVersion})
		if err != nil {
			logger.Warn("failed to encode schema version", "error", err)
			continue
		}
		fc.Store().Set(versionKey, data)
		logger.Info("converted flag cache", "cache_id", fc.CacheID(), "converted", converted, "failed", failed)
	}
	return stats
}

func (m *Migrator) convert(fc *FlagCache) (converted, failed int) {
	if m.legacy == nil {
		return 0, 0
	}
	logger := m.cfg.logger.With("cache_id", fc.CacheID())
	old := m.legacy(logger, fc.CacheID())

	for _, key := range old.Keys() {
		raw, ok := old.Get(key)
		if !ok {
			continue
		}
		rec, err := decodeLegacyRecord(raw)
		if err != nil {
			logger.Warn("dropping undecodable legacy cache record", "error", err, "context", key)
			old.Delete(key)
			failed++
			continue
		}

		lastUpdated := m.cfg.now()
		if rec.LastUpdated != nil {
			lastUpdated = time.UnixMilli(*rec.LastUpdated)
		}
		fc.SaveCachedData(rec.items(), key, rec.ContextHash, lastUpdated, rec.Etag)
		old.Delete(key)
		converted++
	}
	return converted, failed
}

func decodeLegacyRecord(data []byte) (legacyRecord, error) {
	var rec legacyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return legacyRecord{}, fmt.Errorf("%w: %v", errLegacyRecord, err)
	}
	if rec.Flags == nil {
		return legacyRecord{}, fmt.Errorf("%w: %w", errLegacyRecord, errMissingFlags)
	}
	return rec, nil
}

func (r legacyRecord) items() map[string]StoredItem {
	items := make(map[string]StoredItem, len(r.Flags))
	for key, f := range r.Flags {
		if f.Deleted {
			v := 0
			if f.Version != nil {
				v = *f.Version
			}
			items[key] = Tombstone(v)
			continue
		}
		flag := f.FeatureFlag
		if flag.Key == "" {
			flag.Key = key
		}
		items[key] = Item(flag)
	}
	return items
}

func readSchemaVersion(s store.Cache) (int, error) {
	raw, ok := s.Get(versionKey)
	if !ok {
		return 0, fmt.Errorf("%w: not set", errSchemaVersion)
	}
	var v schemaVersion
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("%w: %v", errSchemaVersion, err)
	}
	return v.Version, nil
}

// cleanupV5 removes data written by v5, which nothing reads any more.
func (m *Migrator) cleanupV5(s store.Cache) {
	removed := 0
	for _, k := range s.Keys() {
		if slices.Contains(v5Keys, k) || strings.HasPrefix(k, v5Prefix) {
			s.Delete(k)
			removed++
		}
	}
	if removed > 0 {
		m.cfg.logger.Info("removed v5 cache data", "keys", removed)
	}
}

// MigrateStorage copies every entry of each mobile key's store from an
// older backend into the current one and empties the old store. Use it when
// the backend itself changes; the data format is untouched.
func (m *Migrator) MigrateStorage(mobileKeys []string, from store.Factory) {
	for _, mobileKey := range mobileKeys {
		id := CacheIdentifier(m.cfg.appID, mobileKey)
		logger := m.cfg.logger.With("cache_id", id)
		m.copyStore(logger, from(logger, id), m.current(logger, id))
	}
}

func (m *Migrator) copyStore(logger *slog.Logger, from, to store.Cache) {
	keys := from.Keys()
	copied := 0
	for _, k := range keys {
		v, ok := from.Get(k)
		if !ok {
			continue
		}
		to.Set(k, v)
		copied++
	}
	from.Clear()
	if copied > 0 {
		logger.Info("migrated cache storage", "entries", copied)
	}
}
