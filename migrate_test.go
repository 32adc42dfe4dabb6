package flagcache

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeGROOVE-dev/flagcache/pkg/store"
	"github.com/codeGROOVE-dev/flagcache/pkg/store/file"
	"github.com/codeGROOVE-dev/flagcache/pkg/store/memory"
	"github.com/codeGROOVE-dev/flagcache/pkg/store/sqlite"
)

func legacyJSON(t *testing.T, hash string, etag *string, lastUpdated *int64, flags map[string]any) []byte {
	t.Helper()
	return encode(t, map[string]any{
		"contextHash": hash,
		"etag":        etag,
		"lastUpdated": lastUpdated,
		"flags":       flags,
	})
}

func TestConvertCacheData_NoKeys(t *testing.T) {
	rf := newRecordingFactory()
	m := NewMigrator(rf.factory, nil, WithAppID(testAppID))

	stats := m.ConvertCacheData(nil, 5)

	require.Equal(t, MigrationStats{}, stats)
	require.Equal(t, []string{DefaultStoreID}, rf.calls())
}

func TestConvertCacheData_RemovesV5Data(t *testing.T) {
	require := require.New(t)
	rf := newRecordingFactory()
	def := rf.cache(DefaultStoreID)
	for _, k := range v5Keys {
		def.Cache.Set(k, []byte("{}"))
	}
	def.Cache.Set(v5Prefix+"abc", []byte("{}"))
	def.Cache.Set("unrelated", []byte("keep"))

	NewMigrator(rf.factory, nil, WithAppID(testAppID)).ConvertCacheData(nil, 5)

	require.Equal([]string{"unrelated"}, def.Keys())
	require.Len(def.deletes, len(v5Keys)+1)
}

func TestConvertCacheData_SkipsCurrentVersion(t *testing.T) {
	require := require.New(t)
	rf := newRecordingFactory()
	legacy := newRecordingFactory()
	id := CacheIdentifier(testAppID, "key1")
	rf.cache(id).Cache.Set(versionKey, []byte(`{"version":8}`))
	legacy.cache(id).Cache.Set("ctx", legacyJSON(t, "h", nil, nil, map[string]any{}))

	stats := NewMigrator(rf.factory, legacy.factory, WithAppID(testAppID)).ConvertCacheData([]string{"key1"}, 5)

	require.Equal(MigrationStats{Skipped: 1}, stats)
	require.Empty(legacy.calls())
	require.Empty(rf.cache(id).sets)
}

func TestConvertCacheData_ConvertsLegacyRecords(t *testing.T) {
	require := require.New(t)
	rf := newRecordingFactory()
	legacy := newRecordingFactory()
	id := CacheIdentifier(testAppID, "key1")
	ms := int64(1_700_000_000_000)

	legacy.cache(id).Cache.Set("ctx1", legacyJSON(t, "hash1", strPtr("etag1"), &ms, map[string]any{
		"flag1": map[string]any{"key": "flag1", "value": true, "version": 3, "variation": 1},
		"gone":  map[string]any{"version": 7, "deleted": true},
	}))

	stats := NewMigrator(rf.factory, legacy.factory, WithAppID(testAppID)).ConvertCacheData([]string{"key1"}, 5)
	require.Equal(MigrationStats{Converted: 1}, stats)

	fc := New(rf.factory, "key1", WithAppID(testAppID))
	got := fc.GetCachedData("ctx1", "hash1")
	require.Len(got.Items, 2)
	require.True(got.Items["gone"].IsDeleted())
	require.Equal(7, got.Items["gone"].Version())
	f, ok := got.Items["flag1"].Flag()
	require.True(ok)
	require.Equal(3, *f.Version)
	require.JSONEq("true", string(f.Value))
	require.Equal("etag1", *got.Etag)
	require.Equal(ms, got.LastUpdated.UnixMilli())

	require.Empty(legacy.cache(id).Keys())
	v, err := readSchemaVersion(fc.Store())
	require.NoError(err)
	require.Equal(CurrentSchemaVersion, v)
}

func TestConvertCacheData_MissingTimestampUsesClock(t *testing.T) {
	rf := newRecordingFactory()
	legacy := newRecordingFactory()
	id := CacheIdentifier(testAppID, "key1")
	now := time.UnixMilli(42_000)
	legacy.cache(id).Cache.Set("ctx1", legacyJSON(t, "h", nil, nil, map[string]any{}))

	NewMigrator(rf.factory, legacy.factory, WithAppID(testAppID), WithClock(func() time.Time { return now })).
		ConvertCacheData([]string{"key1"}, 5)

	got := New(rf.factory, "key1", WithAppID(testAppID)).GetCachedData("ctx1", "h")
	require.NotNil(t, got.LastUpdated)
	require.Equal(t, now.UnixMilli(), got.LastUpdated.UnixMilli())
}

func TestConvertCacheData_DropsBadRecords(t *testing.T) {
	require := require.New(t)
	rf := newRecordingFactory()
	legacy := newRecordingFactory()
	id := CacheIdentifier(testAppID, "key1")
	old := legacy.cache(id)
	old.Cache.Set("bad", []byte("garbage"))
	old.Cache.Set("noflags", []byte(`{"contextHash":"h"}`))
	old.Cache.Set("good", legacyJSON(t, "h", nil, nil, map[string]any{}))
	m := NewMigrator(rf.factory, legacy.factory, WithAppID(testAppID))

	require.Equal(MigrationStats{Converted: 1, Failed: 2}, m.ConvertCacheData([]string{"key1"}, 5))
	require.Empty(old.Keys())
	v, err := readSchemaVersion(rf.cache(id))
	require.NoError(err)
	require.Equal(CurrentSchemaVersion, v)

	require.Equal(MigrationStats{Skipped: 1}, m.ConvertCacheData([]string{"key1"}, 5))
	require.Nil(New(rf.factory, "key1", WithAppID(testAppID)).GetCachedData("bad", "h").Items)
}

func TestConvertCacheData_SecondRunIsNoop(t *testing.T) {
	require := require.New(t)
	rf := newRecordingFactory()
	legacy := newRecordingFactory()
	id := CacheIdentifier(testAppID, "key1")
	legacy.cache(id).Cache.Set("ctx1", legacyJSON(t, "h", nil, nil, map[string]any{}))
	m := NewMigrator(rf.factory, legacy.factory, WithAppID(testAppID))

	require.Equal(MigrationStats{Converted: 1}, m.ConvertCacheData([]string{"key1"}, 5))

	current := rf.cache(id)
	current.reset()
	require.Equal(MigrationStats{Skipped: 1}, m.ConvertCacheData([]string{"key1"}, 5))
	require.Empty(current.sets)
	require.Empty(current.deletes)
}

func TestConvertCacheData_RespectsMaxCachedContexts(t *testing.T) {
	require := require.New(t)
	rf := newRecordingFactory()
	legacy := newRecordingFactory()
	id := CacheIdentifier(testAppID, "key1")
	for i, ctx := range []string{"a", "b", "c"} {
		ms := int64(1000 * (i + 1))
		legacy.cache(id).Cache.Set(ctx, legacyJSON(t, "h", nil, &ms, map[string]any{}))
	}

	NewMigrator(rf.factory, legacy.factory, WithAppID(testAppID)).ConvertCacheData([]string{"key1"}, 2)

	fc := New(rf.factory, "key1", WithAppID(testAppID), WithMaxCachedContexts(2))
	require.Nil(fc.GetCachedData("a", "h").Items)
	require.NotNil(fc.GetCachedData("b", "h").Items)
	require.NotNil(fc.GetCachedData("c", "h").Items)
}

func TestConvertCacheData_Disabled(t *testing.T) {
	require := require.New(t)
	rf := newRecordingFactory()
	legacy := newRecordingFactory()
	id := CacheIdentifier(testAppID, "key1")
	legacy.cache(id).Cache.Set("ctx1", legacyJSON(t, "h", nil, nil, map[string]any{}))

	NewMigrator(rf.factory, legacy.factory, WithAppID(testAppID)).ConvertCacheData([]string{"key1"}, 0)

	require.Empty(legacy.cache(id).Keys())
	require.Equal([]string{versionKey}, rf.cache(id).Keys())
}

func TestConvertCacheData_FromSQLite(t *testing.T) {
	require := require.New(t)
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "legacy.db"), nil)
	require.NoError(err)
	t.Cleanup(func() { require.NoError(db.Close()) })

	id := CacheIdentifier(testAppID, "key1")
	db.Cache(nil, id).Set("ctx1", legacyJSON(t, "h", strPtr("e"), nil, map[string]any{
		"flag1": map[string]any{"value": "on"},
	}))

	current := memory.Factory(store.NewRegistry[*memory.Cache]())
	stats := NewMigrator(current, db.Factory(), WithAppID(testAppID)).ConvertCacheData([]string{"key1"}, 5)
	require.Equal(MigrationStats{Converted: 1}, stats)

	got := New(current, "key1", WithAppID(testAppID)).GetCachedData("ctx1", "h")
	f, ok := got.Items["flag1"].Flag()
	require.True(ok)
	require.Equal("flag1", f.Key)
	require.Empty(db.Cache(nil, id).Keys())
}

func TestMigrateStorage(t *testing.T) {
	require := require.New(t)
	from := newRecordingFactory()
	to := newRecordingFactory()
	id1 := CacheIdentifier(testAppID, "key1")
	id2 := CacheIdentifier(testAppID, "key2")
	from.cache(id1).Cache.Set("a", []byte("1"))
	from.cache(id1).Cache.Set("b", []byte("2"))
	from.cache(id2).Cache.Set("c", []byte("3"))

	NewMigrator(to.factory, nil, WithAppID(testAppID)).MigrateStorage([]string{"key1", "key2"}, from.factory)

	v, ok := to.cache(id1).Get("b")
	require.True(ok)
	require.Equal([]byte("2"), v)
	require.ElementsMatch([]string{"a", "b"}, to.cache(id1).Keys())
	require.Equal([]string{"c"}, to.cache(id2).Keys())
	require.Empty(from.cache(id1).Keys())
	require.Empty(from.cache(id2).Keys())
}

// Flag data saved through the file backend is available to a new process
// opening the same directory.
func TestFileBackedFlagCache_SurvivesRestart(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	opts := []file.Option{file.WithDir(dir), file.WithEncryptionKey("secret")}
	now := time.UnixMilli(1_700_000_000_000)

	reg := store.NewRegistry[*file.Cache]()
	fc := New(file.Factory(reg, opts...), "mob-key", WithAppID(testAppID))
	fc.SaveCachedData(map[string]StoredItem{
		"flag1": Item(testFlag("flag1")),
		"flag2": Tombstone(4),
	}, "ctx", "h", now, strPtr("etag"))
	reg.Range(func(_ string, c *file.Cache) { require.NoError(c.Close()) })

	fc = New(file.Factory(store.NewRegistry[*file.Cache](), opts...), "mob-key", WithAppID(testAppID))
	got := fc.GetCachedData("ctx", "h")
	require.Len(got.Items, 2)
	require.True(got.Items["flag2"].IsDeleted())
	require.Equal("etag", *got.Etag)
	require.Equal(now.UnixMilli(), got.LastUpdated.UnixMilli())

	raw, err := json.Marshal(got.Items["flag1"])
	require.NoError(err)
	require.JSONEq(`{"key":"flag1","value":true,"variation":1,"version":2}`, string(raw))
}
