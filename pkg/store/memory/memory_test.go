package memory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeGROOVE-dev/flagcache/pkg/store"
	"github.com/codeGROOVE-dev/flagcache/pkg/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Factory {
		return Factory(store.NewRegistry[*Cache]())
	})
}

func TestCache_SnapshotReplace(t *testing.T) {
	require := require.New(t)
	c := New()
	c.Set("a", []byte("1"))
	c.Set("b", nil)

	snap := c.Snapshot()
	require.Equal(map[string][]byte{"a": []byte("1"), "b": {}}, snap)

	snap["a"][0] = 'x'
	v, _ := c.Get("a")
	require.Equal([]byte("1"), v, "snapshot must not alias")

	c.Replace(map[string][]byte{"c": []byte("3")})
	require.Equal(1, c.Len())
	_, ok := c.Get("a")
	require.False(ok)
	v, ok = c.Get("c")
	require.True(ok)
	require.Equal([]byte("3"), v)
}

func TestGet_SharedRegistry(t *testing.T) {
	reg := store.NewRegistry[*Cache]()
	Get(reg, "x").Set("k", []byte("v"))

	v, ok := Factory(reg)(nil, "x").Get("k")
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)
	require.Equal(t, 1, reg.Len())
}
