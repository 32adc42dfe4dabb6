package metered

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/codeGROOVE-dev/flagcache/pkg/store"
	"github.com/codeGROOVE-dev/flagcache/pkg/store/memory"
	"github.com/codeGROOVE-dev/flagcache/pkg/store/storetest"
)

func newFactory(t *testing.T) (store.Factory, *metrics) {
	t.Helper()
	f, err := Wrap(memory.Factory(store.NewRegistry[*memory.Cache]()), "flagcache", prometheus.NewRegistry())
	require.NoError(t, err)
	c := f(nil, "first").(*Cache)
	return f, c.metrics
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Factory {
		f, _ := newFactory(t)
		return f
	})
}

func TestCache_CountsHitsAndMisses(t *testing.T) {
	require := require.New(t)
	f, m := newFactory(t)

	c := f(nil, "id")
	c.Set("a", []byte("1"))
	c.Get("a")
	c.Get("a")
	c.Get("missing")
	c.Delete("a")
	c.Clear()

	require.Equal(2.0, testutil.ToFloat64(m.gets.With(hitLabels)))
	require.Equal(1.0, testutil.ToFloat64(m.gets.With(missLabels)))
	require.Equal(1.0, testutil.ToFloat64(m.writes.WithLabelValues("set")))
	require.Equal(1.0, testutil.ToFloat64(m.writes.WithLabelValues("delete")))
	require.Equal(1.0, testutil.ToFloat64(m.writes.WithLabelValues("clear")))
	require.Equal(2.0, testutil.ToFloat64(m.stores), "first and id")
}

func TestWrap_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	base := memory.Factory(store.NewRegistry[*memory.Cache]())

	_, err := Wrap(base, "flagcache", reg)
	require.NoError(t, err)
	_, err = Wrap(base, "flagcache", reg)
	require.Error(t, err)
}
