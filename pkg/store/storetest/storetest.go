// Package storetest is a conformance suite for store.Cache backends.
package storetest

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeGROOVE-dev/flagcache/pkg/store"
)

// Run exercises factory against the behavior every backend must share.
// newFactory is called once per subtest and must return a factory whose
// stores start empty.
func Run(t *testing.T, newFactory func(t *testing.T) store.Factory) {
	t.Helper()

	t.Run("RoundTrip", func(t *testing.T) {
		f := newFactory(t)
		data := []byte("random")
		f(slog.Default(), "test").Set("test_key", data)

		got, ok := f(slog.Default(), "test").Get("test_key")
		require.True(t, ok)
		require.Equal(t, data, got)
	})

	t.Run("Overwrite", func(t *testing.T) {
		s := newFactory(t)(nil, "test")
		s.Set("k", []byte("one"))
		s.Set("k", []byte("two"))
		got, ok := s.Get("k")
		require.True(t, ok)
		require.Equal(t, []byte("two"), got)
	})

	t.Run("Miss", func(t *testing.T) {
		_, ok := newFactory(t)(nil, "test").Get("missing")
		require.False(t, ok)
	})

	t.Run("EmptyValue", func(t *testing.T) {
		s := newFactory(t)(nil, "test")
		s.Set("empty", []byte{})
		got, ok := s.Get("empty")
		require.True(t, ok)
		require.Empty(t, got)
	})

	t.Run("ValuesAreCopied", func(t *testing.T) {
		s := newFactory(t)(nil, "test")
		in := []byte("abc")
		s.Set("k", in)
		in[0] = 'z'
		out, _ := s.Get("k")
		require.Equal(t, []byte("abc"), out)
		out[1] = 'z'
		again, _ := s.Get("k")
		require.Equal(t, []byte("abc"), again)
	})

	t.Run("Delete", func(t *testing.T) {
		f := newFactory(t)
		f(nil, "test").Set("test_key", []byte("random"))
		f(nil, "test").Delete("test_key")
		_, ok := f(nil, "test").Get("test_key")
		require.False(t, ok)

		f(nil, "test").Delete("never_set")
	})

	t.Run("Clear", func(t *testing.T) {
		f := newFactory(t)
		for i := range 5 {
			f(nil, "test").Set("k"+strconv.Itoa(i), []byte("v"))
		}
		f(nil, "test").Clear()
		for i := range 5 {
			_, ok := f(nil, "test").Get("k" + strconv.Itoa(i))
			require.False(t, ok)
		}
		require.Empty(t, f(nil, "test").Keys())
	})

	t.Run("Keys", func(t *testing.T) {
		f := newFactory(t)
		s := f(nil, "test")
		var want []string
		for i := range 10 {
			k := fmt.Sprintf("key_%d", i)
			want = append(want, k)
			s.Set(k, []byte(k))
		}
		got := f(nil, "test").Keys()
		sort.Strings(got)
		require.Equal(t, want, got)
	})

	t.Run("SameInstancePerID", func(t *testing.T) {
		f := newFactory(t)
		require.Same(t, f(nil, "a"), f(nil, "a"))
	})

	t.Run("IsolatedPerID", func(t *testing.T) {
		f := newFactory(t)
		s1, s2, s3 := f(nil, "key_1"), f(nil, "key_2"), f(nil, "key_3")
		s1.Set("test_key", []byte("1"))
		s2.Set("test_key", []byte("2"))
		s3.Set("test_key", []byte("3"))
		s3.Clear()

		v, ok := s1.Get("test_key")
		require.True(t, ok)
		require.Equal(t, []byte("1"), v)
		v, ok = s2.Get("test_key")
		require.True(t, ok)
		require.Equal(t, []byte("2"), v)
		_, ok = s3.Get("test_key")
		require.False(t, ok)
	})

	t.Run("Concurrent", func(t *testing.T) {
		f := newFactory(t)
		var wg sync.WaitGroup
		for i := range 1000 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s := f(nil, fmt.Sprintf("cache_%d", i%3))
				if i%9 == 0 {
					s.Clear()
					return
				}
				k := i % 5
				s.Set(strconv.Itoa(k), fmt.Appendf(nil, "value_%d", k))
				s.Get(strconv.Itoa(k))
				s.Keys()
			}()
		}
		wg.Wait()

		for c := range 3 {
			s := f(nil, fmt.Sprintf("cache_%d", c))
			for _, key := range s.Keys() {
				idx, err := strconv.Atoi(key)
				if err != nil {
					continue
				}
				v, ok := s.Get(key)
				if !ok {
					continue
				}
				require.Equal(t, fmt.Appendf(nil, "value_%d", idx), v)
			}
		}
	})
}
