// Package metered wraps store backends with Prometheus metrics.
package metered

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codeGROOVE-dev/flagcache/pkg/store"
)

// Cache records metrics around another store.Cache.
type Cache struct {
	store.Cache
	metrics *metrics
}

var _ store.Cache = (*Cache)(nil)

// Wrap returns a factory whose caches report to reg under namespace.
// Wrapped caches are registered per identifier so the factory keeps
// returning the same instance.
func Wrap(f store.Factory, namespace string, reg prometheus.Registerer) (store.Factory, error) {
	m, err := newMetrics(namespace, reg)
	if err != nil {
		return nil, err
	}
	caches := store.NewRegistry[*Cache]()
	return func(logger *slog.Logger, cacheID string) store.Cache {
		return caches.Get(cacheID, func() *Cache {
			m.stores.Inc()
			return &Cache{Cache: f(logger, cacheID), metrics: m}
		})
	}, nil
}

func (c *Cache) Get(key string) ([]byte, bool) {
	start := time.Now()
	v, ok := c.Cache.Get(key)
	c.metrics.latency.WithLabelValues("get").Observe(time.Since(start).Seconds())

	if ok {
		c.metrics.gets.With(hitLabels).Inc()
	} else {
		c.metrics.gets.With(missLabels).Inc()
	}
	return v, ok
}

func (c *Cache) Set(key string, value []byte) {
	start := time.Now()
	c.Cache.Set(key, value)
	c.observeWrite("set", start)
}

func (c *Cache) Delete(key string) {
	start := time.Now()
	c.Cache.Delete(key)
	c.observeWrite("delete", start)
}

func (c *Cache) Clear() {
	start := time.Now()
	c.Cache.Clear()
	c.observeWrite("clear", start)
}

func (c *Cache) observeWrite(op string, start time.Time) {
	c.metrics.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	c.metrics.writes.WithLabelValues(op).Inc()
}
