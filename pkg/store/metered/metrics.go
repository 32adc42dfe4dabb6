package metered

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultLabel = "result"
	opLabel     = "op"
)

var (
	hitLabels  = prometheus.Labels{resultLabel: "hit"}
	missLabels = prometheus.Labels{resultLabel: "miss"}
)

type metrics struct {
	gets    *prometheus.CounterVec
	writes  *prometheus.CounterVec
	latency *prometheus.HistogramVec
	stores  prometheus.Gauge
}

func newMetrics(namespace string, reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		gets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "get_count",
			Help:      "number of get calls by result",
		}, []string{resultLabel}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_count",
			Help:      "number of set, delete and clear calls",
		}, []string{opLabel}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "op_duration_seconds",
			Help:      "time spent in cache operations",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}, []string{opLabel}),
		stores: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stores",
			Help:      "number of cache identifiers opened",
		}),
	}

	var errs []error
	for _, c := range []prometheus.Collector{m.gets, m.writes, m.latency, m.stores} {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	return m, nil
}
