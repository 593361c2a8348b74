// Package metrics exposes Prometheus collectors for document loading and caching.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes.
const (
	OutcomeOK            = "ok"
	OutcomeFetchFailed   = "fetch_failed"
	OutcomeParseFailed   = "parse_failed"
	OutcomeInvalidFormat = "invalid_format"
)

// Collector bundles the loader metrics. A nil *Collector records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	Fetches       *prometheus.CounterVec
	CacheRequests *prometheus.CounterVec
	Coalesced     prometheus.Counter
	LoadDurations *prometheus.HistogramVec
	CacheEntries  prometheus.Gauge
}

// New registers the collectors against reg, defaulting to the global registry when nil.
// Registering twice against the same registry returns the existing collectors.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	fetches, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geodash_fetch_total",
		Help: "GeoJSON source fetches, labeled by source and outcome.",
	}, []string{"source", "outcome"}), "geodash_fetch_total")
	if err != nil {
		return nil, err
	}

	cacheRequests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geodash_cache_requests_total",
		Help: "Document cache lookups, labeled by hit or miss.",
	}, []string{"result"}), "geodash_cache_requests_total")
	if err != nil {
		return nil, err
	}

	coalesced, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geodash_coalesced_total",
		Help: "Loads that joined an in-flight fetch instead of starting one.",
	}), "geodash_coalesced_total")
	if err != nil {
		return nil, err
	}

	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geodash_load_duration_seconds",
		Help:    "Time to fetch, parse and normalize a source.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"source"}), "geodash_load_duration_seconds")
	if err != nil {
		return nil, err
	}

	entries, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "geodash_cache_entries",
		Help: "Documents currently held in the cache.",
	}), "geodash_cache_entries")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:      gatherer,
		Fetches:       fetches,
		CacheRequests: cacheRequests,
		Coalesced:     coalesced,
		LoadDurations: durations,
		CacheEntries:  entries,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Fetch records one completed fetch of source.
func (c *Collector) Fetch(source, outcome string, took time.Duration) {
	if c == nil {
		return
	}
	c.Fetches.WithLabelValues(source, outcome).Inc()
	if outcome == OutcomeOK {
		c.LoadDurations.WithLabelValues(source).Observe(took.Seconds())
	}
}

// CacheLookup records a cache hit or miss.
func (c *Collector) CacheLookup(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.CacheRequests.WithLabelValues(result).Inc()
}

// Join records a load that attached to an in-flight fetch.
func (c *Collector) Join() {
	if c == nil {
		return
	}
	c.Coalesced.Inc()
}

// SetCacheEntries updates the cache size gauge.
func (c *Collector) SetCacheEntries(n int) {
	if c == nil {
		return
	}
	c.CacheEntries.Set(float64(n))
}

func register[T prometheus.Collector](reg prometheus.Registerer, col T, name string) (T, error) {
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return col, nil
}
