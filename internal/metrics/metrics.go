// Package metrics provides Prometheus instrumentation for the indexing
// pipeline. Metrics are owned by a struct rather than package globals so
// independent pipelines (and tests) can each carry their own registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments one pipeline. It satisfies both the upstream client's
// and the enricher's recorder interfaces.
type Metrics struct {
	registry *prometheus.Registry

	UpstreamRequests *prometheus.CounterVec
	QuotaUnitsUsed   prometheus.Counter
	QuotaRemaining   prometheus.Gauge
	CacheLookups     *prometheus.CounterVec
	VideosIndexed    prometheus.Counter
	MatchesSelected  prometheus.Counter
	PhaseDuration    *prometheus.HistogramVec
}

// New builds a Metrics set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		UpstreamRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "indexer_upstream_requests_total",
			Help: "Upstream API requests, by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),

		QuotaUnitsUsed: factory.NewCounter(prometheus.CounterOpts{
			Name: "indexer_quota_units_used_total",
			Help: "Quota units reserved against the daily limit.",
		}),

		QuotaRemaining: factory.NewGauge(prometheus.GaugeOpts{
			Name: "indexer_quota_units_remaining",
			Help: "Quota units still available in the daily budget.",
		}),

		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "indexer_enrichment_cache_lookups_total",
			Help: "Enrichment cache lookups, by result.",
		}, []string{"result"}),

		VideosIndexed: factory.NewCounter(prometheus.CounterOpts{
			Name: "indexer_videos_indexed_total",
			Help: "Videos added to the local index.",
		}),

		MatchesSelected: factory.NewCounter(prometheus.CounterOpts{
			Name: "indexer_matches_selected_total",
			Help: "Matches that survived scoring and the per-opening cap.",
		}),

		PhaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "indexer_phase_duration_seconds",
			Help:    "Wall-clock duration of each pipeline phase.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"phase"}),
	}
}

// Registry exposes the underlying registry for the ops server.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest records one upstream request outcome.
func (m *Metrics) ObserveRequest(endpoint, outcome string) {
	m.UpstreamRequests.WithLabelValues(endpoint, outcome).Inc()
}

// ObserveCacheLookup records an enrichment cache hit or miss.
func (m *Metrics) ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// SetQuotaRemaining updates the gauge from the ledger's view.
func (m *Metrics) SetQuotaRemaining(remaining int) {
	m.QuotaRemaining.Set(float64(remaining))
}

// AddQuotaUnits records units reserved since the last call.
func (m *Metrics) AddQuotaUnits(units int) {
	m.QuotaUnitsUsed.Add(float64(units))
}
