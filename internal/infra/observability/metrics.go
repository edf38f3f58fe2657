package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the tracker.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	reportDuration    *prometheus.HistogramVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	balanceRecomputes *prometheus.CounterVec
	mutations         *prometheus.CounterVec
	storeErrors       *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		reportDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finbook_report_duration_seconds",
				Help:    "Duration of report computations by kind.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"report"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finbook_cache_hits_total",
				Help: "Total report cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finbook_cache_misses_total",
				Help: "Total report cache misses.",
			},
			[]string{"cache"},
		),
		balanceRecomputes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finbook_balance_recomputes_total",
				Help: "Total balance recomputations.",
			},
			[]string{"scope"},
		),
		mutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finbook_transaction_mutations_total",
				Help: "Total transaction mutations processed.",
			},
			[]string{"operation"},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finbook_store_errors_total",
				Help: "Total errors from the record store backend.",
			},
			[]string{"store"},
		),
	}
}

// RecordReportDuration records how long a report computation took.
func (m *Metrics) RecordReportDuration(report string, d time.Duration) {
	m.reportDuration.WithLabelValues(report).Observe(d.Seconds())
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrBalanceRecompute increments the balance recompute counter.
// scope is "book" or "segment".
func (m *Metrics) IncrBalanceRecompute(scope string) {
	m.balanceRecomputes.WithLabelValues(scope).Inc()
}

// IncrMutation increments the mutation counter for an operation.
func (m *Metrics) IncrMutation(operation string) {
	m.mutations.WithLabelValues(operation).Inc()
}

// IncrStoreError increments the store error counter.
func (m *Metrics) IncrStoreError(store string) {
	m.storeErrors.WithLabelValues(store).Inc()
}
