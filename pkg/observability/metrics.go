package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and histograms for dataset resolution.
type Metrics struct {
	// Resolutions by outcome={found,not_found,unavailable,invalid,canceled}.
	Resolutions        *prometheus.CounterVec
	ResolutionDuration prometheus.Histogram

	// Per-backend probe metrics.
	Probes        *prometheus.CounterVec   // labels: backend, outcome={found,absent,unavailable,timeout,canceled}
	ProbeDuration *prometheus.HistogramVec // labels: backend

	// Cache lookups by result={hit,miss}.
	CacheLookups *prometheus.CounterVec
	// Cache entries dropped by the file watcher.
	Invalidations prometheus.Counter
}

// NewMetrics creates and registers all resolver metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer registers the metrics on reg.
func NewMetricsWithRegisterer(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climdash",
			Name:      "resolutions_total",
			Help:      "Dataset resolutions by outcome.",
		}, []string{"outcome"}),
		ResolutionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "climdash",
			Name:      "resolution_duration_seconds",
			Help:      "Duration of a complete resolution including cache lookup.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		Probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climdash",
			Name:      "backend_probes_total",
			Help:      "Existence probes by backend and outcome.",
		}, []string{"backend", "outcome"}),
		ProbeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "climdash",
			Name:      "backend_probe_duration_seconds",
			Help:      "Existence probe duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"backend"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climdash",
			Name:      "cache_lookups_total",
			Help:      "Resolution cache lookups by result.",
		}, []string{"result"}),
		Invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climdash",
			Name:      "cache_invalidations_total",
			Help:      "Cache entries dropped because the underlying file changed.",
		}),
	}

	reg.MustRegister(
		m.Resolutions,
		m.ResolutionDuration,
		m.Probes,
		m.ProbeDuration,
		m.CacheLookups,
		m.Invalidations,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewMetricsWithRegisterer(prometheus.NewRegistry())
}
