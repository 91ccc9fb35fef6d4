package match

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricMatchRunsTotal        = "match_runs_total"
	MetricMatchRunErrors        = "match_run_errors_total"
	MetricMatchRunDuration      = "match_run_duration_seconds"
	MetricMatchPairsScored      = "match_pairs_scored_total"
	MetricMatchLastRunTimestamp = "match_last_run_timestamp"
	MetricMatchLastRunFounders  = "match_last_run_founders"
	MetricMatchLastRunProviders = "match_last_run_providers"
	MetricMatchLastRunSkipped   = "match_last_run_skipped_profiles"
	MetricMatchSinkErrors       = "match_sink_errors_total"
)

// Metrics contains Prometheus metrics for matching runs.
// All operations are thread-safe.
type Metrics struct {
	runsTotal        prometheus.Counter
	runErrors        prometheus.Counter
	runDuration      prometheus.Histogram
	pairsScored      prometheus.Counter
	lastRunTimestamp prometheus.Gauge
	lastRunFounders  prometheus.Gauge
	lastRunProviders prometheus.Gauge
	lastRunSkipped   prometheus.Gauge
	sinkErrors       *prometheus.CounterVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		runsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricMatchRunsTotal,
			Help: "Total number of completed matching runs",
		}),
		runErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricMatchRunErrors,
			Help: "Total number of matching runs that failed",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricMatchRunDuration,
			Help:    "Histogram of matching run duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		}),
		pairsScored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricMatchPairsScored,
			Help: "Total number of founder/provider pairs scored",
		}),
		lastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricMatchLastRunTimestamp,
			Help: "Unix timestamp of the last completed matching run",
		}),
		lastRunFounders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricMatchLastRunFounders,
			Help: "Number of founders in the last matching run",
		}),
		lastRunProviders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricMatchLastRunProviders,
			Help: "Number of providers in the last matching run",
		}),
		lastRunSkipped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricMatchLastRunSkipped,
			Help: "Number of profiles skipped for an unknown role in the last matching run",
		}),
		sinkErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricMatchSinkErrors,
				Help: "Total number of result publication errors by sink",
			},
			[]string{"sink"},
		),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncRunsTotal increments the completed runs counter.
func (m *Metrics) IncRunsTotal() {
	m.runsTotal.Inc()
}

// IncRunErrors increments the failed runs counter.
func (m *Metrics) IncRunErrors() {
	m.runErrors.Inc()
}

// ObserveRunDuration records a run duration sample.
func (m *Metrics) ObserveRunDuration(seconds float64) {
	m.runDuration.Observe(seconds)
}

// AddPairsScored adds n scored pairs.
func (m *Metrics) AddPairsScored(n int) {
	m.pairsScored.Add(float64(n))
}

// SetLastRun records the shape of the last completed run.
func (m *Metrics) SetLastRun(timestamp float64, founders, providers, skipped int) {
	m.lastRunTimestamp.Set(timestamp)
	m.lastRunFounders.Set(float64(founders))
	m.lastRunProviders.Set(float64(providers))
	m.lastRunSkipped.Set(float64(skipped))
}

// IncSinkErrors increments the error counter for a sink.
func (m *Metrics) IncSinkErrors(sink string) {
	m.sinkErrors.WithLabelValues(sink).Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.runsTotal,
		m.runErrors,
		m.runDuration,
		m.pairsScored,
		m.lastRunTimestamp,
		m.lastRunFounders,
		m.lastRunProviders,
		m.lastRunSkipped,
		m.sinkErrors,
	}
}
