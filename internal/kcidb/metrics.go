package kcidb

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks generator activity.
type Metrics struct {
	registry *prometheus.Registry

	logsFetched *prometheus.CounterVec
	cacheHits   prometheus.Counter
	faultsFound *prometheus.CounterVec
	issues      *prometheus.CounterVec
	incidents   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
}

// NewMetrics creates the generator metrics on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		logsFetched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logspec_kcidb_logs_fetched_total",
				Help: "Total number of log downloads, by outcome",
			},
			[]string{"result"},
		),
		cacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "logspec_kcidb_log_cache_hits_total",
				Help: "Total number of results whose log was already claimed",
			},
		),
		faultsFound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logspec_kcidb_faults_found_total",
				Help: "Total number of faults found in logs",
			},
			[]string{"error_type"},
		),
		issues: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logspec_kcidb_issues_generated_total",
				Help: "Total number of new issues generated",
			},
			[]string{"object_type"},
		),
		incidents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logspec_kcidb_incidents_generated_total",
				Help: "Total number of incidents generated",
			},
			[]string{"object_type"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "logspec_kcidb_run_duration_seconds",
				Help:    "Duration of generator runs",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"object_type"},
		),
	}
	m.registry.MustRegister(m.logsFetched, m.cacheHits, m.faultsFound, m.issues, m.incidents, m.runDuration)
	return m
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) recordFetch(result string) {
	m.logsFetched.WithLabelValues(result).Inc()
}

func (m *Metrics) recordCacheHit() {
	m.cacheHits.Inc()
}

func (m *Metrics) recordFault(errorType string) {
	m.faultsFound.WithLabelValues(errorType).Inc()
}

func (m *Metrics) recordRun(objectType string, issues, incidents int, d time.Duration) {
	m.issues.WithLabelValues(objectType).Add(float64(issues))
	m.incidents.WithLabelValues(objectType).Add(float64(incidents))
	m.runDuration.WithLabelValues(objectType).Observe(d.Seconds())
}
