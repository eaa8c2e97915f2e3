package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	skippedDays  *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	fetchesTotal *prometheus.CounterVec
	reportDays   *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessionscope_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sessionscope_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		skippedDays: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessionscope_skipped_days_total",
				Help: "Session days dropped because their boundaries did not resolve",
			},
			[]string{"session", "reason"},
		),
		cacheLookups: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessionscope_cache_lookups_total",
				Help: "Series cache lookups by layer and outcome",
			},
			[]string{"level", "outcome"},
		),
		fetchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessionscope_source_fetches_total",
				Help: "Upstream market data fetches",
			},
			[]string{"source", "symbol"},
		),
		reportDays: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessionscope_report_days_total",
				Help: "Daily session records produced per session",
			},
			[]string{"session"},
		),
	}
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordSkippedDay records a session day skipped during extraction.
func (r *Recorder) RecordSkippedDay(session, reason string) {
	r.skippedDays.WithLabelValues(session, reason).Inc()
}

// RecordCache records a series cache lookup outcome.
func (r *Recorder) RecordCache(level string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	r.cacheLookups.WithLabelValues(level, outcome).Inc()
}

// RecordFetch records an upstream fetch.
func (r *Recorder) RecordFetch(source, symbol string) {
	r.fetchesTotal.WithLabelValues(source, symbol).Inc()
}

// RecordReportBuilt records how many day records a build produced.
func (r *Recorder) RecordReportBuilt(session string, days int) {
	r.reportDays.WithLabelValues(session).Add(float64(days))
}
