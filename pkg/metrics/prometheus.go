package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	eventsIngested *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	openInterest   *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		eventsIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perplens_events_ingested_total",
				Help: "Total number of market events ingested per backend",
			},
			[]string{"backend", "symbol"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perplens_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		openInterest: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "perplens_open_interest",
				Help: "Last reported open interest for a symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "perplens_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordEventIngested records one ingested event for a backend.
func (r *Recorder) RecordEventIngested(backend, symbol string) {
	r.eventsIngested.WithLabelValues(backend, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordOpenInterest records the last open interest for a symbol.
func (r *Recorder) RecordOpenInterest(symbol string, oi float64) {
	r.openInterest.WithLabelValues(symbol).Set(oi)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
