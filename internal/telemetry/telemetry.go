// Package telemetry holds the service's Prometheus collectors.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "healthquery"

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"
)

// Recorder records query-path metrics. A nil *Recorder is valid and records nothing,
// so components can run without telemetry in tests.
type Recorder struct {
	registry *prometheus.Registry

	skippedRecords *prometheus.CounterVec
	sourceFetch    *prometheus.HistogramVec
	requests       *prometheus.CounterVec
}

// NewRecorder registers collectors on a fresh registry, including the Go and
// process collectors.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewRecorderWith(reg)
}

// NewRecorderWith registers collectors on reg.
func NewRecorderWith(reg *prometheus.Registry) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		skippedRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Records whose start time fell outside every bucket of an aggregation.",
		}, []string{"metric_type"}),
		sourceFetch: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_seconds",
			Help:      "Latency of a single page fetch from the record source.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Query operations by outcome.",
		}, []string{"operation", "outcome"}),
	}
}

// RecordsSkipped adds n out-of-window records for metricType.
func (r *Recorder) RecordsSkipped(metricType string, n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.skippedRecords.WithLabelValues(metricType).Add(float64(n))
}

// SourceFetch observes one record source call.
func (r *Recorder) SourceFetch(elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	r.sourceFetch.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// Request counts one completed operation.
func (r *Recorder) Request(operation, outcome string) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(operation, outcome).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
