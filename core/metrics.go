package core

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// stageBuckets are seconds; transcription of a long lecture can take minutes.
var stageBuckets = []float64{0.05, 0.25, 1, 5, 15, 60, 300, 1200}

// Metrics records lifecycle and query outcomes. A nil *Metrics is a no-op.
type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	queries    *prometheus.CounterVec
	stages     *prometheus.HistogramVec
}

// NewMetrics registers the collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lecturerag_lecture_operations_total",
			Help: "Lecture ingest, delete and reindex operations by outcome",
		}, []string{"operation", "outcome"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lecturerag_queries_total",
			Help: "Questions answered by outcome",
		}, []string{"outcome"}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lecturerag_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: stageBuckets,
		}, []string{"stage"}),
	}
	reg.MustRegister(m.operations, m.queries, m.stages)
	return m
}

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome(err)).Inc()
}

func (m *Metrics) RecordQuery(err error) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.WithLabelValues(stage).Observe(d.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
