package rag

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the retrieval pipeline. A nil *Metrics disables
// instrumentation, so callers never need to guard.
type Metrics struct {
	queriesTotal   *prometheus.CounterVec
	stageSeconds   *prometheus.HistogramVec
	retrievedCount prometheus.Histogram
	contextChars   prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		queriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "secondbrain",
			Subsystem: "rag",
			Name:      "queries_total",
			Help:      "RAG queries by outcome (ok, degraded, empty, error).",
		}, []string{"outcome"}),
		stageSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "secondbrain",
			Subsystem: "rag",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		retrievedCount: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "secondbrain",
			Subsystem: "rag",
			Name:      "retrieved_chunks",
			Help:      "Fused candidate count per query before reranking.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 30, 50},
		}),
		contextChars: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "secondbrain",
			Subsystem: "rag",
			Name:      "context_chars",
			Help:      "Characters of assembled context per query.",
			Buckets:   prometheus.ExponentialBuckets(256, 2, 8),
		}),
	}
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) CountQuery(outcome string) {
	if m == nil {
		return
	}
	m.queriesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRetrieved(n int) {
	if m == nil {
		return
	}
	m.retrievedCount.Observe(float64(n))
}

func (m *Metrics) ObserveContextSize(chars int) {
	if m == nil {
		return
	}
	m.contextChars.Observe(float64(chars))
}
