package embedding

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CacheMetrics holds the Prometheus metrics owned by the embedding cache.
// promauto.With(reg) is used so tests can inject a fresh registry.
type CacheMetrics struct {
	// hitsTotal counts cache hits, partitioned by provider and tier
	// ("local" or "distributed").
	hitsTotal *prometheus.CounterVec

	// missesTotal counts cache misses that reached the upstream provider.
	missesTotal *prometheus.CounterVec

	// generationSeconds records upstream generation latency on misses.
	generationSeconds *prometheus.HistogramVec
}

func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	factory := promauto.With(reg)

	return &CacheMetrics{
		hitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "secondbrain",
			Subsystem: "embedding_cache",
			Name:      "hits_total",
			Help:      "Total embedding cache hits, partitioned by provider and cache tier.",
		}, []string{"provider", "tier"}),

		missesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "secondbrain",
			Subsystem: "embedding_cache",
			Name:      "misses_total",
			Help:      "Total embedding cache misses that triggered an upstream call.",
		}, []string{"provider"}),

		generationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "secondbrain",
			Subsystem: "embedding",
			Name:      "generation_seconds",
			Help:      "Latency of upstream embedding generation on cache misses.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider"}),
	}
}

func (m *CacheMetrics) hit(provider, tier string) {
	if m == nil {
		return
	}
	m.hitsTotal.WithLabelValues(provider, tier).Inc()
}

func (m *CacheMetrics) miss(provider string) {
	if m == nil {
		return
	}
	m.missesTotal.WithLabelValues(provider).Inc()
}

func (m *CacheMetrics) observeGeneration(provider string, seconds float64) {
	if m == nil {
		return
	}
	m.generationSeconds.WithLabelValues(provider).Observe(seconds)
}
