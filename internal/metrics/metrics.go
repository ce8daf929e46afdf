package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the analysis pipeline.
type Metrics struct {
	AnalysesTotal    *prometheus.CounterVec
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	QuotaDenials     *prometheus.CounterVec
	SourceErrors     *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
}

// New registers the instruments on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		AnalysesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "threatintel",
			Name:      "analyses_total",
			Help:      "Analyses served, by outcome (computed, cached, coalesced).",
		}, []string{"outcome"}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "threatintel",
			Name:      "cache_hits_total",
			Help:      "Result cache hits.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "threatintel",
			Name:      "cache_misses_total",
			Help:      "Result cache misses.",
		}),
		QuotaDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "threatintel",
			Name:      "quota_denials_total",
			Help:      "Requests denied by quota, by exhausted ceiling.",
		}, []string{"reason"}),
		SourceErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "threatintel",
			Name:      "source_errors_total",
			Help:      "Intelligence source failures, by source and kind.",
		}, []string{"source", "kind"}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "threatintel",
			Name:      "analysis_duration_seconds",
			Help:      "Wall time of non-cached analyses.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
}
