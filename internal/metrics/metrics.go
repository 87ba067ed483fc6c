package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "metasearch",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, route pattern and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "metasearch",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10},
	}, []string{"method", "path"})

	EngineRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "metasearch",
		Name:      "engine_requests_total",
		Help:      "Total requests to search engines by engine and outcome (ok, empty, error, timeout, blocked, disabled).",
	}, []string{"engine", "status"})

	EngineRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "metasearch",
		Name:      "engine_request_duration_seconds",
		Help:      "Search engine request duration in seconds.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"engine"})

	EngineAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "metasearch",
		Name:      "engine_available",
		Help:      "Whether an engine is available (1) or blocked by the failure breaker (0).",
	}, []string{"engine"})

	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "metasearch",
		Name:      "cache_hits_total",
		Help:      "Total cache hits by cache name.",
	}, []string{"cache"})

	CacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "metasearch",
		Name:      "cache_misses_total",
		Help:      "Total cache misses by cache name.",
	}, []string{"cache"})

	CacheEvictionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "metasearch",
		Name:      "cache_evictions_total",
		Help:      "Entries removed by capacity eviction or expiry, by cache name and reason.",
	}, []string{"cache", "reason"})

	CacheEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "metasearch",
		Name:      "cache_entries",
		Help:      "Current number of entries by cache name.",
	}, []string{"cache"})

	ImageLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "metasearch",
		Name:      "image_lookups_total",
		Help:      "Image lookups by outcome (found, missing, error, cached).",
	}, []string{"status"})

	SuggestionRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "metasearch",
		Name:      "suggestion_requests_total",
		Help:      "Suggestion lookups by engine and outcome (ok, error, cached, skipped).",
	}, []string{"engine", "status"})

	MergedResults = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "metasearch",
		Name:      "merged_results",
		Help:      "Unique results per aggregation before truncation.",
		Buckets:   []float64{0, 1, 5, 10, 20, 50, 100, 200},
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		EngineRequestsTotal,
		EngineRequestDuration,
		EngineAvailable,
		CacheHitsTotal,
		CacheMissesTotal,
		CacheEvictionsTotal,
		CacheEntries,
		ImageLookupsTotal,
		SuggestionRequestsTotal,
		MergedResults,
	)
}
