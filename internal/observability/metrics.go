package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the discovery service,
// organized by subsystem: searches, cache, and upstream catalog requests.
// Everything is registered via promauto on the default registry.
type Metrics struct {
	// SearchesTotal counts search invocations, labeled by response status.
	SearchesTotal *prometheus.CounterVec

	// SearchDuration observes end-to-end search duration in seconds.
	SearchDuration prometheus.Histogram

	// ExpertSearchesTotal counts expert search invocations by status.
	ExpertSearchesTotal *prometheus.CounterVec

	// ResultsPerSearch observes the distribution of ranked results returned.
	ResultsPerSearch prometheus.Histogram

	// CacheHits counts result cache hits.
	CacheHits prometheus.Counter

	// CacheMisses counts result cache misses, including TTL expiries.
	CacheMisses prometheus.Counter

	// UpstreamRequests counts catalog requests, labeled by status class
	// (2xx, 4xx, 5xx, network).
	UpstreamRequests *prometheus.CounterVec

	// UpstreamRetries counts retry attempts against the catalog.
	UpstreamRetries prometheus.Counter

	// UpstreamRateLimited counts 429 responses from the catalog.
	UpstreamRateLimited prometheus.Counter

	// QueryStructuringTotal counts query-structuring LLM calls by outcome.
	QueryStructuringTotal *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance with all metrics initialized.
// The namespace prefixes every metric name.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		SearchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Total number of literature searches by status",
		}, []string{"status"}),
		SearchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of literature searches in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		ExpertSearchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expert_searches_total",
			Help:      "Total number of expert searches by status",
		}, []string{"status"}),
		ResultsPerSearch: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "results_per_search",
			Help:      "Number of ranked results returned per search",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100, 200},
		}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of result cache hits",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of result cache misses",
		}),
		UpstreamRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of upstream catalog requests by status class",
		}, []string{"class"}),
		UpstreamRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_retries_total",
			Help:      "Total number of upstream request retries",
		}),
		UpstreamRateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_rate_limited_total",
			Help:      "Total number of upstream 429 responses",
		}),
		QueryStructuringTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_structuring_total",
			Help:      "Total number of query structuring calls by outcome",
		}, []string{"outcome"}),
	}
}
