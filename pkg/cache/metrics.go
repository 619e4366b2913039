package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for cache operations.
var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nlp_cache_hits_total",
		Help: "Total number of response cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nlp_cache_misses_total",
		Help: "Total number of response cache misses",
	})

	CacheBytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nlp_cache_written_bytes_total",
		Help: "Bytes of entries stored in the response cache",
	})

	CacheBytesServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nlp_cache_served_bytes_total",
		Help: "Bytes of entries served from the response cache",
	})

	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nlp_cache_errors_total",
		Help: "Total number of cache operation errors",
	}, []string{"operation"})
)
