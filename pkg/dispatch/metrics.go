package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for dispatching and retries.
var (
	recordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nlp_records_total",
		Help: "Total number of records dispatched by outcome",
	}, []string{"outcome"})

	attemptDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nlp_call_attempt_duration_seconds",
		Help:    "Duration of single call attempts, excluding rate limit waits",
		Buckets: prometheus.DefBuckets,
	})

	inFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nlp_calls_in_flight",
		Help: "Number of call attempts currently running",
	})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nlp_retries_total",
		Help: "Total number of retry attempts by failure kind",
	}, []string{"kind"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nlp_retry_backoff_seconds",
		Help:    "Backoff duration for retries by failure kind",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"kind"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nlp_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by failure kind",
	}, []string{"kind"})
)
