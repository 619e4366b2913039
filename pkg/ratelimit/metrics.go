package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for rate limiting.
var (
	rateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nlp_rate_limit_wait_seconds",
		Help:    "Time callers spent waiting for a rate limit slot",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60},
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nlp_rate_limit_throttles_total",
		Help: "Total number of calls delayed because the window was full",
	})

	rateLimitWindowUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nlp_rate_limit_window_used",
		Help: "Calls recorded in the current rolling window",
	})
)
