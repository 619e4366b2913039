// Package metrics exposes the Prometheus metrics of the enrichment job.
// Collectors are declared with promauto in the packages that update them
// (client, cache, dispatch, ratelimit); this package serves them.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the registry every collector is registered with via promauto.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer backing Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Server serves /metrics until its context is cancelled.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger zerolog.Logger
}

// Listen binds addr and returns a Server ready to Serve.
func Listen(addr string, logger zerolog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return &Server{
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:     ln,
		logger: logger,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Serve blocks until ctx is done, then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.Addr()).Msg("Serving metrics")
		errCh <- s.srv.Serve(s.ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - nlp_requests_total{feature, status} (Counter): Service calls by feature and outcome
//   - nlp_request_duration_seconds{feature} (Histogram): Service call latency
//   - nlp_errors_total{kind} (Counter): Service errors by kind
//
// Dispatch Metrics (pkg/dispatch):
//   - nlp_records_total{outcome} (Counter): Records finished as succeeded or failed
//   - nlp_call_attempt_duration_seconds (Histogram): Single attempt latency
//   - nlp_calls_in_flight (Gauge): Attempts currently running
//   - nlp_retries_total{kind} (Counter): Retries by failure kind
//   - nlp_retry_backoff_seconds{kind} (Histogram): Backoff before a retry
//   - nlp_retry_exhausted_total{kind} (Counter): Records that used up every attempt
//
// Rate Limit Metrics (pkg/ratelimit):
//   - nlp_rate_limit_wait_seconds (Histogram): Time spent waiting for a window slot
//   - nlp_rate_limit_throttles_total (Counter): Attempts that had to wait
//   - nlp_rate_limit_window_used (Gauge): Calls in the current window
//
// Cache Metrics (pkg/cache):
//   - nlp_cache_hits_total (Counter): Responses served from Redis
//   - nlp_cache_misses_total (Counter): Lookups that went to the service
//   - nlp_cache_written_bytes_total (Counter): Bytes stored in the cache
//   - nlp_cache_served_bytes_total (Counter): Bytes served from the cache
//   - nlp_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Failure ratio
//   sum(rate(nlp_records_total{outcome="failed"}[5m])) / sum(rate(nlp_records_total[5m]))
//
//   # Retries by kind
//   sum by (kind) (rate(nlp_retries_total[5m]))
//
//   # P95 call latency
//   histogram_quantile(0.95, rate(nlp_request_duration_seconds_bucket[5m]))
