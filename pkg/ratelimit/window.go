package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/nlp-enrich/pkg/apierror"
)

// maxPrealloc bounds the initial timestamp buffer; larger quotas grow it on demand.
const maxPrealloc = 1024

// SlidingWindow is an in-memory rolling-window limiter.
type SlidingWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	calls  []time.Time
	now    func() time.Time
	logger zerolog.Logger
}

// NewSlidingWindow allows at most limit calls in any trailing window.
func NewSlidingWindow(limit int, window time.Duration, logger zerolog.Logger) (*SlidingWindow, error) {
	if limit <= 0 {
		return nil, apierror.Configf("max_calls_per_minute", "must be positive, got %d", limit)
	}
	if window <= 0 {
		return nil, apierror.Configf("rate_limit_window", "must be positive, got %s", window)
	}
	return &SlidingWindow{
		limit:  limit,
		window: window,
		calls:  make([]time.Time, 0, min(limit, maxPrealloc)),
		now:    time.Now,
		logger: logger,
	}, nil
}

// Wait implements Limiter.
func (w *SlidingWindow) Wait(ctx context.Context) error {
	start := time.Now()
	throttled := false
	defer func() {
		rateLimitWaitSeconds.Observe(time.Since(start).Seconds())
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		wait, ok := w.reserve()
		if ok {
			return nil
		}

		if !throttled {
			throttled = true
			rateLimitThrottlesTotal.Inc()
			w.logger.Debug().
				Int("limit", w.limit).
				Dur("window", w.window).
				Dur("wait", wait).
				Msg("Rate limit window full, waiting for slot")
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve records a call if the window has room. Otherwise it returns the
// time until the oldest call leaves the window.
func (w *SlidingWindow) reserve() (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.evict(now)

	if len(w.calls) < w.limit {
		w.calls = append(w.calls, now)
		rateLimitWindowUsed.Set(float64(len(w.calls)))
		return 0, true
	}

	wait := w.calls[0].Add(w.window).Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

func (w *SlidingWindow) evict(now time.Time) {
	i := 0
	for i < len(w.calls) && now.Sub(w.calls[i]) >= w.window {
		i++
	}
	if i > 0 {
		w.calls = append(w.calls[:0], w.calls[i:]...)
	}
}

// State returns a snapshot of the window.
func (w *SlidingWindow) State() WindowState {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.evict(w.now())
	state := WindowState{Used: len(w.calls), Limit: w.limit, Window: w.window}
	if len(w.calls) > 0 {
		state.Oldest = w.calls[0]
	}
	return state
}
