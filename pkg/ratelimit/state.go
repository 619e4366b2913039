// Package ratelimit caps the number of remote calls issued within a rolling
// time window. Callers that would exceed the cap wait for the oldest call in
// the window to age out; they are never rejected.
//
// Two implementations share the Limiter interface: SlidingWindow keeps the
// call log in process memory, RedisWindow keeps it in a Redis sorted set so
// several workers on different hosts can share one quota.
package ratelimit

import (
	"context"
	"time"
)

// DefaultWindow is the rolling window used for per-minute quotas.
const DefaultWindow = time.Minute

// Redis key prefix for window state storage.
const RedisKeyPrefix = "nlp:rate_limit"

// UsageWarningRatio marks a window as busy once this share of the quota is used.
const UsageWarningRatio = 0.8

// Limiter blocks until a call may be issued.
type Limiter interface {
	// Wait reserves a slot in the current window, waiting as long as needed.
	// It returns ctx.Err() if the context ends first.
	Wait(ctx context.Context) error
}

// WindowState is a snapshot of a rolling window.
type WindowState struct {
	// Used is the number of calls recorded in the trailing window.
	Used int

	// Limit is the maximum number of calls per window.
	Limit int

	// Window is the window length.
	Window time.Duration

	// Oldest is the time of the oldest call still inside the window.
	Oldest time.Time
}

// Remaining returns the number of calls that may still be issued right now.
func (s WindowState) Remaining() int {
	return max(s.Limit-s.Used, 0)
}

// IsSaturated reports whether the next caller has to wait.
func (s WindowState) IsSaturated() bool {
	return s.Used >= s.Limit
}

// IsBusy reports whether usage crossed UsageWarningRatio.
func (s WindowState) IsBusy() bool {
	return s.Limit > 0 && float64(s.Used) >= float64(s.Limit)*UsageWarningRatio
}

// TimeUntilSlot returns how long a caller arriving at now would wait.
func (s WindowState) TimeUntilSlot(now time.Time) time.Duration {
	if !s.IsSaturated() || s.Oldest.IsZero() {
		return 0
	}
	wait := s.Oldest.Add(s.Window).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}
