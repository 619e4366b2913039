package dispatch

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/Sternrassler/nlp-enrich/pkg/apierror"
)

// RetryPolicy holds the configuration for retry logic.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// BaseDelay is the backoff before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the backoff between attempts.
	MaxDelay time.Duration

	// Multiplier grows the backoff after each retry.
	Multiplier float64

	// Jitter randomizes each backoff by ±Jitter (0.2 = ±20%).
	Jitter float64
}

// DefaultRetryPolicy returns the default retry configuration.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.2,
	}
}

// Validate checks the policy bounds.
func (p RetryPolicy) Validate() error {
	switch {
	case p.MaxRetries < 0:
		return apierror.Configf("max_retries", "must not be negative, got %d", p.MaxRetries)
	case p.BaseDelay < 0:
		return apierror.Configf("base_delay", "must not be negative, got %s", p.BaseDelay)
	case p.MaxDelay < p.BaseDelay:
		return apierror.Configf("max_delay", "must be >= base_delay (%s), got %s", p.BaseDelay, p.MaxDelay)
	case p.Multiplier < 1:
		return apierror.Configf("backoff_multiplier", "must be >= 1, got %g", p.Multiplier)
	case p.Jitter < 0 || p.Jitter >= 1:
		return apierror.Configf("jitter", "must be in [0,1), got %g", p.Jitter)
	}
	return nil
}

// MaxAttempts returns the total number of attempts including the first.
func (p RetryPolicy) MaxAttempts() int {
	return p.MaxRetries + 1
}

// Backoff returns the un-jittered delay before retry number n (1-based).
func (p RetryPolicy) Backoff(n int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 1; i < n; i++ {
		d *= p.Multiplier
		if d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	return min(time.Duration(d), p.MaxDelay)
}

func (p RetryPolicy) jittered(d time.Duration) time.Duration {
	if p.Jitter == 0 || d == 0 {
		return d
	}
	factor := 1 - p.Jitter + rand.Float64()*2*p.Jitter
	return time.Duration(float64(d) * factor)
}

// RetryHook is called before each backoff sleep.
type RetryHook func(attempt int, err error, backoff time.Duration)

// Do runs fn until it succeeds, returns a non-retryable error, or the retry
// budget is spent. It returns the number of attempts made.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error, onRetry RetryHook) (int, error) {
	var lastErr error
	maxAttempts := p.MaxAttempts()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if !apierror.IsRetryable(err) {
			return attempt, err
		}

		// If this was the last attempt, don't wait
		if attempt >= maxAttempts {
			break
		}

		kind := string(apierror.KindOf(err))
		backoff := p.jittered(p.Backoff(attempt))
		retriesTotal.WithLabelValues(kind).Inc()
		retryBackoffSeconds.WithLabelValues(kind).Observe(backoff.Seconds())
		if onRetry != nil {
			onRetry(attempt, err, backoff)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, fmt.Errorf("%w: %v", apierror.ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}

	retryExhaustedTotal.WithLabelValues(string(apierror.KindOf(lastErr))).Inc()
	return maxAttempts, fmt.Errorf("%w after %d attempts: %w", apierror.ErrRetryExhausted, maxAttempts, lastErr)
}
