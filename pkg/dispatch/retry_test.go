package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/nlp-enrich/pkg/apierror"
)

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2}

	tests := []struct {
		retry int
		want  time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{12, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Backoff(tt.retry); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.retry, got, tt.want)
		}
	}
}

func TestRetryPolicy_JitterBounds(t *testing.T) {
	p := RetryPolicy{Jitter: 0.2}
	for i := 0; i < 200; i++ {
		got := p.jittered(time.Second)
		if got < 800*time.Millisecond || got > 1200*time.Millisecond {
			t.Fatalf("jittered(1s) = %v, want within ±20%%", got)
		}
	}
}

func TestRetryPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		wantErr bool
	}{
		{name: "default", policy: DefaultRetryPolicy()},
		{name: "no retries", policy: RetryPolicy{Multiplier: 1}},
		{name: "max below base", policy: RetryPolicy{BaseDelay: time.Second, MaxDelay: time.Millisecond, Multiplier: 2}, wantErr: true},
		{name: "shrinking multiplier", policy: RetryPolicy{Multiplier: 0.5}, wantErr: true},
		{name: "jitter too large", policy: RetryPolicy{Multiplier: 2, Jitter: 1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetryPolicy_Do(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	t.Run("non retryable stops immediately", func(t *testing.T) {
		calls := 0
		n, err := p.Do(context.Background(), func(int) error {
			calls++
			return apierror.FromStatus(400, "bad", nil)
		}, nil)
		if calls != 1 || n != 1 || err == nil {
			t.Errorf("Do() = %d, %v after %d calls", n, err, calls)
		}
		if errors.Is(err, apierror.ErrRetryExhausted) {
			t.Error("permanent error must not be reported as exhausted")
		}
	})

	t.Run("exhausted", func(t *testing.T) {
		hooks := 0
		n, err := p.Do(context.Background(), func(int) error {
			return apierror.FromStatus(500, "down", nil)
		}, func(int, error, time.Duration) { hooks++ })
		if n != 4 || hooks != 3 {
			t.Errorf("Do() attempts = %d, hooks = %d, want 4 and 3", n, hooks)
		}
		if !errors.Is(err, apierror.ErrRetryExhausted) {
			t.Errorf("Do() error = %v, want ErrRetryExhausted", err)
		}
		if apierror.KindOf(err) != apierror.KindUnavailable {
			t.Errorf("KindOf() = %s, want Unavailable", apierror.KindOf(err))
		}
	})

	t.Run("context cancelled during backoff", func(t *testing.T) {
		slow := RetryPolicy{MaxRetries: 3, BaseDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := slow.Do(ctx, func(int) error {
			return apierror.FromStatus(429, "slow down", nil)
		}, nil)
		if !errors.Is(err, apierror.ErrContextCancelled) {
			t.Errorf("Do() error = %v, want ErrContextCancelled", err)
		}
		if apierror.KindOf(err) != apierror.KindCancelled {
			t.Errorf("KindOf() = %s, want Cancelled", apierror.KindOf(err))
		}
	})
}
