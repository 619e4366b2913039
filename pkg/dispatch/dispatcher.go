package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/nlp-enrich/pkg/apierror"
	"github.com/Sternrassler/nlp-enrich/pkg/job"
	"github.com/Sternrassler/nlp-enrich/pkg/ratelimit"
	"github.com/Sternrassler/nlp-enrich/pkg/table"
)

// Config holds dispatcher configuration.
type Config struct {
	// MaxConcurrency is the number of workers issuing calls.
	MaxConcurrency int

	// MaxCallsPerMinute caps call attempts in any trailing minute. Used only
	// when no Limiter is supplied.
	MaxCallsPerMinute int

	// CallTimeout bounds a single attempt.
	CallTimeout time.Duration

	// Retry is the retry policy for transient failures.
	Retry RetryPolicy

	// FailFast cancels outstanding records after the first failure.
	FailFast bool

	// ProgressEvery logs progress every N completed records (0 disables).
	ProgressEvery int
}

// DefaultConfig returns safe default configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:    4,
		MaxCallsPerMinute: 600,
		CallTimeout:       30 * time.Second,
		Retry:             DefaultRetryPolicy(),
		ProgressEvery:     100,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxConcurrency <= 0 {
		return apierror.Configf("max_concurrency", "must be positive, got %d", c.MaxConcurrency)
	}
	if c.MaxCallsPerMinute <= 0 {
		return apierror.Configf("max_calls_per_minute", "must be positive, got %d", c.MaxCallsPerMinute)
	}
	if c.CallTimeout <= 0 {
		return apierror.Configf("call_timeout", "must be positive, got %s", c.CallTimeout)
	}
	return c.Retry.Validate()
}

// CallFunc performs the remote call for one record.
type CallFunc[T any] func(ctx context.Context, rec table.Record) (T, error)

// Dispatcher runs calls for batches of records.
type Dispatcher[T any] struct {
	config  Config
	limiter ratelimit.Limiter
	state   *job.State
	logger  zerolog.Logger
}

// New creates a dispatcher. A nil limiter is replaced by an in-memory
// rolling window of MaxCallsPerMinute; a nil state by a fresh one.
func New[T any](config Config, limiter ratelimit.Limiter, state *job.State, logger zerolog.Logger) (*Dispatcher[T], error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if limiter == nil {
		w, err := ratelimit.NewSlidingWindow(config.MaxCallsPerMinute, ratelimit.DefaultWindow, logger)
		if err != nil {
			return nil, err
		}
		limiter = w
	}
	if state == nil {
		state = job.NewState(job.ModeLog)
	}
	return &Dispatcher[T]{
		config:  config,
		limiter: limiter,
		state:   state,
		logger:  logger,
	}, nil
}

// State returns the job state updated by this dispatcher.
func (d *Dispatcher[T]) State() *job.State {
	return d.state
}

// Dispatch calls call once per record (plus retries) and returns exactly one
// outcome per record, in input order. The error is non-nil only when an
// internal invariant is violated.
func (d *Dispatcher[T]) Dispatch(ctx context.Context, records []table.Record, call CallFunc[T]) ([]Outcome[T], error) {
	start := time.Now()
	collector := NewCollector[T](records)
	if len(records) == 0 {
		return collector.Outcomes()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan int, len(records))
	for pos := range records {
		queue <- pos
	}
	close(queue)

	workers := min(d.config.MaxConcurrency, len(records))
	d.logger.Debug().
		Int("records", len(records)).
		Int("workers", workers).
		Msg("Starting dispatch")

	var (
		wg       sync.WaitGroup
		done     atomic.Int64
		errOnce  sync.Once
		fatalErr error
	)
	fatal := func(err error) {
		errOnce.Do(func() { fatalErr = err })
		cancel()
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			processed := 0
			for pos := range queue {
				rec := records[pos]

				var out Outcome[T]
				if runCtx.Err() != nil {
					out = Failed[T](&Failure{Index: rec.Index, Kind: apierror.KindCancelled, Message: "run cancelled before call"})
				} else {
					out = d.execute(runCtx, rec, call)
				}

				if err := collector.Put(pos, out); err != nil {
					fatal(err)
					continue
				}
				d.account(out, cancel)
				processed++

				if n := done.Add(1); d.config.ProgressEvery > 0 && n%int64(d.config.ProgressEvery) == 0 {
					d.logger.Info().
						Int64("done", n).
						Int("total", len(records)).
						Float64("progress_pct", float64(n)/float64(len(records))*100).
						Msg("Dispatch progress")
				}
			}
			d.logger.Debug().
				Int("worker_id", workerID).
				Int("records_processed", processed).
				Msg("Worker completed")
		}(i)
	}
	wg.Wait()

	if fatalErr != nil {
		return nil, fatalErr
	}
	outcomes, err := collector.Outcomes()
	if err != nil {
		return nil, err
	}

	d.logger.Debug().
		Int("records", len(records)).
		Dur("duration", time.Since(start)).
		Msg("Dispatch complete")
	return outcomes, nil
}

func (d *Dispatcher[T]) account(out Outcome[T], cancel context.CancelFunc) {
	if out.OK() {
		d.state.RecordSuccess()
		recordsTotal.WithLabelValues("success").Inc()
		return
	}

	d.state.RecordFailure()
	f := out.Failure
	if f.Cancelled() {
		recordsTotal.WithLabelValues("cancelled").Inc()
		return
	}
	recordsTotal.WithLabelValues("failure").Inc()
	d.logger.Warn().
		Int("record", f.Index).
		Str("kind", string(f.Kind)).
		Int("attempts", f.Attempts).
		Str("error", f.Message).
		Msg("Record failed")

	if d.config.FailFast {
		cancel()
	}
}

// execute runs the call for rec with rate limiting, timeouts and retries.
func (d *Dispatcher[T]) execute(ctx context.Context, rec table.Record, call CallFunc[T]) Outcome[T] {
	var payload T

	attempts, err := d.config.Retry.Do(ctx, func(attempt int) error {
		if err := d.limiter.Wait(ctx); err != nil {
			return apierror.Classify(err)
		}

		callCtx, cancel := context.WithTimeout(ctx, d.config.CallTimeout)
		defer cancel()

		inFlight.Inc()
		start := time.Now()
		p, err := call(callCtx, rec)
		attemptDuration.Observe(time.Since(start).Seconds())
		inFlight.Dec()

		if err != nil {
			return d.classifyAttempt(ctx, callCtx, err)
		}
		payload = p
		return nil
	}, func(attempt int, err error, backoff time.Duration) {
		d.state.RecordRetry()
		d.logger.Warn().
			Err(err).
			Int("record", rec.Index).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Retrying call after backoff")
	})

	if err != nil {
		return Failed[T](failureFrom(rec.Index, err, attempts))
	}
	if attempts > 1 {
		d.logger.Info().
			Int("record", rec.Index).
			Int("attempt", attempts).
			Msg("Call succeeded after retry")
	}
	return Succeeded(rec.Index, payload, attempts)
}

// classifyAttempt separates run cancellation from the per-attempt timeout.
func (d *Dispatcher[T]) classifyAttempt(runCtx, callCtx context.Context, err error) error {
	if runCtx.Err() != nil {
		return apierror.Permanent(apierror.KindCancelled, "run cancelled", err)
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return apierror.Transient(apierror.KindTimeout,
			fmt.Sprintf("call exceeded %s timeout", d.config.CallTimeout), err)
	}
	return apierror.Classify(err)
}
