package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/nlp-enrich/pkg/apierror"
)

// reserveScript trims calls older than the window, then either records a
// new call (returns 0) or returns the milliseconds until the oldest call
// leaves the window. Server time keeps hosts with skewed clocks consistent.
var reserveScript = redis.NewScript(`
local key = KEYS[1]
local window = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local member = ARGV[3]
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local used = redis.call('ZCARD', key)
if used < limit then
  redis.call('ZADD', key, now, member)
  redis.call('PEXPIRE', key, window)
  return 0
end
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local wait = tonumber(oldest[2]) + window - now
if wait < 1 then
  wait = 1
end
return wait
`)

// RedisWindow is a rolling-window limiter shared through Redis.
type RedisWindow struct {
	redis  *redis.Client
	key    string
	limit  int
	window time.Duration
	logger zerolog.Logger
}

// NewRedisWindow creates a limiter storing its call log under
// RedisKeyPrefix:name.
func NewRedisWindow(redisClient *redis.Client, name string, limit int, window time.Duration, logger zerolog.Logger) (*RedisWindow, error) {
	if redisClient == nil {
		return nil, apierror.Configf("redis", "client must not be nil")
	}
	if limit <= 0 {
		return nil, apierror.Configf("max_calls_per_minute", "must be positive, got %d", limit)
	}
	if window < time.Millisecond {
		return nil, apierror.Configf("rate_limit_window", "must be at least 1ms, got %s", window)
	}
	return &RedisWindow{
		redis:  redisClient,
		key:    RedisKeyPrefix + ":" + name,
		limit:  limit,
		window: window,
		logger: logger,
	}, nil
}

// Key returns the sorted set key holding the call log.
func (w *RedisWindow) Key() string {
	return w.key
}

// Wait implements Limiter.
func (w *RedisWindow) Wait(ctx context.Context) error {
	start := time.Now()
	throttled := false
	defer func() {
		rateLimitWaitSeconds.Observe(time.Since(start).Seconds())
	}()

	member := uuid.NewString()
	for {
		waitMs, err := reserveScript.Run(ctx, w.redis, []string{w.key},
			w.window.Milliseconds(), w.limit, member).Int64()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reserve rate limit slot: %w", err)
		}
		if waitMs == 0 {
			return nil
		}

		wait := time.Duration(waitMs) * time.Millisecond
		if !throttled {
			throttled = true
			rateLimitThrottlesTotal.Inc()
			w.logger.Debug().
				Str("key", w.key).
				Int("limit", w.limit).
				Dur("wait", wait).
				Msg("Shared rate limit window full, waiting for slot")
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

// State reads the current window from Redis.
func (w *RedisWindow) State(ctx context.Context) (WindowState, error) {
	now, err := w.redis.Time(ctx).Result()
	if err != nil {
		return WindowState{}, fmt.Errorf("get redis time: %w", err)
	}
	cutoff := strconv.FormatInt(now.Add(-w.window).UnixMilli(), 10)

	pipe := w.redis.Pipeline()
	pipe.ZRemRangeByScore(ctx, w.key, "-inf", cutoff)
	card := pipe.ZCard(ctx, w.key)
	oldest := pipe.ZRangeWithScores(ctx, w.key, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return WindowState{}, fmt.Errorf("read rate limit window: %w", err)
	}

	state := WindowState{Used: int(card.Val()), Limit: w.limit, Window: w.window}
	if zs := oldest.Val(); len(zs) > 0 {
		state.Oldest = time.UnixMilli(int64(zs[0].Score))
	}
	rateLimitWindowUsed.Set(float64(state.Used))

	if state.IsBusy() {
		w.logger.Warn().
			Int("used", state.Used).
			Int("limit", state.Limit).
			Msg("Shared rate limit window nearly exhausted")
	}
	return state, nil
}

// Reset clears the call log.
func (w *RedisWindow) Reset(ctx context.Context) error {
	if err := w.redis.Del(ctx, w.key).Err(); err != nil {
		return fmt.Errorf("reset rate limit window: %w", err)
	}
	return nil
}
