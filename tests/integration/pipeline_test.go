//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	mocks "github.com/Sternrassler/nlp-enrich/internal/testutil"
	"github.com/Sternrassler/nlp-enrich/pkg/cache"
	"github.com/Sternrassler/nlp-enrich/pkg/client"
	"github.com/Sternrassler/nlp-enrich/pkg/dataset"
	"github.com/Sternrassler/nlp-enrich/pkg/dispatch"
	"github.com/Sternrassler/nlp-enrich/pkg/flatten"
	"github.com/Sternrassler/nlp-enrich/pkg/job"
	"github.com/Sternrassler/nlp-enrich/pkg/pipeline"
	"github.com/Sternrassler/nlp-enrich/pkg/ratelimit"
	"github.com/Sternrassler/nlp-enrich/pkg/table"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

func reviews(texts ...string) *dataset.MemorySource {
	cols := []string{"text"}
	src := &dataset.MemorySource{Schema: table.StringSchema(cols)}
	for i, txt := range texts {
		src.Records = append(src.Records, table.NewRecord(i, cols, []string{txt}))
	}
	return src
}

func newPipeline(t *testing.T, analyzer client.Analyzer, limiter ratelimit.Limiter, perMinute int) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(pipeline.Config{
		TextColumn: "text",
		Mode:       job.ModeLog,
		BatchSize:  10,
		Flatten:    flatten.DefaultOptions(client.FeatureSentiment),
		Dispatch: dispatch.Config{
			MaxConcurrency:    4,
			MaxCallsPerMinute: perMinute,
			CallTimeout:       2 * time.Second,
			Retry: dispatch.RetryPolicy{
				MaxRetries: 2,
				BaseDelay:  10 * time.Millisecond,
				MaxDelay:   50 * time.Millisecond,
				Multiplier: 2,
			},
		},
	}, analyzer, limiter)
	if err != nil {
		t.Fatalf("pipeline.New() error = %v", err)
	}
	return p
}

// TestFullRunWithCache runs the same input twice; the second run is served
// from Redis.
func TestFullRunWithCache(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := mocks.NewMockLanguage()
	defer mock.Close()
	mock.SetResponse(mocks.PathAnalyzeSentiment, mocks.NewSentimentResponse(0.5, 1, "en"))

	ctx := context.Background()
	c, err := client.New(ctx, client.Config{
		Endpoint:   mock.URL(),
		HTTPClient: mock.Client(),
		Cache:      cache.NewManager(redisClient, time.Minute),
	})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	hitsBefore := testutil.ToFloat64(cache.CacheHits)

	p := newPipeline(t, c, nil, 1000)
	src := reviews("good", "fine", "great")

	if _, err := p.Run(ctx, src, &dataset.MemorySink{}); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if got := mock.GetRequestCount(); got != 3 {
		t.Fatalf("first run sent %d requests, want 3", got)
	}

	writtenBefore := testutil.ToFloat64(cache.CacheBytesWritten)
	servedBefore := testutil.ToFloat64(cache.CacheBytesServed)

	sink := &dataset.MemorySink{}
	res, err := p.Run(ctx, src, sink)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if got := testutil.ToFloat64(cache.CacheBytesWritten) - writtenBefore; got != 0 {
		t.Errorf("cache hits wrote %v bytes, want 0", got)
	}
	if got := testutil.ToFloat64(cache.CacheBytesServed) - servedBefore; got <= 0 {
		t.Errorf("served bytes = %v, want > 0", got)
	}
	if got := mock.GetRequestCount(); got != 3 {
		t.Errorf("second run sent %d more requests, want 0", got-3)
	}
	if res.Summary.Succeeded != 3 {
		t.Errorf("Succeeded = %d, want 3", res.Summary.Succeeded)
	}
	if hits := testutil.ToFloat64(cache.CacheHits) - hitsBefore; hits != 3 {
		t.Errorf("cache hits = %v, want 3", hits)
	}
	for _, row := range sink.Rows() {
		if row[1] != 0.5 {
			t.Errorf("score = %v, want 0.5", row[1])
		}
	}
}

// TestSharedRateLimitWindow checks that two runs sharing a Redis window
// never exceed its limit together.
func TestSharedRateLimitWindow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := mocks.NewMockLanguage()
	defer mock.Close()
	mock.SetResponse(mocks.PathAnalyzeSentiment, mocks.NewSentimentResponse(0.1, 0.1, "en"))

	ctx := context.Background()
	c, err := client.New(ctx, client.Config{Endpoint: mock.URL(), HTTPClient: mock.Client()})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	const limit = 4
	window := time.Second
	newWindow := func() *ratelimit.RedisWindow {
		w, err := ratelimit.NewRedisWindow(redisClient, "integration", limit, window, zerolog.Nop())
		if err != nil {
			t.Fatalf("NewRedisWindow() error = %v", err)
		}
		return w
	}

	start := time.Now()
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := newPipeline(t, c, newWindow(), limit).Run(ctx, reviews("a", "b", "c", "d"), &dataset.MemorySink{})
			errs <- err
		}()
	}
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	}

	// 8 calls at 4 per second need at least one full window.
	if elapsed := time.Since(start); elapsed < window {
		t.Errorf("8 calls finished in %s, want >= %s", elapsed, window)
	}
	if got := mock.GetRequestCount(); got != 8 {
		t.Errorf("requests = %d, want 8", got)
	}
}

// TestRetriesThenSucceeds drives a transient failure through the client
// and dispatcher.
func TestRetriesThenSucceeds(t *testing.T) {
	mock := mocks.NewMockLanguage()
	defer mock.Close()
	mock.SetSequence(mocks.PathAnalyzeSentiment,
		mocks.NewQuotaResponse(),
		mocks.NewServerErrorResponse(),
		mocks.NewSentimentResponse(-0.3, 0.6, "en"),
	)

	ctx := context.Background()
	c, err := client.New(ctx, client.Config{Endpoint: mock.URL(), HTTPClient: mock.Client()})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	sink := &dataset.MemorySink{}
	res, err := newPipeline(t, c, nil, 1000).Run(ctx, reviews("meh"), sink)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Summary.Retries != 2 || res.Summary.Succeeded != 1 {
		t.Errorf("summary = %s, want 1 succeeded with 2 retries", res.Summary)
	}
	if got := sink.Rows()[0][1]; got != -0.3 {
		t.Errorf("score = %v, want -0.3", got)
	}
}
