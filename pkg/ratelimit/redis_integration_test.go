//go:build integration

package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}
	return client, cleanup
}

func TestRedisWindow_Integration_SharedQuota(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	const window = 300 * time.Millisecond

	// Two limiters on the same key behave like two hosts sharing a quota.
	a, err := NewRedisWindow(redisClient, "shared", 3, window, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewRedisWindow(redisClient, "shared", 3, window, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	for _, l := range []*RedisWindow{a, b, a} {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}

	state, err := a.State(ctx)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if state.Used != 3 || !state.IsSaturated() {
		t.Errorf("State() = %+v, want 3 used and saturated", state)
	}

	start := time.Now()
	if err := b.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < window/2 {
		t.Errorf("fourth call admitted after %v, expected to wait for the window", elapsed)
	}
}

func TestRedisWindow_Integration_ConcurrentWaiters(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	w, err := NewRedisWindow(redisClient, "concurrent", 5, time.Second, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Wait(ctx); err != nil {
				t.Errorf("Wait() error = %v", err)
			}
		}()
	}
	wg.Wait()

	state, err := w.State(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if state.Used != 5 {
		t.Errorf("Used = %d, want 5", state.Used)
	}

	short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if err := w.Wait(short); err == nil {
		t.Error("Wait() on full window should fail when the context expires")
	}

	if err := w.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if err := w.Wait(ctx); err != nil {
		t.Errorf("Wait() after Reset() error = %v", err)
	}
}
