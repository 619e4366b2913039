// Command nlp-enrich enriches a table with natural language analysis.
//
// Usage:
//
//	nlp-enrich -recipe recipe.yaml [-env-file .env] [-metrics-addr :9090]
//
// The exit code is 0 when the output was committed and 1 otherwise.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/nlp-enrich/pkg/cache"
	"github.com/Sternrassler/nlp-enrich/pkg/client"
	"github.com/Sternrassler/nlp-enrich/pkg/config"
	"github.com/Sternrassler/nlp-enrich/pkg/dataset"
	"github.com/Sternrassler/nlp-enrich/pkg/logging"
	"github.com/Sternrassler/nlp-enrich/pkg/metrics"
	"github.com/Sternrassler/nlp-enrich/pkg/pipeline"
	"github.com/Sternrassler/nlp-enrich/pkg/ratelimit"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("nlp-enrich", flag.ContinueOnError)
	fs.SetOutput(stderr)
	recipePath := fs.String("recipe", getEnv("NLP_RECIPE", "recipe.yaml"), "path to the recipe file")
	envFile := fs.String("env-file", "", "optional .env file loaded before the recipe")
	metricsAddr := fs.String("metrics-addr", "", "serve /metrics on this address (overrides metrics.addr)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if err := config.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintf(stderr, "nlp-enrich: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*recipePath)
	if err != nil {
		fmt.Fprintf(stderr, "nlp-enrich: invalid recipe %s: %v\n", *recipePath, err)
		return 1
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}

	lc := cfg.LoggingSetup()
	lc.Output = stderr
	logging.Setup(lc)
	logger := logging.NewLogger("main")

	res, err := enrich(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Enrichment failed")
		return 1
	}
	logger.Info().
		Str("job_id", res.JobID).
		Int("records", res.Records).
		Int("rows", res.Rows).
		Msg("Enrichment complete")
	return 0
}

func enrich(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*pipeline.Result, error) {
	if cfg.Metrics.Addr != "" {
		srv, err := metrics.Listen(cfg.Metrics.Addr, logging.NewLogger("metrics"))
		if err != nil {
			return nil, fmt.Errorf("metrics listener: %w", err)
		}
		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := srv.Serve(metricsCtx); err != nil {
				logger.Warn().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	var (
		limiter ratelimit.Limiter
		store   *cache.Manager
	)
	if cfg.Redis.RateLimit || cfg.Redis.Cache {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")

		if cfg.Redis.RateLimit {
			w, err := ratelimit.NewRedisWindow(redisClient, cfg.Redis.RateLimitKey, cfg.API.MaxCallsPerMinute,
				ratelimit.DefaultWindow, logging.NewLogger("ratelimit"))
			if err != nil {
				return nil, err
			}
			limiter = w
		}
		if cfg.Redis.Cache {
			store = cache.NewManager(redisClient, cfg.Redis.CacheTTL)
		}
	}

	creds, err := cfg.Credentials()
	if err != nil {
		return nil, err
	}
	clientLogger := logging.NewLogger("client")
	analyzer, err := client.New(ctx, client.Config{
		Endpoint:        cfg.API.Endpoint,
		CredentialsJSON: creds,
		WithoutAuth:     cfg.API.WithoutAuth,
		Cache:           store,
		Logger:          &clientLogger,
	})
	if err != nil {
		return nil, err
	}

	mode, err := cfg.ErrorMode()
	if err != nil {
		return nil, err
	}
	opts, err := cfg.FlattenOptions()
	if err != nil {
		return nil, err
	}
	p, err := pipeline.New(pipeline.Config{
		TextColumn: cfg.Recipe.TextColumn,
		Language:   cfg.Language(),
		Mode:       mode,
		BatchSize:  cfg.API.BatchSize,
		Flatten:    opts,
		Dispatch:   cfg.DispatchConfig(mode),
	}, analyzer, limiter)
	if err != nil {
		return nil, err
	}

	in, err := cfg.InputLocation()
	if err != nil {
		return nil, err
	}
	src, err := dataset.NewSource(in)
	if err != nil {
		return nil, err
	}
	out, err := cfg.OutputLocation()
	if err != nil {
		return nil, err
	}
	sink, err := dataset.NewSink(out)
	if err != nil {
		return nil, err
	}

	return p.Run(ctx, src, sink)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
