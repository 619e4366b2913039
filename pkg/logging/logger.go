// Package logging configures zerolog for the enrichment job.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// ForJob returns a component logger tagged with the run's job id.
func ForJob(component, jobID string) zerolog.Logger {
	return log.With().Str("component", component).Str("job_id", jobID).Logger()
}

// Log Level Guidelines:
//
// Debug: per-call detail
//   - Cache hit/miss, key
//   - Rate limit waits
//   - Output column descriptions
//
// Info: run progress
//   - Job start with record and batch counts
//   - Progress every N records
//   - Summary ("N rows succeeded, M rows failed")
//
// Warn: record-level problems the run survives
//   - Retry attempts
//   - Failed records in LOG mode
//   - Rate limit window nearly saturated
//   - Cache errors (call goes to the service)
//
// Error: the run aborts
//   - First failure in FAIL mode
//   - Sink commit errors
//   - Configuration errors
//
// Context Fields:
//   - component: emitting package
//   - job_id: run identifier
//   - record: input record index
//   - feature: analysis feature
//   - kind: failure kind (QuotaExceeded, Timeout, ...)
//   - attempt: 1-based attempt number
//   - backoff: delay before the next attempt
//
// Credentials are never logged.
