// Package config loads enrichment recipes.
//
// A recipe is a YAML file. Values are layered in this order, later layers
// winning: built-in defaults, the YAML file, then NLP_ environment variables
// where "__" separates nesting levels (NLP_API__MAX_CONCURRENCY=8).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/Sternrassler/nlp-enrich/pkg/client"
	"github.com/Sternrassler/nlp-enrich/pkg/dataset"
	"github.com/Sternrassler/nlp-enrich/pkg/dispatch"
	"github.com/Sternrassler/nlp-enrich/pkg/flatten"
	"github.com/Sternrassler/nlp-enrich/pkg/job"
	"github.com/Sternrassler/nlp-enrich/pkg/logging"
)

// Config is a complete enrichment recipe.
type Config struct {
	Recipe  RecipeConfig  `yaml:"recipe"`
	API     APIConfig     `yaml:"api"`
	Input   TableConfig   `yaml:"input"`
	Output  TableConfig   `yaml:"output"`
	Redis   RedisConfig   `yaml:"redis"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// RecipeConfig selects the analysis and shapes its output columns.
type RecipeConfig struct {
	Feature            string `yaml:"feature"`
	TextColumn         string `yaml:"text_column"`
	Language           string `yaml:"language"`
	ErrorHandling      string `yaml:"error_handling"`
	ColumnPrefix       string `yaml:"column_prefix"`
	IncludeRawResponse bool   `yaml:"include_raw_response"`
	VerboseErrors      bool   `yaml:"verbose_errors"`

	Sentiment      SentimentConfig      `yaml:"sentiment"`
	Entities       EntitiesConfig       `yaml:"entities"`
	Classification ClassificationConfig `yaml:"classification"`
}

type SentimentConfig struct {
	Scale             string  `yaml:"scale"`
	ModerateThreshold float64 `yaml:"moderate_threshold"`
	StrongThreshold   float64 `yaml:"strong_threshold"`
	IncludeSentences  bool    `yaml:"include_sentences"`
}

type EntitiesConfig struct {
	Types           []string `yaml:"types"`
	MinimumSalience float64  `yaml:"minimum_salience"`
	Sentiment       bool     `yaml:"sentiment"`
}

type ClassificationConfig struct {
	Mode             string `yaml:"mode"`
	MaxCategories    int    `yaml:"max_categories"`
	StripLabelPrefix bool   `yaml:"strip_label_prefix"`
}

// APIConfig controls how the remote service is called.
type APIConfig struct {
	Endpoint        string `yaml:"endpoint"`
	CredentialsFile string `yaml:"credentials_file"`
	// CredentialsJSON is usually supplied as NLP_API__CREDENTIALS_JSON.
	CredentialsJSON string `yaml:"credentials_json"`
	// WithoutAuth skips credentials entirely, for local emulators.
	WithoutAuth bool `yaml:"without_auth"`

	MaxConcurrency    int           `yaml:"max_concurrency"`
	MaxCallsPerMinute int           `yaml:"max_calls_per_minute"`
	CallTimeout       time.Duration `yaml:"call_timeout"`
	BatchSize         int           `yaml:"batch_size"`

	MaxRetries        int           `yaml:"max_retries"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	Jitter            float64       `yaml:"jitter"`
}

// TableConfig locates an input or output table.
type TableConfig struct {
	Format      string `yaml:"format"`
	Path        string `yaml:"path"`
	Table       string `yaml:"table"`
	Delimiter   string `yaml:"delimiter"`
	Compression string `yaml:"compression"`
}

// RedisConfig enables the shared rate limit window and the response cache.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	RateLimit bool   `yaml:"rate_limit"`
	// RateLimitKey names the shared window; jobs using the same key share quota.
	RateLimitKey string        `yaml:"rate_limit_key"`
	Cache        bool          `yaml:"cache"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type MetricsConfig struct {
	// Addr serves /metrics when set, e.g. ":9090".
	Addr string `yaml:"addr"`
}

// Default returns the recipe defaults.
func Default() *Config {
	d := dispatch.DefaultConfig()
	t := flatten.DefaultThresholds()
	return &Config{
		Recipe: RecipeConfig{
			Feature:       string(client.FeatureSentiment),
			ErrorHandling: string(job.ModeLog),
			Sentiment: SentimentConfig{
				Scale:             string(flatten.ScaleTernary),
				ModerateThreshold: t.Moderate,
				StrongThreshold:   t.Strong,
			},
			Classification: ClassificationConfig{
				Mode:          string(flatten.CategoriesTopN),
				MaxCategories: 1,
			},
		},
		API: APIConfig{
			MaxConcurrency:    d.MaxConcurrency,
			MaxCallsPerMinute: d.MaxCallsPerMinute,
			CallTimeout:       d.CallTimeout,
			BatchSize:         100,
			MaxRetries:        d.Retry.MaxRetries,
			BaseDelay:         d.Retry.BaseDelay,
			MaxDelay:          d.Retry.MaxDelay,
			BackoffMultiplier: d.Retry.Multiplier,
			Jitter:            d.Retry.Jitter,
		},
		Input:  TableConfig{Format: string(dataset.FormatCSV)},
		Output: TableConfig{Format: string(dataset.FormatCSV)},
		Redis: RedisConfig{
			RateLimitKey: "default",
		},
		Logging: LoggingConfig{Level: string(logging.LevelInfo)},
	}
}

// Feature returns the parsed recipe feature.
func (c *Config) Feature() (client.Feature, error) {
	return client.ParseFeature(c.Recipe.Feature)
}

// ErrorMode returns the parsed error handling mode.
func (c *Config) ErrorMode() (job.ErrorMode, error) {
	return job.ParseErrorMode(c.Recipe.ErrorHandling)
}

// Language returns the language hint; "" asks the service to detect it.
func (c *Config) Language() string {
	if c.Recipe.Language == "auto" {
		return ""
	}
	return c.Recipe.Language
}

// Credentials returns the service account key, or nil for application
// default credentials.
func (c *Config) Credentials() ([]byte, error) {
	if c.API.CredentialsJSON != "" {
		return []byte(c.API.CredentialsJSON), nil
	}
	if c.API.CredentialsFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(c.API.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	return data, nil
}

// DispatchConfig builds the dispatcher configuration.
func (c *Config) DispatchConfig(mode job.ErrorMode) dispatch.Config {
	return dispatch.Config{
		MaxConcurrency:    c.API.MaxConcurrency,
		MaxCallsPerMinute: c.API.MaxCallsPerMinute,
		CallTimeout:       c.API.CallTimeout,
		Retry: dispatch.RetryPolicy{
			MaxRetries: c.API.MaxRetries,
			BaseDelay:  c.API.BaseDelay,
			MaxDelay:   c.API.MaxDelay,
			Multiplier: c.API.BackoffMultiplier,
			Jitter:     c.API.Jitter,
		},
		FailFast:      mode == job.ModeFail,
		ProgressEvery: c.API.BatchSize,
	}
}

// FlattenOptions builds the flattener options.
func (c *Config) FlattenOptions() (flatten.Options, error) {
	feature, err := c.Feature()
	if err != nil {
		return flatten.Options{}, err
	}
	mode, err := c.ErrorMode()
	if err != nil {
		return flatten.Options{}, err
	}
	scale, err := flatten.ParseScale(c.Recipe.Sentiment.Scale)
	if err != nil {
		return flatten.Options{}, err
	}

	opts := flatten.DefaultOptions(feature)
	opts.Prefix = c.Recipe.ColumnPrefix
	opts.IncludeRaw = c.Recipe.IncludeRawResponse
	opts.ErrorColumns = mode == job.ModeLog
	opts.VerboseErrors = c.Recipe.VerboseErrors
	opts.Sentiment = flatten.SentimentOptions{
		Scale: scale,
		Thresholds: flatten.Thresholds{
			Moderate: c.Recipe.Sentiment.ModerateThreshold,
			Strong:   c.Recipe.Sentiment.StrongThreshold,
		},
		IncludeSentences: c.Recipe.Sentiment.IncludeSentences,
	}
	opts.Entities = flatten.EntityOptions{
		Types:       c.Recipe.Entities.Types,
		MinSalience: c.Recipe.Entities.MinimumSalience,
		Sentiment:   c.Recipe.Entities.Sentiment,
	}
	opts.Classification = flatten.ClassificationOptions{
		Mode:             flatten.CategoryMode(c.Recipe.Classification.Mode),
		MaxCategories:    c.Recipe.Classification.MaxCategories,
		StripLabelPrefix: c.Recipe.Classification.StripLabelPrefix,
	}
	return opts, nil
}

// InputLocation returns the input table location.
func (c *Config) InputLocation() (dataset.Location, error) {
	return c.Input.location()
}

// OutputLocation returns the output table location.
func (c *Config) OutputLocation() (dataset.Location, error) {
	return c.Output.location()
}

func (t TableConfig) location() (dataset.Location, error) {
	format, err := dataset.ParseFormat(t.Format)
	if err != nil {
		return dataset.Location{}, err
	}
	loc := dataset.Location{
		Format:      format,
		Path:        t.Path,
		Table:       t.Table,
		Compression: t.Compression,
	}
	if r := []rune(t.Delimiter); len(r) > 0 {
		loc.Delimiter = r[0]
	}
	return loc, nil
}

// LoggingSetup builds the logger configuration.
func (c *Config) LoggingSetup() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = logging.LogLevel(c.Logging.Level)
	lc.Pretty = c.Logging.Pretty
	return lc
}
