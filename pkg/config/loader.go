package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/nlp-enrich/pkg/apierror"
	"github.com/Sternrassler/nlp-enrich/pkg/dataset"
	"github.com/Sternrassler/nlp-enrich/pkg/flatten"
)

// EnvPrefix marks environment variables that override recipe values.
const EnvPrefix = "NLP_"

const envSeparator = "__"

// LoadEnvFile loads a .env file into the process environment. Existing
// variables win. An empty path tries ./.env and ignores its absence.
func LoadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil {
			log.Debug().Err(err).Msg(".env file not loaded")
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load reads the recipe at path, applies the process environment and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recipe: %w", err)
	}
	return Parse(data, os.Environ())
}

// Parse decodes a YAML recipe, overlays env (KEY=VALUE pairs) and validates.
func Parse(data []byte, env []string) (*Config, error) {
	props := map[string]any{}
	if err := yaml.Unmarshal(data, &props); err != nil {
		return nil, apierror.Configf("recipe", "invalid yaml: %v", err)
	}
	if props == nil {
		props = map[string]any{}
	}
	overlayEnv(props, env)

	cfg := Default()
	if err := bind(props, cfg); err != nil {
		return nil, apierror.Configf("recipe", "%v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bind decodes props into target using yaml tags, converting strings to
// numbers, durations and comma separated lists where needed. Unknown keys
// are rejected.
func bind(props map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			splitListHook,
		),
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	if err := decoder.Decode(props); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// splitListHook turns "A, B" into []string{"A", "B"}.
func splitListHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Slice || to.Elem().Kind() != reflect.String {
		return data, nil
	}
	raw := data.(string)
	if raw == "" {
		return []string{}, nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, nil
}

// overlayEnv writes NLP_SECTION__KEY=value pairs into props.
func overlayEnv(props map[string]any, env []string) {
	for _, kv := range env {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		path := strings.Split(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), envSeparator)
		if len(path) < 2 {
			continue
		}
		node := props
		for _, part := range path[:len(path)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[part] = child
			}
			node = child
		}
		node[path[len(path)-1]] = value
	}
}

// Validate checks every recipe value and reports all problems at once.
func (c *Config) Validate() error {
	var result error
	add := func(err error) {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}

	if c.Recipe.TextColumn == "" {
		add(apierror.Configf("recipe.text_column", "must not be empty"))
	}
	_, featureErr := c.Feature()
	add(featureErr)
	mode, modeErr := c.ErrorMode()
	add(modeErr)
	if lang := c.Language(); lang != "" {
		if _, err := language.Parse(lang); err != nil {
			add(apierror.Configf("recipe.language", "invalid language code %q: %v", lang, err))
		}
	}
	if featureErr == nil && modeErr == nil {
		if opts, err := c.FlattenOptions(); err != nil {
			add(err)
		} else if _, err := flatten.New(opts, nil); err != nil {
			add(err)
		}
	}

	add(c.DispatchConfig(mode).Validate())
	if c.API.BatchSize <= 0 {
		add(apierror.Configf("api.batch_size", "must be positive, got %d", c.API.BatchSize))
	}

	if loc, err := c.InputLocation(); err != nil {
		add(err)
	} else if _, err := dataset.NewSource(loc); err != nil {
		add(err)
	}
	if loc, err := c.OutputLocation(); err != nil {
		add(err)
	} else if _, err := dataset.NewSink(loc); err != nil {
		add(err)
	}

	if (c.Redis.RateLimit || c.Redis.Cache) && c.Redis.Addr == "" {
		add(apierror.Configf("redis.addr", "required when rate_limit or cache is enabled"))
	}
	if c.Redis.CacheTTL < 0 {
		add(apierror.Configf("redis.cache_ttl", "must not be negative, got %s", c.Redis.CacheTTL))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add(apierror.Configf("logging.level", "unknown level %q", c.Logging.Level))
	}
	return result
}
