package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	language "google.golang.org/api/language/v1"
	"google.golang.org/api/option"

	"github.com/Sternrassler/nlp-enrich/pkg/apierror"
	"github.com/Sternrassler/nlp-enrich/pkg/cache"
)

// Prometheus metrics for analysis calls.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nlp_requests_total",
		Help: "Total analysis requests by feature and status",
	}, []string{"feature", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nlp_request_duration_seconds",
		Help:    "Analysis request duration in seconds by feature",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"feature"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nlp_errors_total",
		Help: "Total analysis errors by kind",
	}, []string{"kind"})
)

const (
	documentType = "PLAIN_TEXT"
	encodingType = "UTF8"
)

// Config holds the client configuration.
type Config struct {
	// Endpoint overrides the service base URL.
	Endpoint string

	// CredentialsJSON is a service account key. Empty uses application
	// default credentials.
	CredentialsJSON []byte

	// HTTPClient replaces the authenticated transport, mainly for tests.
	HTTPClient *http.Client

	// WithoutAuth sends unauthenticated requests, for local emulators.
	WithoutAuth bool

	// Cache is an optional response cache.
	Cache *cache.Manager

	// Logger defaults to a disabled logger.
	Logger *zerolog.Logger
}

// Client is the natural language API client.
type Client struct {
	docs   *language.DocumentsService
	cache  *cache.Manager
	logger zerolog.Logger
}

// New creates a client. Credentials are handed to the SDK and never logged.
func New(ctx context.Context, cfg Config) (*Client, error) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	switch {
	case cfg.HTTPClient != nil:
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	case len(cfg.CredentialsJSON) > 0:
		if !json.Valid(cfg.CredentialsJSON) {
			return nil, apierror.Configf("credentials", "service account key is not valid JSON")
		}
		opts = append(opts, option.WithCredentialsJSON(cfg.CredentialsJSON))
	case cfg.WithoutAuth:
		opts = append(opts, option.WithoutAuthentication())
	}

	svc, err := language.NewService(ctx, opts...)
	if err != nil {
		return nil, apierror.Configf("credentials", "create language service: %v", err)
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "nlp-client").Logger()
	}

	return &Client{
		docs:   svc.Documents,
		cache:  cfg.Cache,
		logger: logger,
	}, nil
}

// Analyze runs one analysis call. Blank text returns EmptyResult without a
// remote call.
func (c *Client) Analyze(ctx context.Context, req CallRequest) (Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return EmptyResult{Of: req.Feature}, nil
	}

	key := cache.Key{Feature: string(req.Feature), Language: req.Language, Flags: req.Flags(), Text: req.Text}
	if res, ok := c.fromCache(ctx, key); ok {
		requestsTotal.WithLabelValues(string(req.Feature), "cached").Inc()
		return res, nil
	}

	start := time.Now()
	res, err := c.call(ctx, req)
	requestDuration.WithLabelValues(string(req.Feature)).Observe(time.Since(start).Seconds())
	if err != nil {
		se := classify(err)
		requestsTotal.WithLabelValues(string(req.Feature), "error").Inc()
		errorsTotal.WithLabelValues(string(se.Kind)).Inc()
		c.logger.Debug().
			Err(err).
			Str("feature", string(req.Feature)).
			Str("kind", string(se.Kind)).
			Int("status", se.StatusCode).
			Msg("Analysis call failed")
		return nil, se
	}

	requestsTotal.WithLabelValues(string(req.Feature), "ok").Inc()
	c.toCache(ctx, key, res)
	return res, nil
}

func (c *Client) call(ctx context.Context, req CallRequest) (Result, error) {
	doc := &language.Document{
		Content:  req.Text,
		Language: req.Language,
		Type:     documentType,
	}

	switch req.Feature {
	case FeatureSentiment:
		resp, err := c.docs.AnalyzeSentiment(&language.AnalyzeSentimentRequest{
			Document:     doc,
			EncodingType: encodingType,
		}).Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		return sentimentFromResponse(resp)

	case FeatureLanguageDetection:
		// Detection uses the sentiment endpoint; only the language is kept.
		doc.Language = ""
		resp, err := c.docs.AnalyzeSentiment(&language.AnalyzeSentimentRequest{
			Document:     doc,
			EncodingType: encodingType,
		}).Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		return LanguageResult{Language: resp.Language}, nil

	case FeatureEntities:
		if req.EntitySentiment {
			resp, err := c.docs.AnalyzeEntitySentiment(&language.AnalyzeEntitySentimentRequest{
				Document:     doc,
				EncodingType: encodingType,
			}).Context(ctx).Do()
			if err != nil {
				return nil, err
			}
			return entitiesFromResponse(resp.Entities, resp.Language, true)
		}
		resp, err := c.docs.AnalyzeEntities(&language.AnalyzeEntitiesRequest{
			Document:     doc,
			EncodingType: encodingType,
		}).Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		return entitiesFromResponse(resp.Entities, resp.Language, false)

	case FeatureClassification:
		resp, err := c.docs.ClassifyText(&language.ClassifyTextRequest{
			Document: doc,
		}).Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		return classificationFromResponse(resp)

	default:
		return nil, apierror.Permanent(apierror.KindInvalidArgument, fmt.Sprintf("unsupported feature %q", req.Feature), nil)
	}
}

func (c *Client) fromCache(ctx context.Context, key cache.Key) (Result, bool) {
	if c.cache == nil {
		return nil, false
	}
	entry, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("feature", key.Feature).Msg("Cache get error")
		}
		return nil, false
	}
	res, err := DecodeResult(Feature(entry.Feature), entry.Payload)
	if err != nil {
		c.logger.Warn().Err(err).Str("feature", key.Feature).Msg("Cached entry undecodable")
		return nil, false
	}
	return res, true
}

func (c *Client) toCache(ctx context.Context, key cache.Key, res Result) {
	if c.cache == nil {
		return
	}
	payload, err := json.Marshal(res)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Cache encode error")
		return
	}
	if err := c.cache.Set(ctx, key, cache.NewEntry(key.Feature, payload, c.cache.TTL())); err != nil {
		c.logger.Warn().Err(err).Str("feature", key.Feature).Msg("Cache set error")
	}
}

// DecodeResult decodes a JSON-encoded Result of the given feature.
func DecodeResult(feature Feature, data []byte) (Result, error) {
	switch feature {
	case FeatureSentiment:
		return decodeAs[SentimentResult](feature, data)
	case FeatureEntities:
		return decodeAs[EntityResult](feature, data)
	case FeatureClassification:
		return decodeAs[ClassificationResult](feature, data)
	case FeatureLanguageDetection:
		return decodeAs[LanguageResult](feature, data)
	default:
		return nil, fmt.Errorf("decode result: unknown feature %q", feature)
	}
}

func decodeAs[T Result](feature Feature, data []byte) (Result, error) {
	var r T
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", feature, err)
	}
	return r, nil
}

// classify maps SDK errors onto the apierror taxonomy.
func classify(err error) *apierror.ServiceError {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if msg == "" {
			msg = http.StatusText(gerr.Code)
		}
		return apierror.FromStatus(gerr.Code, msg, err)
	}
	return apierror.Classify(err)
}
