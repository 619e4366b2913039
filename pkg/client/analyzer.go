// Package client talks to the remote natural language analysis service.
//
// Client wraps the generated REST bindings, turns responses into validated
// Result values and classifies failures into the apierror taxonomy so the
// dispatcher can decide what to retry. An optional Redis cache short-cuts
// repeated texts.
package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/Sternrassler/nlp-enrich/pkg/apierror"
)

// Feature selects the analysis to run.
type Feature string

const (
	FeatureSentiment         Feature = "sentiment"
	FeatureEntities          Feature = "entities"
	FeatureClassification    Feature = "classification"
	FeatureLanguageDetection Feature = "language_detection"
)

// ParseFeature parses a feature name.
func ParseFeature(s string) (Feature, error) {
	switch f := Feature(strings.ToLower(strings.TrimSpace(s))); f {
	case FeatureSentiment, FeatureEntities, FeatureClassification, FeatureLanguageDetection:
		return f, nil
	default:
		return "", apierror.Configf("feature", "unknown feature %q", s)
	}
}

// CallRequest is one outbound analysis call.
type CallRequest struct {
	Feature  Feature
	Text     string
	Language string // "" lets the service detect the language

	// EntitySentiment asks for per-entity sentiment (entities only).
	EntitySentiment bool
}

// Flags returns the request options that change the response.
func (r CallRequest) Flags() map[string]string {
	if r.Feature == FeatureEntities {
		return map[string]string{"sentiment": fmt.Sprint(r.EntitySentiment)}
	}
	return nil
}

// Analyzer performs analysis calls.
type Analyzer interface {
	Analyze(ctx context.Context, req CallRequest) (Result, error)
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, req CallRequest) (Result, error)

// Analyze implements Analyzer.
func (f AnalyzerFunc) Analyze(ctx context.Context, req CallRequest) (Result, error) {
	return f(ctx, req)
}
