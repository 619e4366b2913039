package flatten

import (
	"slices"
	"strings"

	"github.com/Sternrassler/nlp-enrich/pkg/apierror"
	"github.com/Sternrassler/nlp-enrich/pkg/client"
)

// EntityTypes lists the entity types the service reports.
var EntityTypes = []string{
	"ADDRESS", "CONSUMER_GOOD", "DATE", "EVENT", "LOCATION", "NUMBER",
	"ORGANIZATION", "OTHER", "PERSON", "PHONE_NUMBER", "PRICE", "UNKNOWN", "WORK_OF_ART",
}

// Placeholders for values the service reports outside the known sets.
const (
	UnknownEntityType = "UNKNOWN"
	UnknownLanguage   = "UNKNOWN"
)

// CategoryMode selects how many categories are emitted per record.
type CategoryMode string

const (
	CategoriesAll  CategoryMode = "all"
	CategoriesTopN CategoryMode = "top_n"
)

// DefaultPrefix returns the column prefix used for feature.
func DefaultPrefix(feature client.Feature) string {
	switch feature {
	case client.FeatureSentiment:
		return "sentiment_api"
	case client.FeatureEntities:
		return "entity_api"
	case client.FeatureClassification:
		return "text_classif_api"
	case client.FeatureLanguageDetection:
		return "language_api"
	}
	return "api"
}

// SentimentOptions configure sentiment rows.
type SentimentOptions struct {
	Scale            Scale
	Thresholds       Thresholds
	IncludeSentences bool
}

// EntityOptions configure entity rows.
type EntityOptions struct {
	// Types is the allow-list; empty keeps every type.
	Types       []string
	MinSalience float64
	Sentiment   bool
}

// ClassificationOptions configure category rows.
type ClassificationOptions struct {
	Mode             CategoryMode
	MaxCategories    int
	StripLabelPrefix bool
}

// Options configure a Flattener.
type Options struct {
	Feature client.Feature

	// Prefix for output columns; DefaultPrefix(Feature) when empty.
	Prefix string

	// IncludeRaw adds a column with the JSON payload.
	IncludeRaw bool

	// ErrorColumns adds error_message and error_type columns.
	ErrorColumns bool

	// VerboseErrors adds error_raw next to the error columns.
	VerboseErrors bool

	Sentiment      SentimentOptions
	Entities       EntityOptions
	Classification ClassificationOptions
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions(feature client.Feature) Options {
	return Options{
		Feature:      feature,
		ErrorColumns: true,
		Sentiment: SentimentOptions{
			Scale:      ScaleTernary,
			Thresholds: DefaultThresholds(),
		},
		Classification: ClassificationOptions{
			Mode:          CategoriesTopN,
			MaxCategories: 1,
		},
	}
}

func (o *Options) normalize() error {
	switch o.Feature {
	case client.FeatureSentiment, client.FeatureEntities, client.FeatureClassification, client.FeatureLanguageDetection:
	default:
		return apierror.Configf("feature", "unknown feature %q", o.Feature)
	}
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix(o.Feature)
	}

	switch o.Feature {
	case client.FeatureSentiment:
		if o.Sentiment.Scale == "" {
			o.Sentiment.Scale = ScaleTernary
		}
		if _, err := ParseScale(string(o.Sentiment.Scale)); err != nil {
			return err
		}
		if o.Sentiment.Thresholds == (Thresholds{}) {
			o.Sentiment.Thresholds = DefaultThresholds()
		}
		return o.Sentiment.Thresholds.Validate()

	case client.FeatureEntities:
		if o.Entities.MinSalience < 0 || o.Entities.MinSalience > 1 {
			return apierror.Configf("minimum_salience", "must be in [0,1], got %g", o.Entities.MinSalience)
		}
		types := make([]string, 0, len(o.Entities.Types))
		for _, t := range o.Entities.Types {
			norm := strings.ToUpper(strings.TrimSpace(t))
			if !slices.Contains(EntityTypes, norm) {
				return apierror.Configf("entity_types", "unknown entity type %q", t)
			}
			types = append(types, norm)
		}
		o.Entities.Types = types

	case client.FeatureClassification:
		switch o.Classification.Mode {
		case "":
			o.Classification.Mode = CategoriesTopN
		case CategoriesAll, CategoriesTopN:
		default:
			return apierror.Configf("category_mode", "unknown mode %q", o.Classification.Mode)
		}
		if o.Classification.Mode == CategoriesTopN {
			if o.Classification.MaxCategories == 0 {
				o.Classification.MaxCategories = 1
			}
			if o.Classification.MaxCategories < 0 {
				return apierror.Configf("max_categories", "must be positive, got %d", o.Classification.MaxCategories)
			}
		}
	}
	return nil
}
