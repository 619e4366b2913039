package flatten

import (
	"strings"

	"github.com/Sternrassler/nlp-enrich/pkg/apierror"
	"github.com/Sternrassler/nlp-enrich/pkg/table"
)

// Scale controls how a sentiment score in [-1,1] is reported.
type Scale string

const (
	ScaleBinary    Scale = "binary"
	ScaleTernary   Scale = "ternary"
	ScaleQuinary   Scale = "quinary"
	ScaleZeroToOne Scale = "rescale_zero_to_one"
	ScaleRaw       Scale = "raw"
)

const (
	defaultModerate = 0.33
	defaultStrong   = 0.66
)

// Sentiment labels.
const (
	LabelHighlyNegative = "highly negative"
	LabelNegative       = "negative"
	LabelNeutral        = "neutral"
	LabelPositive       = "positive"
	LabelHighlyPositive = "highly positive"
)

// ParseScale parses a scale name. Empty means ScaleTernary.
func ParseScale(s string) (Scale, error) {
	switch sc := Scale(strings.ToLower(strings.TrimSpace(s))); sc {
	case "":
		return ScaleTernary, nil
	case ScaleBinary, ScaleTernary, ScaleQuinary, ScaleZeroToOne, ScaleRaw:
		return sc, nil
	default:
		return "", apierror.Configf("sentiment_scale", "unknown scale %q", s)
	}
}

// Thresholds are the score cut-offs used by the categorical scales.
type Thresholds struct {
	// Moderate separates neutral from (negative|positive).
	Moderate float64

	// Strong separates (negative|positive) from highly (negative|positive).
	Strong float64
}

// DefaultThresholds returns the cut-offs documented by the service.
func DefaultThresholds() Thresholds {
	return Thresholds{Moderate: defaultModerate, Strong: defaultStrong}
}

// Validate checks 0 < Moderate < Strong <= 1.
func (t Thresholds) Validate() error {
	if t.Moderate <= 0 || t.Strong <= t.Moderate || t.Strong > 1 {
		return apierror.Configf("sentiment_thresholds", "want 0 < moderate < strong <= 1, got %g/%g", t.Moderate, t.Strong)
	}
	return nil
}

// ColumnType returns the output type of the scaled score.
func (s Scale) ColumnType() table.ColumnType {
	switch s {
	case ScaleBinary, ScaleTernary, ScaleQuinary:
		return table.TypeString
	default:
		return table.TypeDouble
	}
}

// Apply maps score onto the scale.
func (s Scale) Apply(score float64, t Thresholds) any {
	switch s {
	case ScaleBinary:
		if score < 0 {
			return LabelNegative
		}
		return LabelPositive
	case ScaleTernary:
		switch {
		case score < -t.Moderate:
			return LabelNegative
		case score > t.Moderate:
			return LabelPositive
		default:
			return LabelNeutral
		}
	case ScaleQuinary:
		switch {
		case score < -t.Strong:
			return LabelHighlyNegative
		case score < -t.Moderate:
			return LabelNegative
		case score < t.Moderate:
			return LabelNeutral
		case score < t.Strong:
			return LabelPositive
		default:
			return LabelHighlyPositive
		}
	case ScaleZeroToOne:
		return (score + 1) / 2
	default:
		return score
	}
}
