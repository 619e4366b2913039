package flatten

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/nlp-enrich/pkg/apierror"
	"github.com/Sternrassler/nlp-enrich/pkg/client"
	"github.com/Sternrassler/nlp-enrich/pkg/dispatch"
	"github.com/Sternrassler/nlp-enrich/pkg/table"
)

var input = []string{"id", "text"}

func record(i int) table.Record {
	return table.Record{Index: i, Values: map[string]any{"id": "x", "text": "some text"}}
}

func ok(i int, r client.Result) dispatch.Outcome[client.Result] {
	return dispatch.Succeeded[client.Result](i, r, 1)
}

func TestFlatten_SentimentScales(t *testing.T) {
	tests := []struct {
		name  string
		scale Scale
		score float64
		want  any
	}{
		{"binary negative", ScaleBinary, -0.01, LabelNegative},
		{"binary zero is positive", ScaleBinary, 0, LabelPositive},
		{"ternary lower bound", ScaleTernary, -0.33, LabelNeutral},
		{"ternary negative", ScaleTernary, -0.34, LabelNegative},
		{"ternary upper bound", ScaleTernary, 0.33, LabelNeutral},
		{"ternary positive", ScaleTernary, 0.5, LabelPositive},
		{"quinary highly negative", ScaleQuinary, -0.9, LabelHighlyNegative},
		{"quinary negative", ScaleQuinary, -0.5, LabelNegative},
		{"quinary neutral", ScaleQuinary, 0.0, LabelNeutral},
		{"quinary moderate bound", ScaleQuinary, 0.33, LabelPositive},
		{"quinary strong bound", ScaleQuinary, 0.66, LabelHighlyPositive},
		{"zero to one", ScaleZeroToOne, 0.5, 0.75},
		{"raw", ScaleRaw, -0.25, -0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions(client.FeatureSentiment)
			opts.Sentiment.Scale = tt.scale
			f, err := New(opts, input)
			require.NoError(t, err)

			rows, err := f.Flatten(record(0), ok(0, client.SentimentResult{Sentiment: client.Sentiment{Score: tt.score, Magnitude: 1}}))
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, tt.score, rows[0].Values["sentiment_api_score"], "raw score is kept")
			assert.Equal(t, tt.want, rows[0].Values["sentiment_api_score_scaled"])
			assert.Equal(t, 1.0, rows[0].Values["sentiment_api_magnitude"])
		})
	}
}

func TestFlatten_SentimentZeroPreserved(t *testing.T) {
	f, err := New(DefaultOptions(client.FeatureSentiment), input)
	require.NoError(t, err)

	rows, err := f.Flatten(record(3), ok(3, client.SentimentResult{}))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t, 3, rows[0].Index)
	assert.Equal(t, 0.0, rows[0].Values["sentiment_api_score"])
	assert.Equal(t, LabelNeutral, rows[0].Values["sentiment_api_score_scaled"])
	assert.Equal(t, 0.0, rows[0].Values["sentiment_api_magnitude"])
}

func TestNew_SentimentColumns(t *testing.T) {
	opts := DefaultOptions(client.FeatureSentiment)
	assert.Equal(t, ScaleTernary, opts.Sentiment.Scale)

	f, err := New(opts, input)
	require.NoError(t, err)

	cols := f.Columns()
	require.Len(t, cols, 3)
	assert.Equal(t, table.Column{Name: "sentiment_api_score", Type: table.TypeDouble, Description: "Sentiment score from -1 (negative) to 1 (positive)"}, cols[0])
	assert.Equal(t, table.Column{Name: "sentiment_api_score_scaled", Type: table.TypeString, Description: "Scaled sentiment score according to the sentiment scale"}, cols[1])
	assert.Equal(t, "sentiment_api_magnitude", cols[2].Name)

	rows, err := f.Flatten(record(0), ok(0, client.SentimentResult{Sentiment: client.Sentiment{Score: 0.05}}))
	require.NoError(t, err)
	assert.Equal(t, 0.05, rows[0].Values["sentiment_api_score"])
	assert.Equal(t, LabelNeutral, rows[0].Values["sentiment_api_score_scaled"])

	opts.Sentiment.Scale = ScaleZeroToOne
	f, err = New(opts, input)
	require.NoError(t, err)
	assert.Equal(t, table.TypeDouble, f.Columns()[1].Type)
}

func TestFlatten_SentimentCustomThresholds(t *testing.T) {
	opts := DefaultOptions(client.FeatureSentiment)
	opts.Sentiment.Scale = ScaleTernary
	opts.Sentiment.Thresholds = Thresholds{Moderate: 0.1, Strong: 0.5}
	f, err := New(opts, input)
	require.NoError(t, err)

	rows, err := f.Flatten(record(0), ok(0, client.SentimentResult{Sentiment: client.Sentiment{Score: 0.2}}))
	require.NoError(t, err)
	assert.Equal(t, LabelPositive, rows[0].Values["sentiment_api_score_scaled"])
}

func TestFlatten_SentimentSentences(t *testing.T) {
	opts := DefaultOptions(client.FeatureSentiment)
	opts.Sentiment.IncludeSentences = true
	f, err := New(opts, input)
	require.NoError(t, err)

	res := client.SentimentResult{
		Sentiment: client.Sentiment{Score: 0.4, Magnitude: 0.8},
		Sentences: []client.SentenceSentiment{{Text: "Good.", Score: 0.4, Magnitude: 0.4}},
	}
	rows, err := f.Flatten(record(0), ok(0, res))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"text":"Good.","score":0.4,"magnitude":0.4}]`, rows[0].Values["sentiment_api_sentences"].(string))
}

func TestFlatten_EntitiesSalienceFilter(t *testing.T) {
	opts := DefaultOptions(client.FeatureEntities)
	opts.Entities.MinSalience = 0.1
	f, err := New(opts, input)
	require.NoError(t, err)

	res := client.EntityResult{Entities: []client.Entity{
		{Name: "Paris", Type: "LOCATION", Salience: 0.6, Mentions: []client.Mention{{BeginOffset: 0}, {BeginOffset: 30}}},
		{Name: "noise", Type: "OTHER", Salience: 0.05},
		{Name: "Obama", Type: "PERSON", Salience: 0.1, Mentions: []client.Mention{{BeginOffset: 12}}},
	}}
	rows, err := f.Flatten(record(2), ok(2, res))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "Paris", rows[0].Values["entity_api_entity_name"])
	assert.Equal(t, int64(2), rows[0].Values["entity_api_mention_count"])
	assert.Equal(t, "[0,30]", rows[0].Values["entity_api_offsets"])
	assert.Equal(t, "Obama", rows[1].Values["entity_api_entity_name"])
	for _, r := range rows {
		assert.Equal(t, 2, r.Index)
		assert.GreaterOrEqual(t, r.Values["entity_api_salience"].(float64), 0.1)
	}
}

func TestFlatten_EntitiesTypeFilterAndUnknown(t *testing.T) {
	opts := DefaultOptions(client.FeatureEntities)
	opts.Entities.Types = []string{"person", "UNKNOWN"}
	f, err := New(opts, input)
	require.NoError(t, err)

	res := client.EntityResult{Entities: []client.Entity{
		{Name: "Ada", Type: "PERSON", Salience: 0.5},
		{Name: "Berlin", Type: "LOCATION", Salience: 0.5},
		{Name: "thing", Type: "BRAND_NEW_TYPE", Salience: 0.5},
	}}
	rows, err := f.Flatten(record(0), ok(0, res))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "PERSON", rows[0].Values["entity_api_entity_type"])
	assert.Equal(t, UnknownEntityType, rows[1].Values["entity_api_entity_type"])
	assert.Equal(t, "[]", rows[1].Values["entity_api_offsets"])
}

func TestFlatten_EntitySentiment(t *testing.T) {
	opts := DefaultOptions(client.FeatureEntities)
	opts.Entities.Sentiment = true
	f, err := New(opts, input)
	require.NoError(t, err)

	res := client.EntityResult{Entities: []client.Entity{
		{Name: "Ada", Type: "PERSON", Salience: 0.5, Sentiment: &client.Sentiment{Score: 0, Magnitude: 0.2}},
	}}
	rows, err := f.Flatten(record(0), ok(0, res))
	require.NoError(t, err)
	assert.Equal(t, 0.0, rows[0].Values["entity_api_entity_sentiment_score"])
	assert.Equal(t, 0.2, rows[0].Values["entity_api_entity_sentiment_magnitude"])
}

func TestFlatten_ClassificationTopN(t *testing.T) {
	opts := DefaultOptions(client.FeatureClassification)
	opts.Classification = ClassificationOptions{Mode: CategoriesTopN, MaxCategories: 3}
	f, err := New(opts, input)
	require.NoError(t, err)

	res := client.ClassificationResult{Categories: []client.Category{
		{Name: "/A", Confidence: 0.2},
		{Name: "/B", Confidence: 0.9},
		{Name: "/C", Confidence: 0.5},
		{Name: "/D", Confidence: 0.7},
		{Name: "/E", Confidence: 0.1},
	}}
	rows, err := f.Flatten(record(1), ok(1, res))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	wantNames := []string{"/B", "/D", "/C"}
	for i, r := range rows {
		assert.Equal(t, wantNames[i], r.Values["text_classif_api_category"])
		assert.Equal(t, int64(i+1), r.Values["text_classif_api_category_rank"])
		if i > 0 {
			assert.GreaterOrEqual(t, rows[i-1].Values["text_classif_api_confidence"], r.Values["text_classif_api_confidence"])
		}
	}
}

func TestFlatten_ClassificationAllAndStripPrefix(t *testing.T) {
	opts := DefaultOptions(client.FeatureClassification)
	opts.Classification = ClassificationOptions{Mode: CategoriesAll, StripLabelPrefix: true}
	f, err := New(opts, input)
	require.NoError(t, err)

	res := client.ClassificationResult{Categories: []client.Category{
		{Name: "/Arts & Entertainment/Music", Confidence: 0.5},
		{Name: "/Arts & Entertainment/Film", Confidence: 0.5},
		{Name: "/News", Confidence: 0.3},
	}}
	rows, err := f.Flatten(record(0), ok(0, res))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	// equal confidence falls back to name order
	assert.Equal(t, "Film", rows[0].Values["text_classif_api_category"])
	assert.Equal(t, "Music", rows[1].Values["text_classif_api_category"])
	assert.Equal(t, "News", rows[2].Values["text_classif_api_category"])
}

func TestFlatten_LanguageDetection(t *testing.T) {
	f, err := New(DefaultOptions(client.FeatureLanguageDetection), input)
	require.NoError(t, err)

	rows, err := f.Flatten(record(0), ok(0, client.LanguageResult{Language: "zh-Hant"}))
	require.NoError(t, err)
	assert.Equal(t, "zh-Hant", rows[0].Values["language_api_detected_language"])

	rows, err = f.Flatten(record(1), ok(1, client.LanguageResult{}))
	require.NoError(t, err)
	assert.Equal(t, UnknownLanguage, rows[0].Values["language_api_detected_language"])
}

func TestFlatten_EmptyText(t *testing.T) {
	sent, err := New(DefaultOptions(client.FeatureSentiment), input)
	require.NoError(t, err)
	rows, err := sent.Flatten(record(0), ok(0, client.EmptyResult{Of: client.FeatureSentiment}))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Values["sentiment_api_score"])
	assert.Nil(t, rows[0].Values["sentiment_api_score_scaled"])

	ents, err := New(DefaultOptions(client.FeatureEntities), input)
	require.NoError(t, err)
	rows, err = ents.Flatten(record(0), ok(0, client.EmptyResult{Of: client.FeatureEntities}))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFlatten_FailureYieldsNoRows(t *testing.T) {
	f, err := New(DefaultOptions(client.FeatureSentiment), input)
	require.NoError(t, err)

	failure := &dispatch.Failure{Index: 4, Kind: apierror.KindInvalidArgument, Message: "bad"}
	rows, err := f.Flatten(record(4), dispatch.Failed[client.Result](failure))
	assert.Empty(t, rows)
	assert.ErrorIs(t, err, failure)
}

func TestFlatten_PayloadMismatchIsProgrammingError(t *testing.T) {
	f, err := New(DefaultOptions(client.FeatureSentiment), input)
	require.NoError(t, err)

	_, err = f.Flatten(record(0), ok(0, client.ClassificationResult{}))
	assert.True(t, apierror.IsProgramming(err), "got %v", err)

	_, err = f.Flatten(record(1), ok(0, client.SentimentResult{}))
	assert.True(t, apierror.IsProgramming(err), "got %v", err)
}

func TestFlatten_Deterministic(t *testing.T) {
	opts := DefaultOptions(client.FeatureClassification)
	opts.Classification.Mode = CategoriesAll
	opts.IncludeRaw = true
	f, err := New(opts, input)
	require.NoError(t, err)

	res := client.ClassificationResult{Categories: []client.Category{{Name: "/X", Confidence: 0.4}, {Name: "/Y", Confidence: 0.4}}}
	first, err := f.Flatten(record(0), ok(0, res))
	require.NoError(t, err)
	second, err := f.Flatten(record(0), ok(0, res))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NotEmpty(t, first[0].Values["text_classif_api_raw_response"])
}

func TestNew_ColumnNames(t *testing.T) {
	opts := DefaultOptions(client.FeatureSentiment)
	opts.VerboseErrors = true
	f, err := New(opts, []string{"text", "sentiment_api_score"})
	require.NoError(t, err)

	names := table.Schema{Columns: f.AllColumns()}.Names()
	assert.Equal(t, []string{
		"sentiment_api_score_1",
		"sentiment_api_score_scaled",
		"sentiment_api_magnitude",
		"sentiment_api_error_message",
		"sentiment_api_error_type",
		"sentiment_api_error_raw",
	}, names)
	assert.Equal(t, "sentiment_api_error_message", f.ErrorNames().Message)

	opts.ErrorColumns = false
	f, err = New(opts, nil)
	require.NoError(t, err)
	assert.Empty(t, f.ErrorColumns())
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"salience above one", func(o *Options) { o.Feature = client.FeatureEntities; o.Entities.MinSalience = 1.5 }},
		{"negative salience", func(o *Options) { o.Feature = client.FeatureEntities; o.Entities.MinSalience = -0.1 }},
		{"unknown entity type", func(o *Options) { o.Feature = client.FeatureEntities; o.Entities.Types = []string{"ANIMAL"} }},
		{"bad scale", func(o *Options) { o.Sentiment.Scale = "stars" }},
		{"inverted thresholds", func(o *Options) { o.Sentiment.Thresholds = Thresholds{Moderate: 0.7, Strong: 0.3} }},
		{"unknown mode", func(o *Options) { o.Feature = client.FeatureClassification; o.Classification.Mode = "some" }},
		{"negative max", func(o *Options) { o.Feature = client.FeatureClassification; o.Classification.MaxCategories = -2 }},
		{"unknown feature", func(o *Options) { o.Feature = "syntax" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions(client.FeatureSentiment)
			tt.mutate(&opts)
			_, err := New(opts, input)
			assert.True(t, apierror.IsConfiguration(err), "got %v", err)
		})
	}
}
