// Package flatten turns analysis payloads into flat output rows.
//
// Scalar features (sentiment, language detection) yield exactly one row per
// record. List features yield one row per retained element: entities after
// the type allow-list and salience filter, categories after sorting by
// confidence. Failure outcomes yield no rows and are handed back as errors
// for the error policy to resolve.
package flatten

import (
	"encoding/json"
	"fmt"

	"github.com/Sternrassler/nlp-enrich/pkg/apierror"
	"github.com/Sternrassler/nlp-enrich/pkg/client"
	"github.com/Sternrassler/nlp-enrich/pkg/dispatch"
	"github.com/Sternrassler/nlp-enrich/pkg/table"
)

// ErrorColumnNames holds the names of the error columns.
type ErrorColumnNames struct {
	Message string
	Type    string
	Raw     string // empty unless verbose
}

// Flattener converts outcomes into FlatRows with a fixed column set.
type Flattener struct {
	opts    Options
	columns []table.Column
	errCols []table.Column
	names   columnNames
	errs    ErrorColumnNames
}

type columnNames struct {
	score, scaled, magnitude, sentences    string
	name, kind, salience, mentions, offset string
	entScore, entMagnitude                 string
	category, confidence, rank             string
	language                               string
	raw                                    string
}

// New validates opts and derives column names that do not collide with
// inputColumns.
func New(opts Options, inputColumns []string) (*Flattener, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	f := &Flattener{opts: opts}
	namer := table.NewNamer(inputColumns)
	add := func(name string, typ table.ColumnType, desc string) string {
		col := namer.Unique(opts.Prefix, name)
		f.columns = append(f.columns, table.Column{Name: col, Type: typ, Description: desc})
		return col
	}

	switch opts.Feature {
	case client.FeatureSentiment:
		f.names.score = add("score", table.TypeDouble, "Sentiment score from -1 (negative) to 1 (positive)")
		f.names.scaled = add("score_scaled", opts.Sentiment.Scale.ColumnType(), "Scaled sentiment score according to the sentiment scale")
		f.names.magnitude = add("magnitude", table.TypeDouble, "Sentiment magnitude from 0 to +inf")
		if opts.Sentiment.IncludeSentences {
			f.names.sentences = add("sentences", table.TypeString, "Per-sentence sentiment as JSON")
		}
	case client.FeatureEntities:
		f.names.name = add("entity_name", table.TypeString, "Entity name")
		f.names.kind = add("entity_type", table.TypeString, "Entity type")
		f.names.salience = add("salience", table.TypeDouble, "Entity salience from 0 to 1")
		f.names.mentions = add("mention_count", table.TypeInt64, "Number of mentions in the text")
		f.names.offset = add("offsets", table.TypeString, "Character offsets of mentions as JSON")
		if opts.Entities.Sentiment {
			f.names.entScore = add("entity_sentiment_score", table.TypeDouble, "Entity sentiment score from -1 to 1")
			f.names.entMagnitude = add("entity_sentiment_magnitude", table.TypeDouble, "Entity sentiment magnitude")
		}
	case client.FeatureClassification:
		f.names.category = add("category", table.TypeString, "Content category")
		f.names.confidence = add("confidence", table.TypeDouble, "Category confidence from 0 to 1")
		f.names.rank = add("category_rank", table.TypeInt64, "Category rank by confidence, starting at 1")
	case client.FeatureLanguageDetection:
		f.names.language = add("detected_language", table.TypeString, "Detected language code")
	}
	if opts.IncludeRaw {
		f.names.raw = add("raw_response", table.TypeString, "Raw response payload as JSON")
	}

	if opts.ErrorColumns {
		addErr := func(name, desc string) string {
			col := namer.Unique(opts.Prefix, name)
			f.errCols = append(f.errCols, table.Column{Name: col, Type: table.TypeString, Description: desc})
			return col
		}
		f.errs.Message = addErr("error_message", "Error message from the API")
		f.errs.Type = addErr("error_type", "Error type")
		if opts.VerboseErrors {
			f.errs.Raw = addErr("error_raw", "Raw error text")
		}
	}
	return f, nil
}

// Options returns the normalized options.
func (f *Flattener) Options() Options {
	return f.opts
}

// Columns returns the enrichment columns in output order.
func (f *Flattener) Columns() []table.Column {
	return f.columns
}

// ErrorColumns returns the error columns, empty unless enabled.
func (f *Flattener) ErrorColumns() []table.Column {
	return f.errCols
}

// ErrorNames returns the error column names.
func (f *Flattener) ErrorNames() ErrorColumnNames {
	return f.errs
}

// AllColumns returns enrichment followed by error columns.
func (f *Flattener) AllColumns() []table.Column {
	out := make([]table.Column, 0, len(f.columns)+len(f.errCols))
	out = append(out, f.columns...)
	return append(out, f.errCols...)
}

// Flatten returns the rows for one record. A failed outcome yields no rows
// and its *dispatch.Failure as the error. A payload that does not match the
// configured feature is a ProgrammingError.
func (f *Flattener) Flatten(rec table.Record, out dispatch.Outcome[client.Result]) ([]table.FlatRow, error) {
	if out.Failure != nil {
		return nil, out.Failure
	}
	if out.Index != rec.Index {
		return nil, apierror.Programmingf("outcome for record %d flattened against record %d", out.Index, rec.Index)
	}

	switch p := out.Payload.(type) {
	case client.EmptyResult:
		return f.empty(rec.Index), nil
	case client.SentimentResult:
		if err := f.expect(client.FeatureSentiment); err != nil {
			return nil, err
		}
		return f.sentiment(rec.Index, p)
	case client.EntityResult:
		if err := f.expect(client.FeatureEntities); err != nil {
			return nil, err
		}
		return f.entities(rec.Index, p)
	case client.ClassificationResult:
		if err := f.expect(client.FeatureClassification); err != nil {
			return nil, err
		}
		return f.classification(rec.Index, p)
	case client.LanguageResult:
		if err := f.expect(client.FeatureLanguageDetection); err != nil {
			return nil, err
		}
		return f.language(rec.Index, p)
	case nil:
		return nil, apierror.Programmingf("record %d succeeded without payload", rec.Index)
	default:
		return nil, apierror.Programmingf("record %d: unexpected payload %T", rec.Index, p)
	}
}

func (f *Flattener) expect(got client.Feature) error {
	if got != f.opts.Feature {
		return apierror.Programmingf("got %s payload, configured for %s", got, f.opts.Feature)
	}
	return nil
}

// empty handles blank input: one null row for scalar features, none for
// list features.
func (f *Flattener) empty(index int) []table.FlatRow {
	switch f.opts.Feature {
	case client.FeatureSentiment, client.FeatureLanguageDetection:
		return []table.FlatRow{table.NullRow(index, f.columns)}
	default:
		return nil
	}
}

func (f *Flattener) row(index int, payload client.Result) (table.FlatRow, error) {
	row := table.NullRow(index, f.columns)
	if f.names.raw != "" {
		raw, err := json.Marshal(payload)
		if err != nil {
			return row, fmt.Errorf("encode raw response: %w", err)
		}
		row.Values[f.names.raw] = string(raw)
	}
	return row, nil
}

func (f *Flattener) language(index int, p client.LanguageResult) ([]table.FlatRow, error) {
	row, err := f.row(index, p)
	if err != nil {
		return nil, err
	}
	lang := p.Language
	if lang == "" {
		lang = UnknownLanguage
	}
	row.Values[f.names.language] = lang
	return []table.FlatRow{row}, nil
}
