package flatten

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/Sternrassler/nlp-enrich/pkg/client"
	"github.com/Sternrassler/nlp-enrich/pkg/table"
)

func (f *Flattener) sentiment(index int, p client.SentimentResult) ([]table.FlatRow, error) {
	row, err := f.row(index, p)
	if err != nil {
		return nil, err
	}
	opts := f.opts.Sentiment
	row.Values[f.names.score] = p.Score
	row.Values[f.names.scaled] = opts.Scale.Apply(p.Score, opts.Thresholds)
	row.Values[f.names.magnitude] = p.Magnitude

	if f.names.sentences != "" {
		type sentence struct {
			Text      string  `json:"text"`
			Score     float64 `json:"score"`
			Magnitude float64 `json:"magnitude"`
		}
		out := make([]sentence, len(p.Sentences))
		for i, s := range p.Sentences {
			out[i] = sentence{Text: s.Text, Score: s.Score, Magnitude: s.Magnitude}
		}
		data, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("encode sentences: %w", err)
		}
		row.Values[f.names.sentences] = string(data)
	}
	return []table.FlatRow{row}, nil
}

func (f *Flattener) entities(index int, p client.EntityResult) ([]table.FlatRow, error) {
	opts := f.opts.Entities
	rows := make([]table.FlatRow, 0, len(p.Entities))

	for _, e := range p.Entities {
		kind := e.Type
		if !slices.Contains(EntityTypes, kind) {
			kind = UnknownEntityType
		}
		if len(opts.Types) > 0 && !slices.Contains(opts.Types, kind) {
			continue
		}
		if e.Salience < opts.MinSalience {
			continue
		}

		row, err := f.row(index, p)
		if err != nil {
			return nil, err
		}
		offsets, err := json.Marshal(e.Offsets())
		if err != nil {
			return nil, fmt.Errorf("encode offsets: %w", err)
		}

		row.Values[f.names.name] = e.Name
		row.Values[f.names.kind] = kind
		row.Values[f.names.salience] = e.Salience
		row.Values[f.names.mentions] = int64(len(e.Mentions))
		row.Values[f.names.offset] = string(offsets)
		if opts.Sentiment && e.Sentiment != nil {
			row.Values[f.names.entScore] = e.Sentiment.Score
			row.Values[f.names.entMagnitude] = e.Sentiment.Magnitude
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (f *Flattener) classification(index int, p client.ClassificationResult) ([]table.FlatRow, error) {
	opts := f.opts.Classification

	cats := slices.Clone(p.Categories)
	sort.SliceStable(cats, func(i, j int) bool {
		if cats[i].Confidence != cats[j].Confidence {
			return cats[i].Confidence > cats[j].Confidence
		}
		return cats[i].Name < cats[j].Name
	})
	if opts.Mode == CategoriesTopN && len(cats) > opts.MaxCategories {
		cats = cats[:opts.MaxCategories]
	}

	rows := make([]table.FlatRow, 0, len(cats))
	for i, c := range cats {
		row, err := f.row(index, p)
		if err != nil {
			return nil, err
		}
		name := c.Name
		if opts.StripLabelPrefix {
			name = leafLabel(name)
		}
		row.Values[f.names.category] = name
		row.Values[f.names.confidence] = c.Confidence
		row.Values[f.names.rank] = int64(i + 1)
		rows = append(rows, row)
	}
	return rows, nil
}

// leafLabel keeps the last segment of a hierarchical label such as
// "/Arts & Entertainment/Music".
func leafLabel(label string) string {
	trimmed := strings.TrimRight(label, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 && i < len(trimmed)-1 {
		return trimmed[i+1:]
	}
	return label
}
