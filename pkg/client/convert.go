package client

import (
	"fmt"

	language "google.golang.org/api/language/v1"

	"github.com/Sternrassler/nlp-enrich/pkg/apierror"
)

func malformed(msg string) error {
	return apierror.Permanent(apierror.KindMalformedResponse, msg, nil)
}

func sentimentFromResponse(resp *language.AnalyzeSentimentResponse) (Result, error) {
	if resp == nil || resp.DocumentSentiment == nil {
		return nil, malformed("response missing documentSentiment")
	}

	res := SentimentResult{
		Sentiment: Sentiment{
			Score:     resp.DocumentSentiment.Score,
			Magnitude: resp.DocumentSentiment.Magnitude,
		},
		Language: resp.Language,
	}
	for _, s := range resp.Sentences {
		if s == nil || s.Sentiment == nil {
			continue
		}
		ss := SentenceSentiment{Score: s.Sentiment.Score, Magnitude: s.Sentiment.Magnitude}
		if s.Text != nil {
			ss.Text = s.Text.Content
			ss.BeginOffset = s.Text.BeginOffset
		}
		res.Sentences = append(res.Sentences, ss)
	}
	return res, nil
}

func entitiesFromResponse(entities []*language.Entity, lang string, withSentiment bool) (Result, error) {
	res := EntityResult{Entities: make([]Entity, 0, len(entities)), Language: lang}
	for i, e := range entities {
		if e == nil {
			return nil, malformed("entity list contains a null entry")
		}
		if e.Name == "" {
			return nil, malformed(fmt.Sprintf("entity %d without name", i))
		}

		ent := Entity{
			Name:     e.Name,
			Type:     e.Type,
			Salience: e.Salience,
			Mentions: make([]Mention, 0, len(e.Mentions)),
		}
		for _, m := range e.Mentions {
			if m == nil || m.Text == nil {
				continue
			}
			ent.Mentions = append(ent.Mentions, Mention{Text: m.Text.Content, BeginOffset: m.Text.BeginOffset})
		}
		if withSentiment {
			if e.Sentiment == nil {
				return nil, malformed("entity " + e.Name + " missing sentiment")
			}
			ent.Sentiment = &Sentiment{Score: e.Sentiment.Score, Magnitude: e.Sentiment.Magnitude}
		}
		res.Entities = append(res.Entities, ent)
	}
	return res, nil
}

func classificationFromResponse(resp *language.ClassifyTextResponse) (Result, error) {
	if resp == nil {
		return nil, malformed("empty classification response")
	}
	res := ClassificationResult{Categories: make([]Category, 0, len(resp.Categories))}
	for _, c := range resp.Categories {
		if c == nil || c.Name == "" {
			return nil, malformed("category without name")
		}
		res.Categories = append(res.Categories, Category{Name: c.Name, Confidence: c.Confidence})
	}
	return res, nil
}
