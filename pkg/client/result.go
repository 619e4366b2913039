package client

// Result is the validated payload of a successful call. Exactly one concrete
// type exists per Feature, plus EmptyResult for blank input text.
type Result interface {
	Feature() Feature
}

// Sentiment is a score in [-1,1] with a non-negative magnitude.
type Sentiment struct {
	Score     float64 `json:"score"`
	Magnitude float64 `json:"magnitude"`
}

// SentenceSentiment is the sentiment of one sentence.
type SentenceSentiment struct {
	Text        string  `json:"text"`
	BeginOffset int64   `json:"begin_offset"`
	Score       float64 `json:"score"`
	Magnitude   float64 `json:"magnitude"`
}

// SentimentResult is the document-level sentiment.
type SentimentResult struct {
	Sentiment
	Language  string              `json:"language"`
	Sentences []SentenceSentiment `json:"sentences,omitempty"`
}

func (SentimentResult) Feature() Feature { return FeatureSentiment }

// Mention is one occurrence of an entity in the text.
type Mention struct {
	Text        string `json:"text"`
	BeginOffset int64  `json:"begin_offset"`
}

// Entity is a named entity found in the text.
type Entity struct {
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	Salience  float64    `json:"salience"`
	Mentions  []Mention  `json:"mentions"`
	Sentiment *Sentiment `json:"sentiment,omitempty"`
}

// Offsets returns the begin offsets of all mentions.
func (e Entity) Offsets() []int64 {
	out := make([]int64, len(e.Mentions))
	for i, m := range e.Mentions {
		out[i] = m.BeginOffset
	}
	return out
}

// EntityResult lists the entities of a text in service order.
type EntityResult struct {
	Entities []Entity `json:"entities"`
	Language string   `json:"language"`
}

func (EntityResult) Feature() Feature { return FeatureEntities }

// Category is one content category with its confidence.
type Category struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// ClassificationResult lists content categories as returned by the service.
type ClassificationResult struct {
	Categories []Category `json:"categories"`
}

func (ClassificationResult) Feature() Feature { return FeatureClassification }

// LanguageResult carries the language the service detected.
type LanguageResult struct {
	Language string `json:"language"`
}

func (LanguageResult) Feature() Feature { return FeatureLanguageDetection }

// EmptyResult stands in for blank input text; no call was made.
type EmptyResult struct {
	Of Feature `json:"of"`
}

func (r EmptyResult) Feature() Feature { return r.Of }
