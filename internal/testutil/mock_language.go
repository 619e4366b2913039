// Package testutil provides a mock of the natural language REST API for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// REST paths served by the mock.
const (
	PathAnalyzeSentiment       = "/v1/documents:analyzeSentiment"
	PathAnalyzeEntities        = "/v1/documents:analyzeEntities"
	PathAnalyzeEntitySentiment = "/v1/documents:analyzeEntitySentiment"
	PathClassifyText           = "/v1/documents:classifyText"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// MockLanguage is a configurable mock language API server.
type MockLanguage struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	requestCount int
	pathCounts   map[string]int
	lastContent  string
}

// NewMockLanguage creates a new mock server.
func NewMockLanguage() *MockLanguage {
	mock := &MockLanguage{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		pathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[r.URL.Path]++
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		writeResponse(w, NewErrorResponse(http.StatusNotFound, "NOT_FOUND", "no handler for "+r.URL.Path))
	}))

	return mock
}

// URL returns the mock server URL with a trailing slash, suitable as an
// API endpoint.
func (m *MockLanguage) URL() string {
	return m.server.URL + "/"
}

// Client returns an HTTP client for the server.
func (m *MockLanguage) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the mock server.
func (m *MockLanguage) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockLanguage) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.pathCounts = make(map[string]int)
	m.lastContent = ""
}

// SetHandler sets a custom handler for a specific path.
func (m *MockLanguage) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockLanguage) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		m.recordContent(r)
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		writeResponse(w, resp)
	})
}

// SetTextHandler answers each request with respond(document content).
func (m *MockLanguage) SetTextHandler(path string, respond func(text string) MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		text := m.recordContent(r)
		resp := respond(text)
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		writeResponse(w, resp)
	})
}

// SetSequence answers successive requests with responses in order and
// repeats the last one afterwards.
func (m *MockLanguage) SetSequence(path string, responses ...MockResponse) {
	var (
		mu sync.Mutex
		n  int
	)
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		m.recordContent(r)
		mu.Lock()
		resp := responses[min(n, len(responses)-1)]
		n++
		mu.Unlock()
		writeResponse(w, resp)
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockLanguage) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// GetPathCount returns the number of requests made to path.
func (m *MockLanguage) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// LastContent returns the document content of the most recent request.
func (m *MockLanguage) LastContent() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastContent
}

func (m *MockLanguage) recordContent(r *http.Request) string {
	body, _ := io.ReadAll(r.Body)
	var req struct {
		Document struct {
			Content string `json:"content"`
		} `json:"document"`
	}
	_ = json.Unmarshal(body, &req)

	m.mu.Lock()
	m.lastContent = req.Document.Content
	m.mu.Unlock()
	return req.Document.Content
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewSentimentResponse creates a 200 analyzeSentiment response.
func NewSentimentResponse(score, magnitude float64, language string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body: fmt.Sprintf(`{"documentSentiment":{"score":%g,"magnitude":%g},"language":%q,"sentences":[{"text":{"content":"s","beginOffset":0},"sentiment":{"score":%g,"magnitude":%g}}]}`,
			score, magnitude, language, score, magnitude),
	}
}

// MockEntity is one entity in a mocked analyzeEntities response.
type MockEntity struct {
	Name     string
	Type     string
	Salience float64
	Offsets  []int
}

// NewEntitiesResponse creates a 200 analyzeEntities response.
func NewEntitiesResponse(language string, entities ...MockEntity) MockResponse {
	type span struct {
		Content     string `json:"content"`
		BeginOffset int    `json:"beginOffset"`
	}
	type mention struct {
		Text span   `json:"text"`
		Type string `json:"type"`
	}
	type entity struct {
		Name      string             `json:"name"`
		Type      string             `json:"type"`
		Salience  float64            `json:"salience"`
		Mentions  []mention          `json:"mentions"`
		Sentiment map[string]float64 `json:"sentiment"`
	}

	out := make([]entity, 0, len(entities))
	for _, e := range entities {
		ms := make([]mention, 0, len(e.Offsets))
		for _, off := range e.Offsets {
			ms = append(ms, mention{Text: span{Content: e.Name, BeginOffset: off}, Type: "PROPER"})
		}
		out = append(out, entity{
			Name:      e.Name,
			Type:      e.Type,
			Salience:  e.Salience,
			Mentions:  ms,
			Sentiment: map[string]float64{"score": 0.5, "magnitude": 0.5},
		})
	}

	body, _ := json.Marshal(map[string]any{"entities": out, "language": language})
	return MockResponse{StatusCode: http.StatusOK, Body: string(body)}
}

// MockCategory is one category in a mocked classifyText response.
type MockCategory struct {
	Name       string
	Confidence float64
}

// NewClassifyResponse creates a 200 classifyText response.
func NewClassifyResponse(categories ...MockCategory) MockResponse {
	type category struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	}
	out := make([]category, 0, len(categories))
	for _, c := range categories {
		out = append(out, category{Name: c.Name, Confidence: c.Confidence})
	}
	body, _ := json.Marshal(map[string]any{"categories": out})
	return MockResponse{StatusCode: http.StatusOK, Body: string(body)}
}

// NewErrorResponse creates an error response in the API's error envelope.
func NewErrorResponse(code int, status, message string) MockResponse {
	body, _ := json.Marshal(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
			"status":  status,
		},
	})
	return MockResponse{StatusCode: code, Body: string(body)}
}

// NewQuotaResponse creates a 429 RESOURCE_EXHAUSTED response.
func NewQuotaResponse() MockResponse {
	return NewErrorResponse(http.StatusTooManyRequests, "RESOURCE_EXHAUSTED", "Quota exceeded")
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return NewErrorResponse(http.StatusInternalServerError, "INTERNAL", "Internal error encountered")
}

// NewInvalidArgumentResponse creates a 400 INVALID_ARGUMENT response.
func NewInvalidArgumentResponse(message string) MockResponse {
	return NewErrorResponse(http.StatusBadRequest, "INVALID_ARGUMENT", message)
}
