package cache

import (
	"encoding/json"
	"time"
)

// Entry is a cached analysis response.
type Entry struct {
	// Feature names the analysis that produced Payload.
	Feature string `json:"feature"`

	// Payload is the JSON-encoded result.
	Payload json.RawMessage `json:"payload"`

	// CachedAt is when the entry was stored.
	CachedAt time.Time `json:"cached_at"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`
}

// NewEntry wraps payload with an expiry ttl from now.
func NewEntry(feature string, payload json.RawMessage, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Feature:  feature,
		Payload:  payload,
		CachedAt: now,
		Expires:  now.Add(ttl),
	}
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration, or 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
