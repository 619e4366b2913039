package cache

import (
	"strings"
	"testing"
	"time"
)

func TestKey_String(t *testing.T) {
	tests := []struct {
		name       string
		key        Key
		wantPrefix string
	}{
		{
			name:       "auto language",
			key:        Key{Feature: "sentiment", Text: "hello"},
			wantPrefix: "nlp:sentiment:auto:",
		},
		{
			name:       "explicit language",
			key:        Key{Feature: "classification", Language: "de", Text: "hallo"},
			wantPrefix: "nlp:classification:de:",
		},
		{
			name:       "sorted flags",
			key:        Key{Feature: "entities", Flags: map[string]string{"sentiment": "true", "encoding": "UTF8"}, Text: "x"},
			wantPrefix: "nlp:entities:auto:encoding=UTF8:sentiment=true:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.key.String()
			if !strings.HasPrefix(got, tt.wantPrefix) {
				t.Errorf("String() = %q, want prefix %q", got, tt.wantPrefix)
			}
			if strings.Contains(got, tt.key.Text+":") || strings.HasSuffix(got, ":"+tt.key.Text) {
				t.Errorf("String() = %q leaks the raw text", got)
			}
		})
	}
}

func TestKey_Deterministic(t *testing.T) {
	a := Key{Feature: "entities", Flags: map[string]string{"b": "2", "a": "1"}, Text: "same"}
	b := Key{Feature: "entities", Flags: map[string]string{"a": "1", "b": "2"}, Text: "same"}
	if a.String() != b.String() {
		t.Errorf("keys differ: %q vs %q", a.String(), b.String())
	}

	c := Key{Feature: "entities", Flags: map[string]string{"a": "1", "b": "2"}, Text: "other"}
	if a.String() == c.String() {
		t.Error("different texts must produce different keys")
	}
}

func TestEntry_TTL(t *testing.T) {
	fresh := NewEntry("sentiment", []byte(`{}`), time.Hour)
	if fresh.IsExpired() {
		t.Error("fresh entry should not be expired")
	}
	if ttl := fresh.TTL(); ttl <= 59*time.Minute || ttl > time.Hour {
		t.Errorf("TTL() = %v, want about 1h", ttl)
	}

	stale := &Entry{Expires: time.Now().Add(-time.Second)}
	if !stale.IsExpired() || stale.TTL() != 0 {
		t.Errorf("stale entry: IsExpired = %v, TTL = %v", stale.IsExpired(), stale.TTL())
	}
}
