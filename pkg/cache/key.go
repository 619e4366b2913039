package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Key identifies a cached response.
type Key struct {
	// Feature is the analysis name, e.g. "sentiment".
	Feature string

	// Language is the language hint sent with the text ("" for auto).
	Language string

	// Flags are feature options that change the response.
	Flags map[string]string

	// Text is the analysed text. Only its digest ends up in the key.
	Text string
}

// String generates a deterministic cache key string.
// Format: nlp:feature:lang:flag1=v1:flag2=v2:sha256
//
// Example:
//
//	nlp:entities:auto:sentiment=true:9f86d081884c7d65...
func (k Key) String() string {
	lang := k.Language
	if lang == "" {
		lang = "auto"
	}
	parts := []string{"nlp", k.Feature, lang}

	if len(k.Flags) > 0 {
		names := make([]string, 0, len(k.Flags))
		for name := range k.Flags {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, k.Flags[name]))
		}
	}

	sum := sha256.Sum256([]byte(k.Text))
	parts = append(parts, hex.EncodeToString(sum[:]))
	return strings.Join(parts, ":")
}
