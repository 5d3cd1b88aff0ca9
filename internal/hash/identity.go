// Package hash derives stable record identities via SHA-256.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ExternalID derives a deterministic posting identity from a canonical
// detail URL. The same listing re-crawled later yields the same identity.
func ExternalID(canonicalURL string) string {
	sum := sha256.Sum256([]byte(canonicalURL))
	return hex.EncodeToString(sum[:])
}

// Content hashes the stable descriptive fields of a posting so re-posted
// listings with a new URL can still be recognized. Fields are trimmed and
// lowercased so cosmetic whitespace or casing changes do not defeat the
// match. When every field is empty there is no content to match on and
// Content returns "": otherwise every posting whose extraction degraded to
// all-absent would share one hash and collapse into a single identity.
func Content(title, company, description string) string {
	h := sha256.New()
	empty := true
	for _, field := range []string{title, company, description} {
		norm := strings.ToLower(strings.TrimSpace(field))
		if norm != "" {
			empty = false
		}
		h.Write([]byte(norm))
		h.Write([]byte{0})
	}
	if empty {
		return ""
	}
	return hex.EncodeToString(h.Sum(nil))
}
