// Package dedup provides stable item fingerprinting and pluggable
// duplicate lookups for the ingestion pipeline.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/mdwatch/regpulse/pkg/domain"
)

// Fingerprint derives the stable dedup identity of a raw item. Precedence:
// guid when present, else normalized link, else normalized title. The result
// is identical across runs for byte-identical upstream content.
func Fingerprint(item domain.RawItem) string {
	var key string
	switch {
	case strings.TrimSpace(item.GUID) != "":
		key = "guid|" + strings.TrimSpace(item.GUID)
	case strings.TrimSpace(item.Link) != "":
		key = "link|" + normalize(item.Link)
	default:
		key = "title|" + normalize(item.Title)
	}

	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// normalize lowercases, trims and collapses inner whitespace so trivial
// formatting drift upstream doesn't break identity
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
