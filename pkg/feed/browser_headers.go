package feed

import (
	"math/rand"
	"net/http"

	"github.com/mdwatch/regpulse/pkg/domain"
)

// acceptLanguages contains common browser Accept-Language values
var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-GB,en;q=0.9",
	"en-US,en;q=0.9,de;q=0.8",
	"en-US,en;q=0.9,fr;q=0.8",
}

// addBrowserHeaders adds browser-like headers for upstream fetching.
// Regulatory sites often block obvious bots, so we want to look legitimate.
func addBrowserHeaders(req *http.Request, kind domain.SourceKind) {
	switch kind {
	case domain.SourceKindHTML:
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	default:
		// accept header for feeds - include both RSS and HTML
		req.Header.Set("Accept", "application/rss+xml,application/atom+xml,application/xml;q=0.9,text/xml;q=0.8,text/html;q=0.7,*/*;q=0.5")
	}

	// don't request compression - simpler to handle
	req.Header.Set("Cache-Control", "no-cache")

	// randomized language
	req.Header.Set("Accept-Language", acceptLanguages[rand.Intn(len(acceptLanguages))]) //nolint:gosec // non-cryptographic randomness is fine for header variation

	req.Header.Set("Connection", "keep-alive")
}
