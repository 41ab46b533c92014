package dedup

import (
	"context"
	"fmt"
	"strings"

	"github.com/mdwatch/regpulse/pkg/domain"
)

// Lookup answers whether a candidate fingerprint has been seen before.
// Implementations must be safe for concurrent use.
type Lookup interface {
	Seen(ctx context.Context, sourceID, fingerprint string, item domain.RawItem) (bool, error)
}

// FingerprintStore is the persisted index consulted by IndexLookup
type FingerprintStore interface {
	FingerprintExists(ctx context.Context, sourceID, fingerprint string) (bool, error)
}

// IndexLookup checks candidates against a persisted fingerprint index.
// This is the production strategy: O(1) per check instead of scanning the
// whole corpus.
type IndexLookup struct {
	store FingerprintStore
}

// NewIndexLookup creates the indexed lookup
func NewIndexLookup(store FingerprintStore) *IndexLookup {
	return &IndexLookup{store: store}
}

// Seen checks the fingerprint index
func (l *IndexLookup) Seen(ctx context.Context, sourceID, fingerprint string, _ domain.RawItem) (bool, error) {
	exists, err := l.store.FingerprintExists(ctx, sourceID, fingerprint)
	if err != nil {
		return false, fmt.Errorf("fingerprint lookup: %w", err)
	}
	return exists, nil
}

// RecentStore supplies a bounded window of recently persisted updates
type RecentStore interface {
	ListRecentUpdates(ctx context.Context, limit int) ([]domain.NormalizedUpdate, error)
}

// WindowLookup is the fallback strategy for stores without a fingerprint
// index: a containment check against a bounded recent window. A candidate is
// a duplicate when a recent update has the same title or its content carries
// the candidate's link.
type WindowLookup struct {
	store  RecentStore
	window int
}

// NewWindowLookup creates the fallback lookup over the given window size
func NewWindowLookup(store RecentStore, window int) *WindowLookup {
	if window <= 0 {
		window = 200
	}
	return &WindowLookup{store: store, window: window}
}

// Seen scans the recent window for title equality or link containment
func (l *WindowLookup) Seen(ctx context.Context, _, _ string, item domain.RawItem) (bool, error) {
	recent, err := l.store.ListRecentUpdates(ctx, l.window)
	if err != nil {
		return false, fmt.Errorf("list recent updates: %w", err)
	}

	title := normalize(item.Title)
	link := strings.TrimSpace(item.Link)

	for _, upd := range recent {
		if normalize(upd.Title) == title {
			return true, nil
		}
		if link != "" && strings.Contains(upd.Content, link) {
			return true, nil
		}
	}
	return false, nil
}
