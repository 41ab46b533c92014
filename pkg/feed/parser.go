package feed

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/mdwatch/regpulse/pkg/domain"
)

// Parser turns raw upstream content into canonical raw items. Zero matches
// is a valid outcome and returns an empty slice, not an error.
type Parser interface {
	Parse(body []byte) ([]domain.RawItem, error)
}

// FeedParser is the production RSS/Atom parser built on gofeed
type FeedParser struct {
	policy *bluemonday.Policy
}

// NewFeedParser creates the gofeed-backed parser
func NewFeedParser() *FeedParser {
	return &FeedParser{policy: bluemonday.StrictPolicy()}
}

// Parse extracts raw items from an RSS or Atom document. Items without a
// title are dropped; items without a date default to ingestion time.
func (p *FeedParser) Parse(body []byte) ([]domain.RawItem, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := make([]domain.RawItem, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		title := cleanText(p.policy, entry.Title)
		if title == "" {
			// untitled entries can't be deduplicated or displayed downstream
			continue
		}

		item := domain.RawItem{
			Title:        title,
			Link:         strings.TrimSpace(entry.Link),
			Description:  cleanText(p.policy, pickDescription(entry)),
			PublishedRaw: entry.Published,
			GUID:         strings.TrimSpace(entry.GUID),
			Categories:   entry.Categories,
		}

		if entry.Author != nil {
			item.Author = strings.TrimSpace(entry.Author.Name)
		}

		switch {
		case entry.PublishedParsed != nil:
			item.Published = entry.PublishedParsed.UTC()
		case entry.UpdatedParsed != nil:
			item.Published = entry.UpdatedParsed.UTC()
		default:
			item.Published = time.Now().UTC()
		}

		items = append(items, item)
	}

	return items, nil
}

// pickDescription prefers the summary but falls back to full content
func pickDescription(entry *gofeed.Item) string {
	if strings.TrimSpace(entry.Description) != "" {
		return entry.Description
	}
	return entry.Content
}

// cleanText strips HTML markup and unescapes entities
func cleanText(policy *bluemonday.Policy, s string) string {
	stripped := policy.Sanitize(s)
	return strings.TrimSpace(html.UnescapeString(stripped))
}
