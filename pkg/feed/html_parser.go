package feed

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"

	"github.com/mdwatch/regpulse/pkg/domain"
)

// HTMLParser extracts article-like entries from scraped newsletter or
// press-release pages using an ordered list of CSS selector candidates.
// The first container selector that yields at least one match wins;
// candidates are never combined.
type HTMLParser struct {
	selectors      domain.HTMLSelectors
	baseURL        *url.URL
	minTitleLength int
}

// NewHTMLParser creates a parser for one configured HTML source. pageURL is
// used to resolve relative article links.
func NewHTMLParser(selectors domain.HTMLSelectors, pageURL string, minTitleLength int) (*HTMLParser, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page URL: %w", err)
	}
	if minTitleLength <= 0 {
		minTitleLength = 15
	}
	return &HTMLParser{selectors: selectors, baseURL: base, minTitleLength: minTitleLength}, nil
}

// Parse walks the selector candidates and extracts one RawItem per matched
// container. No matching selector is a degraded but valid outcome: the
// result is an empty slice, not an error.
func (p *HTMLParser) Parse(body []byte) ([]domain.RawItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var matched *goquery.Selection
	for _, candidate := range p.selectors.Containers {
		sel := doc.Find(candidate)
		if sel.Length() > 0 {
			matched = sel
			break
		}
	}
	if matched == nil {
		return []domain.RawItem{}, nil
	}

	var items []domain.RawItem
	matched.Each(func(_ int, el *goquery.Selection) {
		title := strings.TrimSpace(el.Find(p.selectors.Title).First().Text())
		if len(title) < p.minTitleLength {
			// short titles are almost always nav links or boilerplate
			return
		}

		item := domain.RawItem{Title: title}

		if p.selectors.Link != "" {
			if href, ok := el.Find(p.selectors.Link).First().Attr("href"); ok {
				item.Link = p.resolveLink(href)
			}
		}
		if item.Link == "" {
			if href, ok := el.Find("a[href]").First().Attr("href"); ok {
				item.Link = p.resolveLink(href)
			}
		}

		if p.selectors.Summary != "" {
			item.Description = strings.TrimSpace(el.Find(p.selectors.Summary).First().Text())
		}
		if p.selectors.Author != "" {
			item.Author = strings.TrimSpace(el.Find(p.selectors.Author).First().Text())
		}

		if p.selectors.Date != "" {
			item.PublishedRaw = dateText(el.Find(p.selectors.Date).First())
		}
		if t, err := dateparse.ParseAny(item.PublishedRaw); err == nil && item.PublishedRaw != "" {
			item.Published = t.UTC()
		} else {
			item.Published = time.Now().UTC()
		}

		items = append(items, item)
	})

	if items == nil {
		items = []domain.RawItem{}
	}
	return items, nil
}

// dateText prefers a machine-readable datetime attribute over element text
func dateText(sel *goquery.Selection) string {
	if dt, ok := sel.Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
		return strings.TrimSpace(dt)
	}
	return strings.TrimSpace(sel.Text())
}

// resolveLink makes relative article links absolute against the page URL
func (p *HTMLParser) resolveLink(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return p.baseURL.ResolveReference(ref).String()
}
