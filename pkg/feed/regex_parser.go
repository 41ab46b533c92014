package feed

import (
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/mdwatch/regpulse/pkg/domain"
)

// RegexFeedParser is a last-resort feed parser for markup the XML parser
// rejects. It is deliberately lenient: it scans for item/entry blocks with
// regular expressions and tolerates unclosed or mis-nested elements. The
// gofeed parser is always preferred; this exists only as a fallback behind
// the same Parser interface.
type RegexFeedParser struct{}

// NewRegexFeedParser creates the fallback parser
func NewRegexFeedParser() *RegexFeedParser {
	return &RegexFeedParser{}
}

var (
	reItemBlock  = regexp.MustCompile(`(?is)<(?:item|entry)[\s>].*?</(?:item|entry)>`)
	reTitle      = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	reLink       = regexp.MustCompile(`(?is)<link[^>]*>(.*?)</link>`)
	reLinkHref   = regexp.MustCompile(`(?is)<link[^>]*href=["']([^"']+)["']`)
	reDesc       = regexp.MustCompile(`(?is)<(?:description|summary|content(?::encoded)?)[^>]*>(.*?)</(?:description|summary|content(?::encoded)?)>`)
	reDate       = regexp.MustCompile(`(?is)<(?:pubDate|published|updated|dc:date)[^>]*>(.*?)</(?:pubDate|published|updated|dc:date)>`)
	reGUID       = regexp.MustCompile(`(?is)<(?:guid|id)[^>]*>(.*?)</(?:guid|id)>`)
	reCategory   = regexp.MustCompile(`(?is)<category[^>]*>(.*?)</category>`)
	reAuthor     = regexp.MustCompile(`(?is)<(?:author|dc:creator)[^>]*>(.*?)</(?:author|dc:creator)>`)
	reAuthorName = regexp.MustCompile(`(?is)<name[^>]*>(.*?)</name>`)
	reCDATA      = regexp.MustCompile(`(?is)<!\[CDATA\[(.*?)\]\]>`)
	reTag        = regexp.MustCompile(`(?s)<[^>]*>`)
)

// Parse scans the body for item/entry blocks and extracts the usual fields.
// Zero blocks yields an empty slice, never an error.
func (p *RegexFeedParser) Parse(body []byte) ([]domain.RawItem, error) {
	blocks := reItemBlock.FindAllString(string(body), -1)

	items := make([]domain.RawItem, 0, len(blocks))
	for _, block := range blocks {
		title := extractField(reTitle, block)
		if title == "" {
			continue
		}

		item := domain.RawItem{
			Title:       title,
			Link:        extractLink(block),
			Description: extractField(reDesc, block),
			GUID:        extractField(reGUID, block),
			Author:      extractAuthor(block),
		}

		for _, m := range reCategory.FindAllStringSubmatch(block, -1) {
			if c := cleanMarkup(m[1]); c != "" {
				item.Categories = append(item.Categories, c)
			}
		}

		item.PublishedRaw = extractField(reDate, block)
		if t, err := dateparse.ParseAny(item.PublishedRaw); err == nil && item.PublishedRaw != "" {
			item.Published = t.UTC()
		} else {
			item.Published = time.Now().UTC()
		}

		items = append(items, item)
	}

	return items, nil
}

// extractField pulls the first match and normalizes its markup
func extractField(re *regexp.Regexp, block string) string {
	m := re.FindStringSubmatch(block)
	if m == nil {
		return ""
	}
	return cleanMarkup(m[1])
}

// extractLink handles both RSS text links and Atom href attributes
func extractLink(block string) string {
	if link := extractField(reLink, block); link != "" {
		return link
	}
	if m := reLinkHref.FindStringSubmatch(block); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// extractAuthor handles plain text authors and Atom author/name nesting
func extractAuthor(block string) string {
	raw := reAuthor.FindStringSubmatch(block)
	if raw == nil {
		return ""
	}
	if name := reAuthorName.FindStringSubmatch(raw[1]); name != nil {
		return cleanMarkup(name[1])
	}
	return cleanMarkup(raw[1])
}

// cleanMarkup decodes CDATA sections, strips remaining tags and unescapes
// the five standard XML entities
func cleanMarkup(s string) string {
	if m := reCDATA.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	s = reTag.ReplaceAllString(s, "")
	s = unescapeXML(s)
	return strings.TrimSpace(s)
}

var xmlEntities = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&apos;", "'",
	"&amp;", "&", // must come last so escaped entities stay escaped
)

func unescapeXML(s string) string {
	return xmlEntities.Replace(s)
}
