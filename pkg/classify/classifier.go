// Package classify assigns priority and category to raw ingestion items
// using deterministic keyword heuristics. Same input always yields the same
// output, so reclassification runs are reproducible. This is intentionally
// not a learned model.
package classify

import (
	"regexp"
	"sort"
	"strings"

	"github.com/mdwatch/regpulse/pkg/domain"
)

// Result is the classification outcome for one item
type Result struct {
	Priority   domain.Priority
	Categories []string
	UpdateType string
}

// priority tiers, scanned in order; the first tier with any match wins.
// Bare "guidance" is deliberately absent from the high tier: a routine
// mention of guidance is not itself actionable, only new or changed
// guidance documents are.
var priorityTiers = []struct {
	priority domain.Priority
	keywords []string
}{
	{domain.PriorityCritical, []string{
		"recall", "safety alert", "urgent", "immediate action",
		"field safety notice", "serious incident", "do not use",
	}},
	{domain.PriorityHigh, []string{
		"warning", "draft guidance", "final guidance", "approval",
		"clearance", "enforcement", "suspension", "import alert",
	}},
	{domain.PriorityMedium, []string{
		"announcement", "update", "new", "change", "revision",
		"consultation", "notice",
	}},
}

// categorySets map a category label to the keywords that trigger it.
// Every matching set contributes its label; no match falls back to general.
var categorySets = map[string][]string{
	"implants": {
		"implant", "pacemaker", "stent", "defibrillator", "prosthesis", "hip replacement",
	},
	"diagnostics": {
		"diagnostic", "in vitro", "ivd", "imaging", "mri", "x-ray", "ultrasound", "assay",
	},
	"software": {
		"software", "samd", "cybersecurity", "algorithm", "mobile app", "firmware",
	},
	"surgical": {
		"surgical", "catheter", "endoscope", "laparoscopic", "suture",
	},
	"cardiology": {
		"cardiac", "cardiology", "cardiovascular", "heart valve",
	},
	"orthopedics": {
		"orthopedic", "orthopaedic", "spinal", "joint", "bone",
	},
	"oncology": {
		"oncology", "cancer", "tumor", "radiotherapy",
	},
	"regulatory-approval": {
		"510(k)", "pma", "ce mark", "de novo", "premarket", "market authorization", "conformity assessment",
	},
	"post-market": {
		"post-market", "postmarket", "vigilance", "surveillance", "adverse event", "mdr report",
	},
	"quality-systems": {
		"iso 13485", "quality system", "qms", "audit", "capa", "good manufacturing",
	},
}

// FallbackCategory is assigned when no keyword set matches
const FallbackCategory = "general"

// updateTypes map well-known regulatory actions to a coarse record type,
// checked in order
var updateTypes = []struct {
	name     string
	keywords []string
}{
	{"safety", []string{"recall", "safety alert", "field safety notice", "adverse event", "serious incident"}},
	{"guidance", []string{"guidance", "guideline", "recommendation"}},
	{"approval", []string{"approval", "clearance", "510(k)", "pma", "ce mark", "authorization", "authorisation"}},
	{"standard", []string{"iso ", "iec ", "standard", "harmonised", "harmonized"}},
	{"legal", []string{"court", "ruling", "lawsuit", "litigation", "injunction"}},
}

// matchers are compiled once; keyword matching is whole-word and
// case-insensitive so "new" does not match "news"
var (
	tierMatchers     [][]*regexp.Regexp
	categoryMatchers map[string][]*regexp.Regexp
	typeMatchers     [][]*regexp.Regexp
)

func init() {
	tierMatchers = make([][]*regexp.Regexp, len(priorityTiers))
	for i, tier := range priorityTiers {
		tierMatchers[i] = compileKeywords(tier.keywords)
	}
	categoryMatchers = make(map[string][]*regexp.Regexp, len(categorySets))
	for label, keywords := range categorySets {
		categoryMatchers[label] = compileKeywords(keywords)
	}
	typeMatchers = make([][]*regexp.Regexp, len(updateTypes))
	for i, ut := range updateTypes {
		typeMatchers[i] = compileKeywords(ut.keywords)
	}
}

func compileKeywords(keywords []string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(keywords))
	for i, kw := range keywords {
		// \b only works against word characters, so keywords like "510(k)"
		// get the boundary on word-character edges only
		pattern := regexp.QuoteMeta(strings.ToLower(kw))
		if isWordChar(kw[0]) {
			pattern = `\b` + pattern
		}
		if isWordChar(kw[len(kw)-1]) {
			pattern += `\b`
		}
		res[i] = regexp.MustCompile(`(?i)` + pattern)
	}
	return res
}

func isWordChar(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Classify assigns priority, categories and update type to a raw item.
// Pure function: no clock, no randomness, no external state.
func Classify(item domain.RawItem, source domain.Source) Result {
	text := item.Title + " " + item.Description

	result := Result{
		Priority:   domain.PriorityLow,
		UpdateType: "general",
	}

	for i, tier := range priorityTiers {
		if anyMatch(tierMatchers[i], text) {
			result.Priority = tier.priority
			break
		}
	}

	// upstream categories participate in matching too: authorities often
	// tag entries more reliably than they title them
	if len(item.Categories) > 0 {
		text += " " + strings.Join(item.Categories, " ")
	}

	for label, matchers := range categoryMatchers {
		if anyMatch(matchers, text) {
			result.Categories = append(result.Categories, label)
		}
	}
	if len(result.Categories) == 0 {
		result.Categories = []string{FallbackCategory}
	}
	// map iteration order is random; keep category output deterministic
	sort.Strings(result.Categories)

	for i, ut := range updateTypes {
		if anyMatch(typeMatchers[i], text) {
			result.UpdateType = ut.name
			break
		}
	}

	return result
}

func anyMatch(matchers []*regexp.Regexp, text string) bool {
	for _, m := range matchers {
		if m.MatchString(text) {
			return true
		}
	}
	return false
}
