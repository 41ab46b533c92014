package domain

import "time"

// SourceKind identifies the fetch/parse strategy for a source
type SourceKind string

// supported source kinds
const (
	SourceKindRSS  SourceKind = "rss"
	SourceKindHTML SourceKind = "html"
)

// HTMLSelectors describes how to locate article-like blocks on a scraped page.
// Containers are tried in order, the first selector yielding at least one
// match wins; selectors are never combined.
type HTMLSelectors struct {
	Containers []string `yaml:"containers" json:"containers"`
	Title      string   `yaml:"title" json:"title"`
	Link       string   `yaml:"link" json:"link"`
	Date       string   `yaml:"date" json:"date"`
	Author     string   `yaml:"author" json:"author"`
	Summary    string   `yaml:"summary" json:"summary"`
}

// Source is a configured upstream feed or page to poll. Created at
// configuration load and never deleted at runtime; poll bookkeeping
// (last checked time, last status) lives in the registry, not here.
type Source struct {
	ID            string         `yaml:"id" json:"id"`
	Name          string         `yaml:"name" json:"name"`
	URL           string         `yaml:"url" json:"url"`
	Kind          SourceKind     `yaml:"kind" json:"kind"`
	AuthorityName string         `yaml:"authority" json:"authority"`
	Region        string         `yaml:"region" json:"region"`
	Active        bool           `yaml:"active" json:"active"`
	PollInterval  time.Duration  `yaml:"poll_interval" json:"poll_interval"`
	RequiresAuth  bool           `yaml:"requires_auth" json:"requires_auth"`
	Selectors     *HTMLSelectors `yaml:"selectors,omitempty" json:"selectors,omitempty"`
}

// SourceStatus is a point-in-time snapshot of a source's poll state,
// exposed through the status API.
type SourceStatus struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Active        bool       `json:"active"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	LastStatus    string     `json:"last_status"`
	LastError     string     `json:"last_error,omitempty"`
}
