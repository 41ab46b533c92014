package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RawItem is one upstream entry as produced by a parser, before
// classification and deduplication. Ephemeral, never persisted as-is.
type RawItem struct {
	Title        string
	Link         string
	Description  string
	PublishedRaw string
	Published    time.Time
	GUID         string
	Categories   []string
	Author       string
}

// Priority is the heuristic urgency assigned to an update
type Priority string

// priority levels, ordered low to critical
const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// NormalizedUpdate is the canonical persisted ingestion record. Immutable
// after creation; corrections require a new record.
type NormalizedUpdate struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Content     string            `json:"content"`
	SourceID    string            `json:"source_id"`
	SourceName  string            `json:"source_name"`
	Region      string            `json:"region"`
	Authority   string            `json:"authority"`
	UpdateType  string            `json:"update_type"`
	Priority    Priority          `json:"priority"`
	Published   time.Time         `json:"published"`
	Fingerprint string            `json:"fingerprint"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// UpdateID derives the deterministic record ID for a source/fingerprint pair.
// Repeated ingestion of the same upstream item always yields the same ID,
// which makes concurrent duplicate writes idempotent.
func UpdateID(sourceID, fingerprint string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, fmt.Appendf(nil, "%s|%s", sourceID, fingerprint)).String()
}

// SyncStats aggregates the outcome of one ingestion run. ArticlesExtracted
// counts newly persisted updates, not raw parsed entries.
type SyncStats struct {
	SourcesProcessed  int           `json:"sources_processed"`
	ArticlesExtracted int           `json:"articles_extracted"`
	DuplicatesSkipped int           `json:"duplicates_skipped"`
	Errors            int           `json:"errors"`
	StartedAt         time.Time     `json:"started_at"`
	Elapsed           time.Duration `json:"elapsed"`
}

// Add merges another stats object into this one
func (s *SyncStats) Add(other SyncStats) {
	s.SourcesProcessed += other.SourcesProcessed
	s.ArticlesExtracted += other.ArticlesExtracted
	s.DuplicatesSkipped += other.DuplicatesSkipped
	s.Errors += other.Errors
}
