// Package pipeline orchestrates the ingestion cycle across all configured
// sources: fetch, parse, classify, dedup, persist. Per-source failures are
// isolated; one broken upstream never blocks the rest of the run.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mdwatch/regpulse/pkg/classify"
	"github.com/mdwatch/regpulse/pkg/dedup"
	"github.com/mdwatch/regpulse/pkg/domain"
	"github.com/mdwatch/regpulse/pkg/feed"
)

// cycleState tracks where a source cycle is in its lifecycle, mostly for
// failure reporting
type cycleState string

const (
	statePending     cycleState = "pending"
	stateFetching    cycleState = "fetching"
	stateParsing     cycleState = "parsing"
	stateClassifying cycleState = "classifying"
	stateDeduping    cycleState = "deduping"
	statePersisting  cycleState = "persisting"
	stateDone        cycleState = "done"
	stateFailed      cycleState = "failed"
)

// Fetcher retrieves raw content for a source
type Fetcher interface {
	Fetch(ctx context.Context, url string, kind domain.SourceKind) (body []byte, contentType string, err error)
}

// Gateway persists normalized updates. CreateUpdate must be idempotent:
// created=false means the record already existed.
type Gateway interface {
	CreateUpdate(ctx context.Context, update *domain.NormalizedUpdate) (created bool, err error)
}

// Registry supplies sources and records poll attempts
type Registry interface {
	Get(id string) (domain.Source, error)
	All() []domain.Source
	Due(now time.Time) []domain.Source
	MarkChecked(id string, at time.Time, err error)
	Status() []domain.SourceStatus
}

// Enricher extracts linked-page text for items without a description
type Enricher interface {
	Extract(ctx context.Context, url string) (string, error)
}

// Config holds coordinator settings
type Config struct {
	MaxWorkers     int
	RequestDelay   time.Duration
	MinTitleLength int
	RegexFallback  bool
}

// Coordinator runs ingestion cycles over the registered sources
type Coordinator struct {
	registry    Registry
	fetcher     Fetcher
	gateway     Gateway
	lookup      dedup.Lookup
	enricher    Enricher // optional, may be nil
	feedParser  feed.Parser
	regexParser feed.Parser

	limiter        *rate.Limiter
	maxWorkers     int
	minTitleLength int
	regexFallback  bool

	mu       sync.Mutex
	inFlight map[string]struct{} // a source never runs two cycles at once
}

// New creates a coordinator
func New(reg Registry, fetcher Fetcher, gateway Gateway, lookup dedup.Lookup, enricher Enricher, cfg Config) *Coordinator {
	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.RequestDelay == 0 {
		cfg.RequestDelay = 1500 * time.Millisecond
	}
	if cfg.MinTitleLength == 0 {
		cfg.MinTitleLength = 15
	}

	return &Coordinator{
		registry:       reg,
		fetcher:        fetcher,
		gateway:        gateway,
		lookup:         lookup,
		enricher:       enricher,
		feedParser:     feed.NewFeedParser(),
		regexParser:    feed.NewRegexFeedParser(),
		limiter:        rate.NewLimiter(rate.Every(cfg.RequestDelay), 1),
		maxWorkers:     cfg.MaxWorkers,
		minTitleLength: cfg.MinTitleLength,
		regexFallback:  cfg.RegexFallback,
	}
}

// RunFullSync runs every active source once, ignoring the per-source poll
// gate, and returns aggregate stats. Manual trigger surface.
func (c *Coordinator) RunFullSync(ctx context.Context) (domain.SyncStats, error) {
	var active []domain.Source
	for _, src := range c.registry.All() {
		if src.Active {
			active = append(active, src)
		}
	}
	return c.runSources(ctx, active), nil
}

// RunSourceSync runs a single source by id, ignoring the poll gate
func (c *Coordinator) RunSourceSync(ctx context.Context, sourceID string) (domain.SyncStats, error) {
	src, err := c.registry.Get(sourceID)
	if err != nil {
		return domain.SyncStats{}, err
	}
	return c.runSources(ctx, []domain.Source{src}), nil
}

// StartContinuousMonitoring repeats gated ingestion runs at a fixed interval
// until the context is cancelled. The interval must be no longer than the
// smallest configured poll interval for per-source gating to stay meaningful;
// config validation enforces that.
func (c *Coordinator) StartContinuousMonitoring(ctx context.Context, interval time.Duration) {
	lgr.Printf("[INFO] continuous monitoring started, interval %v", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// run immediately on start
	c.runDue(ctx)

	for {
		select {
		case <-ctx.Done():
			lgr.Printf("[INFO] continuous monitoring stopped")
			return
		case <-ticker.C:
			c.runDue(ctx)
		}
	}
}

// SourceStatus returns the registry snapshot for the status API
func (c *Coordinator) SourceStatus() []domain.SourceStatus {
	return c.registry.Status()
}

// runDue runs all sources whose poll interval has elapsed
func (c *Coordinator) runDue(ctx context.Context) {
	due := c.registry.Due(time.Now())
	if len(due) == 0 {
		lgr.Printf("[DEBUG] no sources due")
		return
	}
	stats := c.runSources(ctx, due)
	lgr.Printf("[INFO] monitoring run done: %d sources, %d new, %d duplicates, %d errors (%v)",
		stats.SourcesProcessed, stats.ArticlesExtracted, stats.DuplicatesSkipped, stats.Errors, stats.Elapsed)
}

// runSources runs the given sources through a bounded worker pool. A shared
// rate limiter spaces outbound requests globally, so concurrent workers never
// hammer shared upstream infrastructure.
func (c *Coordinator) runSources(ctx context.Context, sources []domain.Source) domain.SyncStats {
	stats := domain.SyncStats{StartedAt: time.Now()}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxWorkers)

	for _, src := range sources {
		g.Go(func() error {
			srcStats := c.syncSource(gctx, src)
			mu.Lock()
			stats.Add(srcStats)
			mu.Unlock()
			return nil // per-source failures never abort the run
		})
	}

	_ = g.Wait() //nolint:errcheck // workers always return nil

	stats.Elapsed = time.Since(stats.StartedAt)
	return stats
}

// syncSource runs one full ingestion cycle for a source and records the
// attempt in the registry, success or failure
func (c *Coordinator) syncSource(ctx context.Context, src domain.Source) domain.SyncStats {
	var stats domain.SyncStats

	if !c.acquire(src.ID) {
		lgr.Printf("[WARN] source %s already syncing, skipped", src.ID)
		return stats
	}
	defer c.release(src.ID)

	state := statePending
	err := c.runCycle(ctx, src, &state, &stats)
	c.registry.MarkChecked(src.ID, time.Now(), err)

	if err != nil {
		lgr.Printf("[WARN] source %s failed in state %s: %v", src.ID, state, err)
		stats.Errors++
		return stats
	}

	stats.SourcesProcessed++
	return stats
}

// runCycle executes the fetch → parse → classify → dedup → persist state
// machine for one source
func (c *Coordinator) runCycle(ctx context.Context, src domain.Source, state *cycleState, stats *domain.SyncStats) error {
	*state = stateFetching
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	body, _, err := c.fetcher.Fetch(ctx, src.URL, src.Kind)
	if err != nil {
		return err
	}

	*state = stateParsing
	items, err := c.parse(src, body)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		// zero matches is a valid, if degraded, outcome
		lgr.Printf("[INFO] no articles found for source %s", src.ID)
		*state = stateDone
		return nil
	}

	seen := make(map[string]struct{}, len(items)) // duplicate fingerprints within one body
	for _, item := range items {
		*state = stateClassifying
		c.enrich(ctx, &item)
		cls := classify.Classify(item, src)

		*state = stateDeduping
		fingerprint := dedup.Fingerprint(item)
		if _, ok := seen[fingerprint]; ok {
			stats.DuplicatesSkipped++
			continue
		}
		seen[fingerprint] = struct{}{}

		dup, err := c.lookup.Seen(ctx, src.ID, fingerprint, item)
		if err != nil {
			lgr.Printf("[ERROR] dedup lookup failed for source %s: %v", src.ID, err)
			stats.Errors++
			continue
		}
		if dup {
			stats.DuplicatesSkipped++
			continue
		}

		*state = statePersisting
		update := c.normalize(src, item, cls, fingerprint)
		created, err := c.gateway.CreateUpdate(ctx, update)
		if err != nil {
			lgr.Printf("[ERROR] persist failed for source %s: %v", src.ID, err)
			stats.Errors++
			continue
		}
		if !created {
			// lost the write race to a concurrent cycle - still a duplicate
			stats.DuplicatesSkipped++
			continue
		}
		stats.ArticlesExtracted++
	}

	*state = stateDone
	return nil
}

// parse picks the parsing strategy for the source kind. The regex feed
// parser only engages when the real XML parser fails and fallback is on.
func (c *Coordinator) parse(src domain.Source, body []byte) ([]domain.RawItem, error) {
	switch src.Kind {
	case domain.SourceKindHTML:
		parser, err := feed.NewHTMLParser(*src.Selectors, src.URL, c.minTitleLength)
		if err != nil {
			return nil, err
		}
		return parser.Parse(body)

	default:
		items, err := c.feedParser.Parse(body)
		if err != nil && c.regexFallback {
			lgr.Printf("[WARN] feed parser failed for source %s, trying regex fallback: %v", src.ID, err)
			return c.regexParser.Parse(body)
		}
		return items, err
	}
}

// enrich fills an empty description from the linked page when an enricher is
// configured. Failures are ignored: enrichment is best effort and must never
// fabricate content.
func (c *Coordinator) enrich(ctx context.Context, item *domain.RawItem) {
	if c.enricher == nil || item.Description != "" || item.Link == "" {
		return
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return
	}
	text, err := c.enricher.Extract(ctx, item.Link)
	if err != nil {
		lgr.Printf("[DEBUG] enrichment failed for %s: %v", item.Link, err)
		return
	}
	item.Description = text
}

// normalize builds the canonical persisted record for an item
func (c *Coordinator) normalize(src domain.Source, item domain.RawItem, cls classify.Result, fingerprint string) *domain.NormalizedUpdate {
	metadata := map[string]string{
		"source_id": src.ID,
		"link":      item.Link,
	}
	if item.Author != "" {
		metadata["author"] = item.Author
	}
	if item.GUID != "" {
		metadata["guid"] = item.GUID
	}
	if len(cls.Categories) > 0 {
		metadata["categories"] = strings.Join(cls.Categories, ",")
	}

	return &domain.NormalizedUpdate{
		ID:          domain.UpdateID(src.ID, fingerprint),
		Title:       item.Title,
		Content:     item.Description,
		SourceID:    src.ID,
		SourceName:  src.Name,
		Region:      src.Region,
		Authority:   src.AuthorityName,
		UpdateType:  cls.UpdateType,
		Priority:    cls.Priority,
		Published:   item.Published,
		Fingerprint: fingerprint,
		Metadata:    metadata,
	}
}

// acquire marks a source cycle in flight; false when one is already running
func (c *Coordinator) acquire(sourceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight == nil {
		c.inFlight = make(map[string]struct{})
	}
	if _, ok := c.inFlight[sourceID]; ok {
		return false
	}
	c.inFlight[sourceID] = struct{}{}
	return true
}

func (c *Coordinator) release(sourceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, sourceID)
}
