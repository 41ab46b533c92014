// Package registry owns the configured ingestion sources and their poll
// bookkeeping. It replaces the global mutable source lists of earlier
// designs: the registry is injected into the coordinator and tests can
// substitute fixtures freely.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mdwatch/regpulse/pkg/domain"
)

// sourceState tracks per-source poll bookkeeping
type sourceState struct {
	source        domain.Source
	lastCheckedAt time.Time
	lastStatus    string
	lastError     string
}

// Registry holds sources and per-source state behind a mutex. Sources are
// created at load time and never deleted at runtime; only the bookkeeping
// mutates.
type Registry struct {
	mu     sync.RWMutex
	states map[string]*sourceState
	order  []string
}

// New builds a registry from configured sources
func New(sources []domain.Source) *Registry {
	r := &Registry{states: make(map[string]*sourceState, len(sources))}
	for _, src := range sources {
		r.states[src.ID] = &sourceState{source: src, lastStatus: "pending"}
		r.order = append(r.order, src.ID)
	}
	return r
}

// Get returns a source by id
func (r *Registry) Get(id string) (domain.Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.states[id]
	if !ok {
		return domain.Source{}, fmt.Errorf("unknown source %q", id)
	}
	return st.source, nil
}

// All returns every registered source in configuration order
func (r *Registry) All() []domain.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]domain.Source, 0, len(r.order))
	for _, id := range r.order {
		sources = append(sources, r.states[id].source)
	}
	return sources
}

// Due returns active sources whose poll interval has elapsed since the last
// attempt. A source that was never checked is always due.
func (r *Registry) Due(now time.Time) []domain.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []domain.Source
	for _, id := range r.order {
		st := r.states[id]
		if !st.source.Active {
			continue
		}
		if !st.lastCheckedAt.IsZero() && now.Sub(st.lastCheckedAt) < st.source.PollInterval {
			continue
		}
		due = append(due, st.source)
	}
	return due
}

// MarkChecked records a poll attempt, success or failure. A persistently
// failing source must not be retried faster than its interval, so the
// timestamp advances on every attempt.
func (r *Registry) MarkChecked(id string, at time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[id]
	if !ok {
		return
	}
	st.lastCheckedAt = at
	if err != nil {
		st.lastStatus = "failed"
		st.lastError = err.Error()
		return
	}
	st.lastStatus = "ok"
	st.lastError = ""
}

// Status returns a snapshot of every source's poll state, sorted by id
func (r *Registry) Status() []domain.SourceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make([]domain.SourceStatus, 0, len(r.states))
	for _, st := range r.states {
		status := domain.SourceStatus{
			ID:         st.source.ID,
			Name:       st.source.Name,
			Active:     st.source.Active,
			LastStatus: st.lastStatus,
			LastError:  st.lastError,
		}
		if !st.lastCheckedAt.IsZero() {
			t := st.lastCheckedAt
			status.LastCheckedAt = &t
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}
