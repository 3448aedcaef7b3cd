// Package state tracks what a crawl has already done: URLs seen this run and
// categories completed across runs.
package state

import (
	"time"
)

// Manager combines optional URL deduplication with a persistent store.
type Manager struct {
	store Store
	dedup *Deduplicator // nil when deduplication is off
}

// NewManager creates a state manager. A nil store keeps state in memory only.
func NewManager(store Store, dedupURLs bool, estimatedURLs int) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	m := &Manager{store: store}
	if dedupURLs {
		m.dedup = NewDeduplicator(estimatedURLs)
	}
	return m
}

// ShouldVisit reports whether an item URL should be fetched. With deduplication off
// every URL is visited; with it on, only the first occurrence in the run is.
func (m *Manager) ShouldVisit(url string) bool {
	if m.dedup == nil {
		return true
	}
	return m.dedup.FirstSeen(url)
}

// DedupEnabled reports whether URL deduplication is on.
func (m *Manager) DedupEnabled() bool {
	return m.dedup != nil
}

// SeenURLs returns how many distinct item URLs the deduplicator has recorded this run.
func (m *Manager) SeenURLs() int {
	if m.dedup == nil {
		return 0
	}
	return m.dedup.Count()
}

// ResetRun forgets the URLs seen so far, so deduplication is scoped to one run.
func (m *Manager) ResetRun() {
	if m.dedup != nil {
		m.dedup.Reset()
	}
}

// IsCompleted reports whether a category finished in a previous run.
func (m *Manager) IsCompleted(label string) (bool, error) {
	rec, err := m.store.Category(label)
	if err != nil {
		return false, err
	}
	return rec != nil && rec.Completed(), nil
}

// RecordCategory persists a category outcome.
func (m *Manager) RecordCategory(rec CategoryRecord) error {
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now().UTC()
	}
	return m.store.SaveCategory(rec)
}

// RecordRun persists a run summary.
func (m *Manager) RecordRun(run RunRecord) error {
	return m.store.SaveRun(run)
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
