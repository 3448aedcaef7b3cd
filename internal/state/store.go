package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketCategories = []byte("categories")
	bucketRuns       = []byte("runs")
	bucketMeta       = []byte("meta")
	keyLastRun       = []byte("last_run")
)

// Store persists run state between invocations.
type Store interface {
	SaveCategory(rec CategoryRecord) error
	Category(label string) (*CategoryRecord, error)
	Categories() ([]CategoryRecord, error)
	SaveRun(run RunRecord) error
	LastRun() (*RunRecord, error)
	Close() error
}

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db   *bolt.DB
	path string
}

// NewBoltStore opens (or creates) a BoltDB-backed state store.
func NewBoltStore(path string) (*BoltStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketCategories, bucketRuns, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *BoltStore) Path() string {
	return s.path
}

// SaveCategory stores the latest outcome for a category label.
func (s *BoltStore) SaveCategory(rec CategoryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal category: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCategories).Put([]byte(rec.Label), data)
	})
}

// Category loads the outcome for label, or nil if none was recorded.
func (s *BoltStore) Category(label string) (*CategoryRecord, error) {
	var rec *CategoryRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCategories).Get([]byte(label))
		if data == nil {
			return nil
		}
		rec = &CategoryRecord{}
		return json.Unmarshal(data, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load category %s: %w", label, err)
	}
	return rec, nil
}

// Categories returns all recorded categories sorted by label.
func (s *BoltStore) Categories() ([]CategoryRecord, error) {
	records := make([]CategoryRecord, 0)

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCategories).ForEach(func(k, v []byte) error {
			var rec CategoryRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("category %s: %w", k, err)
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// SaveRun stores a run summary and marks it as the latest run.
func (s *BoltStore) SaveRun(run RunRecord) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketRuns).Put([]byte(run.RunID), data); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keyLastRun, []byte(run.RunID))
	})
}

// LastRun returns the most recently saved run, or nil.
func (s *BoltStore) LastRun() (*RunRecord, error) {
	var run *RunRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketMeta).Get(keyLastRun)
		if id == nil {
			return nil
		}
		data := tx.Bucket(bucketRuns).Get(id)
		if data == nil {
			return nil
		}
		run = &RunRecord{}
		return json.Unmarshal(data, run)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load last run: %w", err)
	}
	return run, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// MemoryStore implements Store in memory. Used when no state file is configured.
type MemoryStore struct {
	mu         sync.Mutex
	categories map[string]CategoryRecord
	runs       map[string]RunRecord
	lastRun    string
}

// NewMemoryStore creates a new in-memory state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		categories: make(map[string]CategoryRecord),
		runs:       make(map[string]RunRecord),
	}
}

// SaveCategory stores the latest outcome for a category label.
func (s *MemoryStore) SaveCategory(rec CategoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[rec.Label] = rec
	return nil
}

// Category returns the outcome for label, or nil.
func (s *MemoryStore) Category(label string) (*CategoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.categories[label]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Categories returns all recorded categories sorted by label.
func (s *MemoryStore) Categories() ([]CategoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]CategoryRecord, 0, len(s.categories))
	for _, rec := range s.categories {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Label < records[j].Label })
	return records, nil
}

// SaveRun stores a run summary.
func (s *MemoryStore) SaveRun(run RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.RunID] = run
	s.lastRun = run.RunID
	return nil
}

// LastRun returns the most recently saved run, or nil.
func (s *MemoryStore) LastRun() (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[s.lastRun]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}
