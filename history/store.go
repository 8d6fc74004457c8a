// Package history persists finished teardown reports in bbolt and keeps
// an in-memory index of resource terminal states across runs, so a rerun
// can tell the operator how often a resource has already failed.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/btree"
	"go.etcd.io/bbolt"

	"github.com/yairfalse/raivaus/report"
)

var bucketRuns = []byte("runs")

// ResourceOutcome tracks a resource's most recent terminal state in the
// index.
type ResourceOutcome struct {
	Key        string // resource_type/id
	LastRunID  string
	LastBucket string // deleted, skipped, failed
	FailCount  int
}

func lessOutcome(a, b *ResourceOutcome) bool {
	return a.Key < b.Key
}

// Store is the run-history database.
type Store struct {
	mu    sync.RWMutex
	db    *bbolt.DB
	index *btree.BTreeG[*ResourceOutcome]
}

// Open opens (or creates) the history database in dir and rebuilds the
// resource index from stored runs.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(dir, "raivaus.db"), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create runs bucket: %w", err)
	}

	s := &Store{
		db:    db,
		index: btree.NewG(8, lessOutcome),
	}
	if err := s.rebuildIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun persists a finished run and folds its outcomes into the index.
func (s *Store) SaveRun(runID string, result report.TeardownResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	if err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).Put([]byte(runID), data)
	}); err != nil {
		return fmt.Errorf("failed to store run %s: %w", runID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexRun(runID, result)
	return nil
}

// GetRun loads one stored run.
func (s *Store) GetRun(runID string) (report.TeardownResult, error) {
	var result report.TeardownResult
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRuns).Get([]byte(runID))
		if data == nil {
			return fmt.Errorf("run %s not found", runID)
		}
		return json.Unmarshal(data, &result)
	})
	return result, err
}

// Runs lists stored run IDs in key order (chronological, given the
// timestamped ID format).
func (s *Store) Runs() ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(k, v []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

// PriorFailures returns how many stored runs ended with this resource in
// the failed bucket.
func (s *Store) PriorFailures(resourceType, id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.index.Get(&ResourceOutcome{Key: resourceType + "/" + id})
	if !ok {
		return 0
	}
	return item.FailCount
}

// LastOutcome returns the most recent terminal bucket for a resource, or
// "" when it has never been seen.
func (s *Store) LastOutcome(resourceType, id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.index.Get(&ResourceOutcome{Key: resourceType + "/" + id})
	if !ok {
		return ""
	}
	return item.LastBucket
}

func (s *Store) rebuildIndex() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(k, v []byte) error {
			var result report.TeardownResult
			if err := json.Unmarshal(v, &result); err != nil {
				return fmt.Errorf("corrupt run %s: %w", k, err)
			}
			s.indexRun(string(k), result)
			return nil
		})
	})
}

// indexRun folds one run's terminal buckets into the index. Caller holds
// the lock (or is still single-threaded in Open).
func (s *Store) indexRun(runID string, result report.TeardownResult) {
	fold := func(entries []report.Entry, bucket string) {
		for _, e := range entries {
			key := e.ResourceType + "/" + e.ID
			item, ok := s.index.Get(&ResourceOutcome{Key: key})
			if !ok {
				item = &ResourceOutcome{Key: key}
			}
			item.LastRunID = runID
			item.LastBucket = bucket
			if bucket == "failed" {
				item.FailCount++
			}
			s.index.ReplaceOrInsert(item)
		}
	}

	fold(result.DetailedResults.Deleted, "deleted")
	fold(result.DetailedResults.Skipped, "skipped")
	fold(result.DetailedResults.Failed, "failed")
}
