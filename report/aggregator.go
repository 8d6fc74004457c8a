// Package report accumulates per-resource outcomes into the run-level
// TeardownResult and renders it as the JSON report.
package report

import (
	"fmt"
	"sync"
	"time"

	"github.com/yairfalse/raivaus/types"
)

type bucket string

const (
	bucketDeleted bucket = "deleted"
	bucketSkipped bucket = "skipped"
	bucketFailed  bucket = "failed"
)

// Aggregator collects terminal outcomes. It is append-only and sticky: a
// resource already marked Deleted can never be downgraded by a stale late
// attempt. One aggregator instance is created per run and read at run
// end; it is never ambient state.
type Aggregator struct {
	mu sync.Mutex

	cleanupType string
	executedBy  string
	startedAt   time.Time

	order    []string
	buckets  map[string]bucket
	entries  map[string]Entry
	errors   []Entry
	accounts []string
	regions  []string
}

// NewAggregator creates an aggregator for one run.
func NewAggregator(cleanupType, executedBy string) *Aggregator {
	return &Aggregator{
		cleanupType: cleanupType,
		executedBy:  executedBy,
		startedAt:   time.Now(),
		buckets:     make(map[string]bucket),
		entries:     make(map[string]Entry),
	}
}

// TaskProcessed records that an (account, region) task ran.
func (a *Aggregator) TaskProcessed(account, region string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accounts = appendUnique(a.accounts, account)
	a.regions = appendUnique(a.regions, region)
}

// RecordDeleted marks a resource terminally deleted.
func (a *Aggregator) RecordDeleted(rec types.ResourceRecord) {
	a.record(rec, bucketDeleted, "")
}

// RecordSkipped marks a resource skipped with its verdict reason.
func (a *Aggregator) RecordSkipped(rec types.ResourceRecord, verdict types.Verdict) {
	reason := verdict.Reason
	if reason == "" {
		reason = string(verdict.Decision)
	}
	a.record(rec, bucketSkipped, reason)
}

// RecordFailed marks a resource terminally failed with the last blocking
// reason.
func (a *Aggregator) RecordFailed(rec types.ResourceRecord, reason string) {
	a.record(rec, bucketFailed, reason)
}

// RecordError records a run-level error (e.g. a whole task aborted on an
// auth failure) that is not tied to a single resource outcome.
func (a *Aggregator) RecordError(account, region, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errors = append(a.errors, Entry{
		Account: account,
		Region:  region,
		Reason:  message,
	})
}

func (a *Aggregator) record(rec types.ResourceRecord, b bucket, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := rec.Type + "/" + rec.ID

	existing, seen := a.buckets[key]
	if seen && existing == bucketDeleted && b != bucketDeleted {
		// Terminal Deleted is sticky.
		return
	}
	if !seen {
		a.order = append(a.order, key)
	}

	a.buckets[key] = b
	a.entries[key] = Entry{
		ResourceType: rec.Type,
		ID:           rec.ID,
		Name:         rec.Name,
		Region:       rec.Region,
		Account:      rec.Account,
		Reason:       reason,
	}
}

// Snapshot renders the current aggregate. Valid at any point of the run,
// including after an interrupt.
func (a *Aggregator) Snapshot() TeardownResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	result := TeardownResult{
		Metadata: Metadata{
			CleanupType:       a.cleanupType,
			Timestamp:         a.startedAt,
			ExecutedBy:        a.executedBy,
			AccountsProcessed: append([]string(nil), a.accounts...),
			RegionsProcessed:  append([]string(nil), a.regions...),
		},
		Summary: Summary{
			ByAccount: make(map[string]BucketCounts),
			ByRegion:  make(map[string]BucketCounts),
		},
	}

	for _, key := range a.order {
		entry := a.entries[key]
		switch a.buckets[key] {
		case bucketDeleted:
			result.DetailedResults.Deleted = append(result.DetailedResults.Deleted, entry)
			result.Summary.TotalDeleted++
			bumpCounts(result.Summary.ByAccount, entry.Account, func(c *BucketCounts) { c.Deleted++ })
			bumpCounts(result.Summary.ByRegion, entry.Region, func(c *BucketCounts) { c.Deleted++ })
		case bucketSkipped:
			result.DetailedResults.Skipped = append(result.DetailedResults.Skipped, entry)
			result.Summary.TotalSkipped++
			bumpCounts(result.Summary.ByAccount, entry.Account, func(c *BucketCounts) { c.Skipped++ })
			bumpCounts(result.Summary.ByRegion, entry.Region, func(c *BucketCounts) { c.Skipped++ })
		case bucketFailed:
			result.DetailedResults.Failed = append(result.DetailedResults.Failed, entry)
			result.Summary.TotalFailed++
			bumpCounts(result.Summary.ByAccount, entry.Account, func(c *BucketCounts) { c.Failed++ })
			bumpCounts(result.Summary.ByRegion, entry.Region, func(c *BucketCounts) { c.Failed++ })
		}
	}

	result.DetailedResults.Errors = append([]Entry(nil), a.errors...)
	return result
}

func bumpCounts(m map[string]BucketCounts, key string, bump func(*BucketCounts)) {
	if key == "" {
		return
	}
	counts := m[key]
	bump(&counts)
	m[key] = counts
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// RunID derives a stable identifier for the run, used as the history key
// and report file name stem.
func (a *Aggregator) RunID() string {
	return fmt.Sprintf("%s-%s", a.cleanupType, a.startedAt.Format("20060102-150405"))
}
