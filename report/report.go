package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Entry is one resource in a report bucket.
type Entry struct {
	ResourceType string `json:"resource_type,omitempty"`
	ID           string `json:"id,omitempty"`
	Name         string `json:"name,omitempty"`
	Region       string `json:"region,omitempty"`
	Account      string `json:"account,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// Metadata describes the run.
type Metadata struct {
	CleanupType       string    `json:"cleanup_type"`
	Timestamp         time.Time `json:"timestamp"`
	ExecutedBy        string    `json:"executed_by"`
	AccountsProcessed []string  `json:"accounts_processed,omitempty"`
	RegionsProcessed  []string  `json:"regions_processed"`
}

// BucketCounts breaks totals down per account or region.
type BucketCounts struct {
	Deleted int `json:"deleted"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Summary holds the run totals.
type Summary struct {
	TotalDeleted int                     `json:"total_deleted"`
	TotalSkipped int                     `json:"total_skipped"`
	TotalFailed  int                     `json:"total_failed"`
	ByAccount    map[string]BucketCounts `json:"by_account"`
	ByRegion     map[string]BucketCounts `json:"by_region"`
}

// Details holds the per-resource outcome lists. A resource ID appears in
// at most one of deleted/skipped/failed.
type Details struct {
	Deleted []Entry `json:"deleted"`
	Skipped []Entry `json:"skipped"`
	Failed  []Entry `json:"failed"`
	Errors  []Entry `json:"errors"`
}

// TeardownResult is the run-level aggregate exported as the JSON report.
type TeardownResult struct {
	Metadata        Metadata `json:"metadata"`
	Summary         Summary  `json:"summary"`
	DetailedResults Details  `json:"detailed_results"`
}

// WriteFile writes the report as indented JSON under dir, named by run
// ID. Returns the written path.
func WriteFile(dir, runID string, result TeardownResult) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	path := filepath.Join(dir, runID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}
