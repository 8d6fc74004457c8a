// Package wal provides an append-only audit log of a teardown run:
// every discovery, verdict, deletion attempt, and terminal outcome is
// written as one JSON line so the run can be replayed after the fact.
package wal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EntryType defines the type of audit entry.
type EntryType string

const (
	EntryDiscovered EntryType = "discovered"
	EntryClassified EntryType = "classified"
	EntryAttempt    EntryType = "attempt"
	EntryCleared    EntryType = "reference_cleared"
	EntryDeleted    EntryType = "deleted"
	EntrySkipped    EntryType = "skipped"
	EntryFailed     EntryType = "failed"
	EntryTask       EntryType = "task"
)

// Entry represents a single audit log entry.
type Entry struct {
	Timestamp  time.Time       `json:"timestamp"`
	Sequence   int64           `json:"sequence"`
	Type       EntryType       `json:"type"`
	ResourceID string          `json:"resource_id,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// WAL is the append-only run audit log.
type WAL struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	sequence int64
	path     string
}

// Open creates a new audit log file in dir, named after the run start
// time.
func Open(dir string) (*WAL, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	filename := fmt.Sprintf("raivaus-%s.wal", time.Now().Format("20060102-150405"))
	path := filepath.Join(dir, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	return &WAL{
		file:   file,
		writer: bufio.NewWriter(file),
		path:   path,
	}, nil
}

// Path returns the log file path.
func (w *WAL) Path() string {
	return w.path
}

// Close flushes and closes the log.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}

// Append adds an entry to the log.
func (w *WAL) Append(entryType EntryType, resourceID string, data any) error {
	return w.append(entryType, resourceID, data, nil)
}

// AppendError adds an entry carrying an error.
func (w *WAL) AppendError(entryType EntryType, resourceID string, data any, errToLog error) error {
	return w.append(entryType, resourceID, data, errToLog)
}

func (w *WAL) append(entryType EntryType, resourceID string, data any, errToLog error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	w.sequence++
	entry := Entry{
		Timestamp:  time.Now(),
		Sequence:   w.sequence,
		Type:       entryType,
		ResourceID: resourceID,
		Data:       jsonData,
	}
	if errToLog != nil {
		entry.Error = errToLog.Error()
	}

	return w.writeEntry(entry)
}

func (w *WAL) writeEntry(entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if _, err := w.writer.WriteString("\n"); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	// Flush per entry: the audit trail must survive an interrupt.
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return w.file.Sync()
}

// Reader replays an audit log file entry by entry.
type Reader struct {
	scanner *bufio.Scanner
	file    *os.File
}

// NewReader opens an audit log for replay.
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	return &Reader{
		scanner: bufio.NewScanner(file),
		file:    file,
	}, nil
}

// Next reads the next entry, returning io.EOF at the end.
func (r *Reader) Next() (*Entry, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	var entry Entry
	if err := json.Unmarshal(r.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return &entry, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.file.Close()
}
