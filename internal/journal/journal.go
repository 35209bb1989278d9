// Package journal persists per-run progress so an interrupted run can resume.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/timmy/vidledger/internal/domain"
	"github.com/timmy/vidledger/internal/fsutil"
)

// ErrCorrupt is returned by Load when the journal file cannot be decoded.
var ErrCorrupt = errors.New("progress journal is corrupt")

// Document is the on-disk layout of the journal.
type Document struct {
	RunID     string                 `json:"run_id"`
	Timestamp time.Time              `json:"timestamp"`
	Succeeded []domain.ProgressEntry `json:"succeeded"`
	Failed    []domain.ProgressEntry `json:"failed"`

	// Older journals carried bare URL lists. They are read, never written.
	LegacyFailed  []string `json:"failed_urls,omitempty"`
	LegacySkipped []string `json:"skipped_urls,omitempty"`
}

// Entries flattens the document in file order, succeeded first.
func (d *Document) Entries() []domain.ProgressEntry {
	out := make([]domain.ProgressEntry, 0, len(d.Succeeded)+len(d.Failed)+len(d.LegacyFailed)+len(d.LegacySkipped))
	out = append(out, d.Succeeded...)
	for _, u := range d.LegacySkipped {
		out = append(out, domain.ProgressEntry{Identifier: u, Outcome: domain.OutcomeSucceeded, Timestamp: d.Timestamp})
	}
	out = append(out, d.Failed...)
	for _, u := range d.LegacyFailed {
		out = append(out, domain.ProgressEntry{Identifier: u, Outcome: domain.OutcomeFailed, Timestamp: d.Timestamp})
	}
	return out
}

// Journal is a single-writer, file-backed progress log.
type Journal struct {
	path  string
	runID string
	now   func() time.Time
	mu    sync.Mutex
}

// New creates a journal at path; runID tags every document written by this process.
func New(path, runID string) *Journal {
	return &Journal{path: path, runID: runID, now: time.Now}
}

// Path returns the journal file location.
func (j *Journal) Path() string { return j.path }

// Load returns every entry on disk. A missing file yields no entries.
func (j *Journal) Load() ([]domain.ProgressEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	doc, err := j.read()
	if err != nil {
		return nil, err
	}
	return dedupe(doc.Entries()), nil
}

// Snapshot returns the decoded document for diagnostics.
func (j *Journal) Snapshot() (*Document, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.read()
}

// Append merges entries into the journal and rewrites it atomically.
// Entries are keyed by identifier: the newest entry wins, except that a
// recorded success is never replaced by a later failure.
func (j *Journal) Append(entries []domain.ProgressEntry) error {
	if len(entries) == 0 {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	existing, err := j.read()
	if err != nil && !errors.Is(err, ErrCorrupt) {
		return err
	}
	var merged []domain.ProgressEntry
	if existing != nil {
		merged = existing.Entries()
	}
	merged = dedupe(append(merged, entries...))

	doc := Document{RunID: j.runID, Timestamp: j.now().UTC()}
	for _, e := range merged {
		if e.Succeeded() {
			doc.Succeeded = append(doc.Succeeded, e)
		} else {
			doc.Failed = append(doc.Failed, e)
		}
	}
	if doc.Succeeded == nil {
		doc.Succeeded = []domain.ProgressEntry{}
	}
	if doc.Failed == nil {
		doc.Failed = []domain.ProgressEntry{}
	}

	if err := fsutil.WriteJSONAtomic(j.path, doc); err != nil {
		return &domain.StorageError{Op: "write journal", Path: j.path, Err: err}
	}
	return nil
}

// Clear removes the journal file. A missing file is not an error.
func (j *Journal) Clear() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := os.Remove(j.path); err != nil && !os.IsNotExist(err) {
		return &domain.StorageError{Op: "remove journal", Path: j.path, Err: err}
	}
	return nil
}

func (j *Journal) read() (*Document, error) {
	data, err := os.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Document{}, nil
		}
		return nil, &domain.StorageError{Op: "read journal", Path: j.path, Err: err}
	}
	if strings.TrimSpace(string(data)) == "" {
		return &Document{}, nil
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, j.path, err)
	}
	return &doc, nil
}

// dedupe collapses entries by identifier, keeping first-seen order.
func dedupe(entries []domain.ProgressEntry) []domain.ProgressEntry {
	index := make(map[string]int, len(entries))
	out := make([]domain.ProgressEntry, 0, len(entries))
	for _, e := range entries {
		e.Identifier = strings.TrimSpace(e.Identifier)
		if e.Identifier == "" {
			continue
		}
		i, seen := index[e.Identifier]
		if !seen {
			index[e.Identifier] = len(out)
			out = append(out, e)
			continue
		}
		if out[i].Succeeded() && !e.Succeeded() {
			continue
		}
		out[i] = e
	}
	return out
}
