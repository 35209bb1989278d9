// Package master owns the durable, append-only database of ingested videos.
package master

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/timmy/vidledger/internal/domain"
	"github.com/timmy/vidledger/internal/fsutil"
)

// ErrCorrupt is returned when the database file is not a JSON array.
// The store refuses to write over such a file.
var ErrCorrupt = errors.New("master database is not a JSON array")

// Malformed describes an element that could not be read as a VideoRecord.
// Identifier is set when the element still carries a readable url.
type Malformed struct {
	Index      int    `json:"index"`
	Identifier string `json:"identifier,omitempty"`
	Reason     string `json:"reason"`
}

// Report summarises a Scan.
type Report struct {
	Total      int         `json:"total"`
	Valid      int         `json:"valid"`
	Duplicates int         `json:"duplicates"`
	Malformed  []Malformed `json:"malformed,omitempty"`
}

// Unreadable returns the identifiers of malformed elements that still carry a url.
// They are already in the database even though their records cannot be decoded.
func (r Report) Unreadable() []string {
	var ids []string
	for _, m := range r.Malformed {
		if m.Identifier != "" {
			ids = append(ids, m.Identifier)
		}
	}
	return ids
}

// Result summarises an Append.
type Result struct {
	Appended   int      `json:"appended"`
	Replaced   int      `json:"replaced"`
	Duplicates int      `json:"duplicates"`
	Rejected   []string `json:"rejected,omitempty"`
}

// Store is a file-backed JSON array of VideoRecord.
// Elements it cannot decode are kept verbatim across rewrites.
type Store struct {
	path    string
	replace bool
	mu      sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithReplace makes Append overwrite an existing record with the same identifier.
func WithReplace(replace bool) Option {
	return func(s *Store) { s.replace = replace }
}

// New creates a store at path.
func New(path string, opts ...Option) *Store {
	s := &Store{path: path}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// ReadAll returns every decodable record in file order.
func (s *Store) ReadAll() ([]domain.VideoRecord, error) {
	records, _, err := s.Scan()
	return records, err
}

// Scan decodes the database, tolerating malformed and duplicate elements.
// Parameters: none.
// Returns:
//   - []domain.VideoRecord: decodable records with a non-empty identifier, in file order.
//   - Report: totals, duplicate count and per-element problems.
//   - error: StorageError on read failure, ErrCorrupt if the file is not an array.
func (s *Store) Scan() ([]domain.VideoRecord, Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.readRaw()
	if err != nil {
		return nil, Report{}, err
	}

	report := Report{Total: len(raw)}
	records := make([]domain.VideoRecord, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for i, elem := range raw {
		rec, err := decode(elem)
		if err != nil {
			id := identify(elem)
			if _, dup := seen[id]; dup && id != "" {
				report.Duplicates++
				continue
			}
			report.Malformed = append(report.Malformed, Malformed{Index: i, Identifier: id, Reason: err.Error()})
			continue
		}
		id := rec.Identifier()
		if _, dup := seen[id]; dup {
			report.Duplicates++
			continue
		}
		seen[id] = struct{}{}
		records = append(records, rec)
	}
	report.Valid = len(records)
	return records, report, nil
}

// Append validates records and persists them in one atomic rewrite.
// Identifiers already present are skipped, or replaced in place when the
// store was built WithReplace. Invalid records are rejected, never written.
func (s *Store) Append(records []domain.VideoRecord) (Result, error) {
	var result Result
	if len(records) == 0 {
		return result, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.readRaw()
	if err != nil {
		return result, err
	}

	positions := make(map[string]int, len(raw))
	for i, elem := range raw {
		id := identify(elem)
		if id == "" {
			continue
		}
		if _, ok := positions[id]; !ok {
			positions[id] = i
		}
	}

	changed := false
	for i := range records {
		rec := records[i]
		if err := rec.Validate(); err != nil {
			result.Rejected = append(result.Rejected, err.Error())
			continue
		}
		rec.URL = rec.Identifier()
		data, err := json.Marshal(rec)
		if err != nil {
			result.Rejected = append(result.Rejected, fmt.Sprintf("%s: %v", rec.URL, err))
			continue
		}

		if pos, exists := positions[rec.URL]; exists {
			if !s.replace {
				result.Duplicates++
				continue
			}
			raw[pos] = data
			result.Replaced++
			changed = true
			continue
		}
		positions[rec.URL] = len(raw)
		raw = append(raw, data)
		result.Appended++
		changed = true
	}

	if !changed {
		return result, nil
	}
	if err := fsutil.WriteJSONAtomic(s.path, raw); err != nil {
		return result, &domain.StorageError{Op: "write master", Path: s.path, Err: err}
	}
	return result, nil
}

func (s *Store) readRaw() ([]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &domain.StorageError{Op: "read master", Path: s.path, Err: err}
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	return raw, nil
}

func decode(elem json.RawMessage) (domain.VideoRecord, error) {
	var rec domain.VideoRecord
	if err := json.Unmarshal(elem, &rec); err != nil {
		return rec, err
	}
	if strings.TrimSpace(rec.URL) == "" {
		return rec, errors.New("missing url")
	}
	rec.URL = rec.Identifier()
	return rec, nil
}

// identify reads only the url of an element, so records with fields the
// full decode rejects still count as present.
func identify(elem json.RawMessage) string {
	var head struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(elem, &head); err != nil {
		return ""
	}
	return strings.TrimSpace(head.URL)
}
