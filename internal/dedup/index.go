// Package dedup decides which identifiers still need work.
package dedup

import (
	"strings"

	"github.com/timmy/vidledger/internal/domain"
)

// Options controls how the exclusion set is built.
type Options struct {
	// Force ignores all prior state; every identifier is remaining.
	Force bool
	// RetryFailed leaves identifiers whose last journal outcome was a failure eligible.
	RetryFailed bool
}

// Report counts what Build saw.
type Report struct {
	MasterRecords    int
	MasterMalformed  int
	MasterDuplicates int
	MasterUnreadable int
	JournalSucceeded int
	JournalFailed    int
	Excluded         int
}

// Index is the exclusion set for one run.
type Index struct {
	done map[string]domain.Outcome
}

// Build combines master records and journal entries into an Index.
// unreadable lists identifiers present in the master database whose records
// could not be decoded; they are excluded like any other stored record.
// Malformed and duplicate inputs are counted, never fatal.
func Build(records []domain.VideoRecord, unreadable []string, entries []domain.ProgressEntry, opts Options) (*Index, Report) {
	idx := &Index{done: make(map[string]domain.Outcome)}
	var report Report

	for i := range records {
		id := records[i].Identifier()
		if id == "" {
			report.MasterMalformed++
			continue
		}
		report.MasterRecords++
		if _, dup := idx.done[id]; dup {
			report.MasterDuplicates++
			continue
		}
		idx.done[id] = domain.OutcomeSucceeded
	}
	for _, raw := range unreadable {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		report.MasterUnreadable++
		idx.done[id] = domain.OutcomeSucceeded
	}

	for _, e := range entries {
		id := strings.TrimSpace(e.Identifier)
		if id == "" {
			continue
		}
		if e.Succeeded() {
			report.JournalSucceeded++
			idx.done[id] = domain.OutcomeSucceeded
			continue
		}
		report.JournalFailed++
		if opts.RetryFailed {
			continue
		}
		if _, ok := idx.done[id]; !ok {
			idx.done[id] = domain.OutcomeFailed
		}
	}

	if opts.Force {
		idx.done = make(map[string]domain.Outcome)
	}
	report.Excluded = len(idx.done)
	return idx, report
}

// Contains reports whether id is excluded from this run.
func (x *Index) Contains(id string) bool {
	_, ok := x.done[strings.TrimSpace(id)]
	return ok
}

// Remaining filters ids down to the work left, preserving input order.
// Repeated identifiers in ids are collapsed to their first occurrence.
func (x *Index) Remaining(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if x.Contains(id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
