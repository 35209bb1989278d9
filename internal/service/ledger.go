package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/timmy/vidledger/internal/domain"
	"github.com/timmy/vidledger/internal/journal"
	"github.com/timmy/vidledger/internal/logger"
	"github.com/timmy/vidledger/internal/master"
)

// ErrRecordNotFound is returned when no record matches an identifier.
var ErrRecordNotFound = errors.New("record not found")

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// RunLister reads run history.
type RunLister interface {
	ListRecent(ctx context.Context, limit int) ([]domain.IngestRun, error)
}

// LedgerService answers read-only questions about the master database,
// the progress journal and run history.
type LedgerService struct {
	master  *master.Store
	journal *journal.Journal
	runs    RunLister
	logger  *logger.Logger
}

// NewLedgerService creates a ledger service. runs and log may be nil.
func NewLedgerService(m *master.Store, j *journal.Journal, runs RunLister, log *logger.Logger) *LedgerService {
	if log == nil {
		log = logger.GetDefault()
	}
	return &LedgerService{master: m, journal: j, runs: runs, logger: log.WithField(logger.FieldComponent, "ledger")}
}

// LedgerStats summarises the master database and journal.
type LedgerStats struct {
	Records             int            `json:"records"`
	Malformed           int            `json:"malformed"`
	Duplicates          int            `json:"duplicates"`
	WithComments        int            `json:"with_comments"`
	TotalComments       int            `json:"total_comments"`
	WithSubtitles       int            `json:"with_subtitles"`
	WithModelTranscript int            `json:"with_model_transcript"`
	WithTranscript      int            `json:"with_transcript"`
	CommentCoverage     float64        `json:"comment_coverage"`
	TranscriptCoverage  float64        `json:"transcript_coverage"`
	JournalSucceeded    int            `json:"journal_succeeded"`
	JournalFailed       int            `json:"journal_failed"`
	FailuresByClass     map[string]int `json:"failures_by_class"`
	JournalUpdatedAt    *time.Time     `json:"journal_updated_at,omitempty"`
	JournalRunID        string         `json:"journal_run_id,omitempty"`
}

// RecordPage is one page of master records.
type RecordPage struct {
	Total   int                  `json:"total"`
	Offset  int                  `json:"offset"`
	Limit   int                  `json:"limit"`
	Records []domain.VideoRecord `json:"records"`
}

// Stats computes coverage figures. A corrupt journal is reported as empty.
func (s *LedgerService) Stats(ctx context.Context) (*LedgerStats, error) {
	records, report, err := s.master.Scan()
	if err != nil {
		return nil, err
	}

	stats := &LedgerStats{
		Records:         len(records),
		Malformed:       len(report.Malformed),
		Duplicates:      report.Duplicates,
		FailuresByClass: map[string]int{},
	}
	for i := range records {
		r := &records[i]
		if len(r.Comments) > 0 {
			stats.WithComments++
			stats.TotalComments += len(r.Comments)
		}
		if strings.TrimSpace(r.SubtitleTranscript) != "" {
			stats.WithSubtitles++
		}
		if strings.TrimSpace(r.ModelTranscript) != "" {
			stats.WithModelTranscript++
		}
		if r.HasTranscript() {
			stats.WithTranscript++
		}
	}
	if stats.Records > 0 {
		stats.CommentCoverage = float64(stats.WithComments) / float64(stats.Records)
		stats.TranscriptCoverage = float64(stats.WithTranscript) / float64(stats.Records)
	}

	doc, err := s.journal.Snapshot()
	switch {
	case errors.Is(err, journal.ErrCorrupt):
		s.logger.WithError(err).Warn("Progress journal unreadable")
		return stats, nil
	case err != nil:
		return nil, err
	}
	for _, e := range doc.Entries() {
		if e.Succeeded() {
			stats.JournalSucceeded++
			continue
		}
		stats.JournalFailed++
		class := e.ErrorClass
		if class == "" {
			class = "unknown"
		}
		stats.FailuresByClass[class]++
	}
	if !doc.Timestamp.IsZero() {
		ts := doc.Timestamp
		stats.JournalUpdatedAt = &ts
	}
	stats.JournalRunID = doc.RunID
	return stats, nil
}

// ListRecords returns records in file order.
// Parameters:
//   - ctx: request context.
//   - offset: number of records to skip.
//   - limit: page size, clamped to [1, 100]; zero means 20.
//
// Returns:
//   - *RecordPage: the requested page and the total count.
//   - error: read failure of the master database.
func (s *LedgerService) ListRecords(ctx context.Context, offset, limit int) (*RecordPage, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	records, err := s.master.ReadAll()
	if err != nil {
		return nil, err
	}
	page := &RecordPage{Total: len(records), Offset: offset, Limit: limit, Records: []domain.VideoRecord{}}
	if offset >= len(records) {
		return page, nil
	}
	end := offset + limit
	if end > len(records) {
		end = len(records)
	}
	page.Records = records[offset:end]
	return page, nil
}

// GetRecord looks a record up by identifier or video id.
func (s *LedgerService) GetRecord(ctx context.Context, id string) (*domain.VideoRecord, error) {
	id = strings.TrimSpace(id)
	records, err := s.master.ReadAll()
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].Identifier() == id || (records[i].VideoID != "" && records[i].VideoID == id) {
			return &records[i], nil
		}
	}
	return nil, ErrRecordNotFound
}

// Progress returns the journal document.
func (s *LedgerService) Progress(ctx context.Context) (*journal.Document, error) {
	doc, err := s.journal.Snapshot()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(doc.Failed, func(i, j int) bool {
		return doc.Failed[i].Timestamp.After(doc.Failed[j].Timestamp)
	})
	return doc, nil
}

// Runs returns recent run history, newest first.
func (s *LedgerService) Runs(ctx context.Context, limit int) ([]domain.IngestRun, error) {
	if s.runs == nil {
		return []domain.IngestRun{}, nil
	}
	return s.runs.ListRecent(ctx, limit)
}
