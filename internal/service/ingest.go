package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/vidledger/internal/dedup"
	"github.com/timmy/vidledger/internal/domain"
	"github.com/timmy/vidledger/internal/journal"
	"github.com/timmy/vidledger/internal/logger"
	"github.com/timmy/vidledger/internal/master"
	"github.com/timmy/vidledger/internal/pipeline"
	"github.com/timmy/vidledger/internal/source"
	"github.com/timmy/vidledger/internal/textutil"
)

// maxErrorLog caps the failure summary kept in run history.
const maxErrorLog = 4000

// Processor runs one ingestion attempt for an identifier.
type Processor interface {
	Process(ctx context.Context, id string, token *domain.Token, cfg domain.BatchConfig) (*pipeline.Outcome, error)
}

// Credentials is the part of the credential manager the orchestrator drives.
type Credentials interface {
	Current() *domain.Token
	MarkExpired()
	Refresh(ctx context.Context) (*domain.Token, error)
}

// RunRecorder persists run history.
type RunRecorder interface {
	Save(ctx context.Context, run *domain.IngestRun) error
}

// IngestService handles the batch ingestion run
type IngestService struct {
	journal  *journal.Journal
	master   *master.Store
	pipeline Processor
	creds    Credentials
	runs     RunRecorder
	logger   *logger.Logger
	sleep    func(ctx context.Context, d time.Duration)
}

// NewIngestService creates a new ingest service.
// creds and runs may be nil: the run is then video-only and unrecorded.
func NewIngestService(
	j *journal.Journal,
	m *master.Store,
	p Processor,
	creds Credentials,
	runs RunRecorder,
	log *logger.Logger,
) *IngestService {
	return &IngestService{
		journal:  j,
		master:   m,
		pipeline: p,
		creds:    creds,
		runs:     runs,
		logger:   log,
		sleep:    sleepCtx,
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *IngestService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// IngestStats holds statistics for an ingestion run
type IngestStats struct {
	RunID          string
	TotalItems     int
	SkippedItems   int
	ProcessedItems int
	FailedItems    int
	DegradedItems  int
	Duplicates     int
	Checkpoints    int
	Interrupted    bool
	VideoOnly      bool
	Failures       []domain.ProgressEntry
	// Items holds the state of every identifier this run was asked to process.
	// Identifiers still pending after an interruption are picked up next run.
	Items map[string]domain.ItemState

	StartTime time.Time
	EndTime   time.Time
}

// Count returns how many items are in state.
func (s *IngestStats) Count(state domain.ItemState) int {
	n := 0
	for _, st := range s.Items {
		if st == state {
			n++
		}
	}
	return n
}

// batch accumulates results between checkpoints.
type batch struct {
	records []domain.VideoRecord
	entries []domain.ProgressEntry
}

func (b *batch) empty() bool { return len(b.entries) == 0 }

// IngestFromSource runs the batch: load prior state, compute the remaining
// identifiers, process them one at a time and checkpoint every
// cfg.BatchSize successes.
//
// Cancelling ctx stops the run at the next item boundary; the item in
// flight completes and is flushed. A *domain.StorageError aborts the run
// immediately and is returned; per-item failures never are.
func (s *IngestService) IngestFromSource(ctx context.Context, src source.Source, cfg domain.BatchConfig) (*IngestStats, error) {
	cfg = cfg.WithDefaults()
	stats := &IngestStats{StartTime: time.Now(), RunID: logger.GetRunID(ctx)}
	if stats.RunID == "" {
		stats.RunID = uuid.New().String()
		ctx = logger.SetRunID(ctx, stats.RunID)
	}
	ctx = logger.WithField(ctx, logger.FieldSource, src.Name())

	remaining, err := s.prepare(ctx, src, cfg, stats)
	if err != nil {
		return stats, err
	}
	stats.Items = make(map[string]domain.ItemState, len(remaining))
	for _, id := range remaining {
		stats.Items[id] = domain.ItemPending
	}

	run := &domain.IngestRun{ID: stats.RunID, Source: src.Name(), Status: domain.RunRunning, StartedAt: &stats.StartTime}
	s.saveRun(ctx, run, stats)

	var token *domain.Token
	if s.creds != nil {
		token = s.creds.Current()
	}
	stats.VideoOnly = token == nil

	s.log(ctx).WithFields(logger.Fields{
		"total":      stats.TotalItems,
		"remaining":  len(remaining),
		"batch_size": cfg.BatchSize,
		"video_only": stats.VideoOnly,
		"force":      cfg.Force,
	}).Info("Starting ingestion")

	var (
		pending   batch
		successes int
	)
	for i, id := range remaining {
		if ctx.Err() != nil {
			stats.Interrupted = true
			break
		}

		itemCtx := logger.SetIdentifier(context.WithoutCancel(ctx), id)
		stats.Items[id] = domain.ItemInFlight
		logger.CtxInfo(itemCtx, "Processing item %d/%d", i+1, len(remaining))

		out, attempts, err := s.processWithRetry(itemCtx, id, token, cfg)
		switch {
		case err != nil && domain.IsFatal(err):
			stats.Items[id] = domain.ItemFailed
			return s.abort(ctx, run, stats, err)
		case err != nil:
			stats.Items[id] = domain.ItemFailed
			entry := domain.ProgressEntry{
				Identifier: id,
				Outcome:    domain.OutcomeFailed,
				Attempts:   attempts,
				LastError:  err.Error(),
				ErrorClass: domain.ErrorClass(err),
				Timestamp:  time.Now().UTC(),
			}
			pending.entries = append(pending.entries, entry)
			stats.Failures = append(stats.Failures, entry)
			stats.FailedItems++
			logger.CtxError(itemCtx, "Item failed: class=%s, attempts=%d, error=%v", entry.ErrorClass, attempts, err)
		default:
			stats.Items[id] = domain.ItemSucceeded
			pending.records = append(pending.records, *out.Record)
			pending.entries = append(pending.entries, domain.ProgressEntry{
				Identifier: id,
				Outcome:    domain.OutcomeSucceeded,
				Attempts:   attempts,
				Timestamp:  time.Now().UTC(),
			})
			successes++
			if out.Degraded() {
				stats.DegradedItems++
			}
			if out.TokenExpired && token != nil {
				token = s.handleExpiry(ctx, cfg.OnTokenExpiry)
				stats.VideoOnly = token == nil
			}
		}

		if successes >= cfg.BatchSize {
			if err := s.checkpoint(ctx, &pending, stats); err != nil {
				return s.abort(ctx, run, stats, err)
			}
			successes = 0
			s.saveRun(ctx, run, stats)
		}

		if i < len(remaining)-1 {
			s.sleep(ctx, cfg.ItemDelay)
		}
	}

	if !pending.empty() {
		if err := s.checkpoint(ctx, &pending, stats); err != nil {
			return s.abort(ctx, run, stats, err)
		}
	}

	stats.EndTime = time.Now()
	run.Status = domain.RunCompleted
	run.CompletedAt = &stats.EndTime
	s.saveRun(ctx, run, stats)

	logger.With(logger.Fields{
		"total":       stats.TotalItems,
		"processed":   stats.ProcessedItems,
		"skipped":     stats.SkippedItems,
		"failed":      stats.FailedItems,
		"degraded":    stats.DegradedItems,
		"pending":     stats.Count(domain.ItemPending),
		"interrupted": stats.Interrupted,
	}).WithDuration(stats.StartTime).WithStatus(string(domain.RunCompleted)).Info(ctx, "Ingestion completed")

	return stats, nil
}

// prepare loads prior state and returns the identifiers still to do.
func (s *IngestService) prepare(ctx context.Context, src source.Source, cfg domain.BatchConfig, stats *IngestStats) ([]string, error) {
	if cfg.CleanStart {
		if err := s.journal.Clear(); err != nil {
			return nil, err
		}
		logger.CtxInfo(ctx, "Progress journal cleared: path=%s", s.journal.Path())
	}

	ids, err := source.Collect(ctx, src, cfg.Limit)
	if err != nil {
		return nil, err
	}

	records, masterReport, err := s.master.Scan()
	if err != nil {
		return nil, fmt.Errorf("load master database: %w", err)
	}
	if len(masterReport.Malformed) > 0 || masterReport.Duplicates > 0 {
		logger.CtxWarn(ctx, "Master database has problems: malformed=%d, duplicates=%d", len(masterReport.Malformed), masterReport.Duplicates)
	}

	entries, err := s.journal.Load()
	if err != nil {
		if !errors.Is(err, journal.ErrCorrupt) {
			return nil, err
		}
		logger.CtxWarn(ctx, "Progress journal unreadable, starting from master database only: error=%v", err)
		entries = nil
	}

	idx, report := dedup.Build(records, masterReport.Unreadable(), entries, dedup.Options{Force: cfg.Force, RetryFailed: cfg.RetryFailed})
	remaining := idx.Remaining(ids)

	stats.TotalItems = len(ids)
	stats.SkippedItems = len(ids) - len(remaining)

	s.log(ctx).WithFields(logger.Fields{
		"master_records":    report.MasterRecords,
		"master_unreadable": report.MasterUnreadable,
		"journal_succeeded": report.JournalSucceeded,
		"journal_failed":    report.JournalFailed,
		"excluded":          report.Excluded,
	}).Debug("Dedup index built")
	return remaining, nil
}

// processWithRetry retries retrieval failures with a linear backoff.
func (s *IngestService) processWithRetry(ctx context.Context, id string, token *domain.Token, cfg domain.BatchConfig) (*pipeline.Outcome, int, error) {
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		attemptCtx := logger.WithField(ctx, logger.FieldAttempt, attempt)
		out, err := s.pipeline.Process(attemptCtx, id, token, cfg)
		if err == nil {
			return out, attempt, nil
		}
		lastErr = err
		if !domain.IsRetryable(err) || attempt == cfg.MaxAttempts {
			return nil, attempt, err
		}
		pause := cfg.RetryPause * time.Duration(attempt)
		logger.CtxWarn(attemptCtx, "Attempt failed, retrying: class=%s, pause=%s, error=%v", domain.ErrorClass(err), pause, err)
		s.sleep(ctx, pause)
	}
	return nil, cfg.MaxAttempts, lastErr
}

// checkpoint writes pending records to the master database, then the journal.
func (s *IngestService) checkpoint(ctx context.Context, b *batch, stats *IngestStats) error {
	start := time.Now()
	result, err := s.master.Append(b.records)
	if err != nil {
		return err
	}
	if len(result.Rejected) > 0 {
		logger.CtxWarn(ctx, "Master database rejected records: %s", strings.Join(result.Rejected, "; "))
	}
	if err := s.journal.Append(b.entries); err != nil {
		return err
	}

	stats.ProcessedItems += result.Appended + result.Replaced
	stats.Duplicates += result.Duplicates
	stats.Checkpoints++

	logger.With(logger.Fields{
		"appended":   result.Appended,
		"replaced":   result.Replaced,
		"duplicates": result.Duplicates,
	}).WithCount(len(b.entries)).WithDuration(start).WithStatus(string(domain.RunPaused)).Info(ctx, "Checkpoint flushed")

	b.records = nil
	b.entries = nil
	return nil
}

// handleExpiry marks the token expired and either re-acquires it or drops
// to video-only mode, depending on policy.
func (s *IngestService) handleExpiry(ctx context.Context, policy domain.ExpiryPolicy) *domain.Token {
	if s.creds == nil {
		return nil
	}
	s.creds.MarkExpired()
	if policy == domain.ExpiryPrompt {
		tok, err := s.creds.Refresh(ctx)
		if err == nil && tok != nil {
			logger.CtxInfo(ctx, "Token refreshed, comment extraction resumes: token=%s", tok.Masked())
			return tok
		}
		logger.CtxWarn(ctx, "Token refresh declined or failed: error=%v", err)
	}
	logger.CtxWarn(ctx, "Token expired, continuing in video-only mode for the rest of the run")
	return nil
}

func (s *IngestService) abort(ctx context.Context, run *domain.IngestRun, stats *IngestStats, err error) (*IngestStats, error) {
	stats.EndTime = time.Now()
	run.Status = domain.RunAborted
	run.CompletedAt = &stats.EndTime
	run.ErrorLog = errorLog(err.Error())
	s.saveRun(ctx, run, stats)
	logger.With(logger.Fields{
		"processed": stats.ProcessedItems,
		"failed":    stats.FailedItems,
	}).WithDuration(stats.StartTime).WithStatus(string(domain.RunAborted)).Error(ctx, "Ingestion aborted: error=%v", err)
	return stats, err
}

// saveRun copies stats into run and persists it. Failures are logged only.
func (s *IngestService) saveRun(ctx context.Context, run *domain.IngestRun, stats *IngestStats) {
	if s.runs == nil {
		return
	}
	run.TotalItems = stats.TotalItems
	run.SkippedItems = stats.SkippedItems
	run.ProcessedItems = stats.ProcessedItems
	run.FailedItems = stats.FailedItems
	run.DegradedItems = stats.DegradedItems
	run.Interrupted = stats.Interrupted
	if run.Status != domain.RunAborted && len(stats.Failures) > 0 {
		lines := make([]string, 0, len(stats.Failures))
		for _, f := range stats.Failures {
			lines = append(lines, fmt.Sprintf("%s [%s] %s", f.Identifier, f.ErrorClass, f.LastError))
		}
		run.ErrorLog = errorLog(strings.Join(lines, "\n"))
	}
	if err := s.runs.Save(context.WithoutCancel(ctx), run); err != nil {
		logger.CtxWarn(ctx, "Failed to record run history: error=%v", err)
	}
}

// errorLog makes s safe to store as text: valid UTF-8, capped at maxErrorLog bytes.
func errorLog(s string) string {
	return textutil.Truncate(strings.ToValidUTF8(s, "\uFFFD"), maxErrorLog)
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
