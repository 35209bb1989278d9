package repository

import (
	"context"
	"errors"

	"github.com/timmy/vidledger/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("ingest run not found")

// RunRepository persists orchestrator run history.
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Save creates or fully updates a run row keyed by id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - run: run to persist.
//
// Returns:
//   - error: non-nil if the upsert fails.
func (r *RunRepository) Save(ctx context.Context, run *domain.IngestRun) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(run).Error
}

// GetByID returns one run.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*domain.IngestRun, error) {
	var run domain.IngestRun
	err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRecent returns up to limit runs, newest first.
func (r *RunRepository) ListRecent(ctx context.Context, limit int) ([]domain.IngestRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []domain.IngestRun
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

// Totals aggregates processed and failed items across all runs.
func (r *RunRepository) Totals(ctx context.Context) (runs int64, processed int64, failed int64, err error) {
	var row struct {
		Runs      int64
		Processed int64
		Failed    int64
	}
	err = r.db.WithContext(ctx).
		Model(&domain.IngestRun{}).
		Select("COUNT(*) AS runs, COALESCE(SUM(processed_items), 0) AS processed, COALESCE(SUM(failed_items), 0) AS failed").
		Scan(&row).Error
	return row.Runs, row.Processed, row.Failed, err
}
