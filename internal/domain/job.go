package domain

import "time"

// IngestRun represents one execution of the batch orchestrator and its totals.
type IngestRun struct {
	ID             string     `gorm:"type:text;primaryKey" json:"id"`
	Source         string     `gorm:"type:text;not null;index" json:"source"`
	Status         RunState   `gorm:"default:running" json:"status"`
	TotalItems     int        `gorm:"default:0" json:"total_items"`
	SkippedItems   int        `gorm:"default:0" json:"skipped_items"`
	ProcessedItems int        `gorm:"default:0" json:"processed_items"`
	FailedItems    int        `gorm:"default:0" json:"failed_items"`
	DegradedItems  int        `gorm:"default:0" json:"degraded_items"`
	Interrupted    bool       `gorm:"default:false" json:"interrupted"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ErrorLog       string     `json:"error_log,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName returns the database table name for IngestRun.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (IngestRun) TableName() string {
	return "ingest_runs"
}
