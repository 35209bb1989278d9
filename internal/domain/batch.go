package domain

import "time"

// ExpiryPolicy decides what the orchestrator does when the token expires mid-run.
type ExpiryPolicy string

const (
	// ExpiryPrompt blocks for interactive re-acquisition.
	ExpiryPrompt ExpiryPolicy = "prompt"
	// ExpiryDegrade continues the rest of the run in video-only mode.
	ExpiryDegrade ExpiryPolicy = "degrade"
)

// BatchConfig is the immutable per-run configuration.
type BatchConfig struct {
	OutputDir     string
	BatchSize     int
	ItemDelay     time.Duration
	MaxComments   int
	Transcribe    bool
	Quality       string
	Force         bool
	CleanStart    bool
	RetryFailed   bool
	MaxAttempts   int
	RetryPause    time.Duration
	Limit         int
	OnTokenExpiry ExpiryPolicy
}

// WithDefaults fills zero values with the documented defaults.
func (c BatchConfig) WithDefaults() BatchConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.MaxComments < 0 {
		c.MaxComments = 0
	}
	if c.ItemDelay < 0 {
		c.ItemDelay = 0
	}
	if c.RetryPause < 0 {
		c.RetryPause = 0
	}
	if c.OnTokenExpiry == "" {
		c.OnTokenExpiry = ExpiryDegrade
	}
	return c
}
