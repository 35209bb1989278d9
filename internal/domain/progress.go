package domain

import "time"

// Outcome is the terminal result of one item in a run.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// ItemState tracks an identifier through the orchestrator.
// Values include ItemPending, ItemInFlight, ItemSucceeded, and ItemFailed.
type ItemState string

const (
	ItemPending   ItemState = "pending"
	ItemInFlight  ItemState = "in_flight"
	ItemSucceeded ItemState = "succeeded"
	ItemFailed    ItemState = "failed"
)

// RunState is the run-level lifecycle of the orchestrator.
type RunState string

const (
	RunRunning   RunState = "running"
	RunPaused    RunState = "paused"
	RunCompleted RunState = "completed"
	RunAborted   RunState = "aborted"
)

// ProgressEntry records what happened to one identifier during a run.
type ProgressEntry struct {
	Identifier string    `json:"url"`
	Outcome    Outcome   `json:"outcome"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	ErrorClass string    `json:"error_class,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Succeeded reports whether the entry marks the identifier as done.
func (e ProgressEntry) Succeeded() bool {
	return e.Outcome == OutcomeSucceeded
}
