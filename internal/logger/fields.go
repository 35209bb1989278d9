package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Context-level fields, propagated through the call chain.
const (
	FieldRunID      = "run_id"
	FieldRequestID  = "request_id"
	FieldIdentifier = "identifier"
	FieldAttempt    = "attempt"
	FieldStage      = "stage"
	FieldComponent  = "component"
	FieldSource     = "source"
)

// Entry-level metric fields, used for aggregation.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldSize       = "size"
	FieldStatus     = "status"
)
