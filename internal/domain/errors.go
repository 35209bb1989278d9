package domain

import (
	"errors"
	"fmt"
)

// RetrievalReason classifies a media retrieval failure.
type RetrievalReason string

const (
	ReasonNotFound       RetrievalReason = "not_found"
	ReasonRateLimited    RetrievalReason = "rate_limited"
	ReasonNetworkTimeout RetrievalReason = "network_timeout"
	ReasonOther          RetrievalReason = "other"
)

// RetrievalError is returned when media or metadata could not be fetched.
type RetrievalError struct {
	Identifier string
	Reason     RetrievalReason
	Err        error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed for %s (%s): %v", e.Identifier, e.Reason, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt may succeed.
func (e *RetrievalError) Retryable() bool {
	return e.Reason != ReasonNotFound
}

// TranscriptionError is a non-fatal failure of the speech-to-text step.
type TranscriptionError struct {
	Identifier string
	Err        error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription failed for %s: %v", e.Identifier, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// EnrichmentAuthError signals that the comment endpoint rejected the token.
type EnrichmentAuthError struct {
	StatusCode int
	Err        error
}

func (e *EnrichmentAuthError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("enrichment authorization failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("enrichment authorization failed: %v", e.Err)
}

func (e *EnrichmentAuthError) Unwrap() error { return e.Err }

// StorageError is a run-fatal failure writing durable state.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a retrieval failure worth retrying.
func IsRetryable(err error) bool {
	var re *RetrievalError
	return errors.As(err, &re) && re.Retryable()
}

// IsFatal reports whether err must abort the run.
func IsFatal(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IsAuth reports whether err is an enrichment authorization failure.
func IsAuth(err error) bool {
	var ae *EnrichmentAuthError
	return errors.As(err, &ae)
}

// ErrorClass returns a short label for journaling and run statistics.
func ErrorClass(err error) string {
	if err == nil {
		return ""
	}
	var (
		re *RetrievalError
		te *TranscriptionError
		ae *EnrichmentAuthError
		se *StorageError
	)
	switch {
	case errors.As(err, &re):
		return "retrieval:" + string(re.Reason)
	case errors.As(err, &te):
		return "transcription"
	case errors.As(err, &ae):
		return "enrichment_auth"
	case errors.As(err, &se):
		return "storage"
	case errors.Is(err, ErrInvalidRecord):
		return "invalid_record"
	default:
		return "other"
	}
}
