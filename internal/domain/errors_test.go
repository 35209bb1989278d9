package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestErrorClass(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		class     string
		retryable bool
		fatal     bool
	}{
		{"nil", nil, "", false, false},
		{"rate limited", &RetrievalError{Identifier: "u", Reason: ReasonRateLimited, Err: errors.New("429")}, "retrieval:rate_limited", true, false},
		{"not found", &RetrievalError{Identifier: "u", Reason: ReasonNotFound, Err: errors.New("404")}, "retrieval:not_found", false, false},
		{"wrapped timeout", fmt.Errorf("attempt 2: %w", &RetrievalError{Reason: ReasonNetworkTimeout, Err: errors.New("i/o timeout")}), "retrieval:network_timeout", true, false},
		{"transcription", &TranscriptionError{Identifier: "u", Err: errors.New("boom")}, "transcription", false, false},
		{"auth", &EnrichmentAuthError{StatusCode: 401, Err: errors.New("denied")}, "enrichment_auth", false, false},
		{"storage", &StorageError{Op: "rename", Path: "/x", Err: errors.New("disk full")}, "storage", false, true},
		{"invalid", fmt.Errorf("%w: bad", ErrInvalidRecord), "invalid_record", false, false},
		{"other", errors.New("x"), "other", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorClass(tt.err); got != tt.class {
				t.Fatalf("ErrorClass() = %q, want %q", got, tt.class)
			}
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Fatalf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Fatalf("IsFatal() = %v, want %v", got, tt.fatal)
			}
		})
	}
}

func TestVideoRecordValidate(t *testing.T) {
	valid := func() *VideoRecord {
		return &VideoRecord{
			URL:           "https://www.tiktok.com/@a/video/1",
			StorageFolder: "downloads/a_1",
			IngestedAt:    time.Now(),
			Comments:      []CommentRecord{{ID: "c1"}},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(r *VideoRecord)
	}{
		{"empty url", func(r *VideoRecord) { r.URL = "  " }},
		{"missing folder", func(r *VideoRecord) { r.StorageFolder = "" }},
		{"zero timestamp", func(r *VideoRecord) { r.IngestedAt = time.Time{} }},
		{"negative views", func(r *VideoRecord) { r.ViewCount = -1 }},
		{"negative duration", func(r *VideoRecord) { r.DurationSeconds = -2 }},
		{"comment without id", func(r *VideoRecord) { r.Comments = append(r.Comments, CommentRecord{Text: "hi"}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(r)
			err := r.Validate()
			if !errors.Is(err, ErrInvalidRecord) {
				t.Fatalf("Validate() error = %v, want ErrInvalidRecord", err)
			}
		})
	}
}

func TestTokenMasked(t *testing.T) {
	var nilTok *Token
	if nilTok.Masked() != "<none>" {
		t.Fatalf("nil token mask = %q", nilTok.Masked())
	}
	tok := &Token{Value: "abcdefghijklmnop", State: TokenActive}
	if got := tok.Masked(); got != "abcd…mnop" {
		t.Fatalf("Masked() = %q", got)
	}
	if !tok.Usable() {
		t.Fatal("active token should be usable")
	}
	tok.State = TokenExpired
	if tok.Usable() {
		t.Fatal("expired token should not be usable")
	}
}
