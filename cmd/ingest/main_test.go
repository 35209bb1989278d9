package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/timmy/vidledger/internal/config"
	"github.com/timmy/vidledger/internal/credential"
	"github.com/timmy/vidledger/internal/domain"
	"github.com/timmy/vidledger/internal/logger"
)

type rejectingProber struct{}

func (rejectingProber) Probe(ctx context.Context, token string) error {
	return &domain.EnrichmentAuthError{StatusCode: 401, Err: errors.New("expired session")}
}

func TestAcquireTokenWarnsOnceForRejectedToken(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(&logger.Config{Level: "debug", Format: "json", Output: &buf, ServiceName: "test"})
	ctx := l.WithContext(context.Background())

	creds := credential.New(rejectingProber{}, credential.Config{},
		credential.WithEnvLookup(func(string) (string, bool) { return "", false }),
		credential.NonInteractive(),
	)
	acquireToken(ctx, creds, strings.Repeat("t", 60))

	if creds.Current() != nil {
		t.Fatal("rejected token must not become current")
	}
	if got := strings.Count(buf.String(), `"level":"warning"`); got != 1 {
		t.Fatalf("warnings = %d, want 1:\n%s", got, buf.String())
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := &config.Config{}
	cfg.Paths.Input = "urls.txt"
	cfg.Ingest.BatchSize = 5
	cfg.Ingest.ItemDelay = 2 * time.Second
	cfg.Comments.MaxComments = 10
	cfg.Transcription.Enabled = true

	applyFlags(cfg, "", 0, -1, -1, false, false)
	if cfg.Paths.Input != "urls.txt" || cfg.Ingest.BatchSize != 5 || cfg.Ingest.ItemDelay != 2*time.Second ||
		cfg.Comments.MaxComments != 10 || cfg.Ingest.RetryFailed || !cfg.Transcription.Enabled {
		t.Fatalf("unset flags changed config: %+v", cfg)
	}

	applyFlags(cfg, "other.txt", 7, 0, 0, true, true)
	if cfg.Paths.Input != "other.txt" || cfg.Ingest.BatchSize != 7 || cfg.Ingest.ItemDelay != 0 {
		t.Fatalf("flags not applied: %+v", cfg.Ingest)
	}
	if cfg.Comments.MaxComments != 0 || !cfg.Ingest.RetryFailed || cfg.Transcription.Enabled {
		t.Fatalf("flags not applied: %+v %+v", cfg.Comments, cfg.Transcription)
	}
}
