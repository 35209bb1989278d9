package service

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/timmy/vidledger/internal/domain"
)

func seedLedger(t *testing.T, h *harness) {
	t.Helper()
	a := record("A", nil)
	a.SubtitleTranscript = "hello"
	b := record("B", &domain.Token{Value: "x", State: domain.TokenActive})
	b.VideoID = "7302"
	c := record("C", nil)
	if _, err := h.master.Append([]domain.VideoRecord{*a, *b, *c}); err != nil {
		t.Fatalf("seed master: %v", err)
	}
	err := h.journal.Append([]domain.ProgressEntry{
		{Identifier: "A", Outcome: domain.OutcomeSucceeded, Timestamp: time.Now()},
		{Identifier: "D", Outcome: domain.OutcomeFailed, ErrorClass: "retrieval:not_found", Timestamp: time.Now()},
		{Identifier: "E", Outcome: domain.OutcomeFailed, Timestamp: time.Now()},
	})
	if err != nil {
		t.Fatalf("seed journal: %v", err)
	}
}

func TestLedgerStats(t *testing.T) {
	h := newHarness(t)
	seedLedger(t, h)
	svc := NewLedgerService(h.master, h.journal, nil, nil)

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Records != 3 || stats.WithComments != 1 || stats.TotalComments != 1 || stats.WithTranscript != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.JournalSucceeded != 1 || stats.JournalFailed != 2 {
		t.Fatalf("journal counts = %+v", stats)
	}
	if stats.FailuresByClass["retrieval:not_found"] != 1 || stats.FailuresByClass["unknown"] != 1 {
		t.Fatalf("FailuresByClass = %v", stats.FailuresByClass)
	}
	if stats.JournalRunID != "run-test" || stats.JournalUpdatedAt == nil {
		t.Fatalf("journal metadata missing: %+v", stats)
	}
}

func TestLedgerStatsCorruptJournal(t *testing.T) {
	h := newHarness(t)
	if err := os.WriteFile(h.journal.Path(), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	stats, err := NewLedgerService(h.master, h.journal, nil, nil).Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Records != 0 || stats.JournalFailed != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestLedgerListRecords(t *testing.T) {
	h := newHarness(t)
	seedLedger(t, h)
	svc := NewLedgerService(h.master, h.journal, nil, nil)

	tests := []struct {
		name          string
		offset, limit int
		wantIDs       []string
		wantLimit     int
	}{
		{name: "default page", offset: 0, limit: 0, wantIDs: []string{"A", "B", "C"}, wantLimit: 20},
		{name: "second page", offset: 1, limit: 1, wantIDs: []string{"B"}, wantLimit: 1},
		{name: "past end", offset: 10, limit: 5, wantIDs: []string{}, wantLimit: 5},
		{name: "clamped", offset: -3, limit: 1000, wantIDs: []string{"A", "B", "C"}, wantLimit: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.ListRecords(context.Background(), tt.offset, tt.limit)
			if err != nil {
				t.Fatalf("ListRecords() error = %v", err)
			}
			if page.Total != 3 || page.Limit != tt.wantLimit {
				t.Fatalf("page = %+v", page)
			}
			got := make([]string, 0, len(page.Records))
			for _, r := range page.Records {
				got = append(got, r.URL)
			}
			if !equalIDs(got, tt.wantIDs) {
				t.Fatalf("records = %v, want %v", got, tt.wantIDs)
			}
		})
	}
}

func TestLedgerGetRecord(t *testing.T) {
	h := newHarness(t)
	seedLedger(t, h)
	svc := NewLedgerService(h.master, h.journal, nil, nil)

	if rec, err := svc.GetRecord(context.Background(), "7302"); err != nil || rec.URL != "B" {
		t.Fatalf("GetRecord(video id) = %+v, %v", rec, err)
	}
	if rec, err := svc.GetRecord(context.Background(), "C"); err != nil || rec.URL != "C" {
		t.Fatalf("GetRecord(url) = %+v, %v", rec, err)
	}
	if _, err := svc.GetRecord(context.Background(), "Z"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("GetRecord(missing) error = %v", err)
	}
}

func TestLedgerRunsWithoutHistory(t *testing.T) {
	h := newHarness(t)
	runs, err := NewLedgerService(h.master, h.journal, nil, nil).Runs(context.Background(), 10)
	if err != nil || len(runs) != 0 {
		t.Fatalf("Runs() = %v, %v", runs, err)
	}
}
