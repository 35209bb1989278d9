package dedup

import (
	"reflect"
	"testing"

	"github.com/timmy/vidledger/internal/domain"
)

func TestRemaining(t *testing.T) {
	records := []domain.VideoRecord{{URL: "a"}, {URL: "a"}, {URL: ""}}
	entries := []domain.ProgressEntry{
		{Identifier: "b", Outcome: domain.OutcomeSucceeded},
		{Identifier: "c", Outcome: domain.OutcomeFailed},
		{Identifier: "", Outcome: domain.OutcomeSucceeded},
	}
	input := []string{"a", "b", "c", "d", " d ", "e", ""}

	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{"default", Options{}, []string{"d", "e"}},
		{"retry failed", Options{RetryFailed: true}, []string{"c", "d", "e"}},
		{"force", Options{Force: true}, []string{"a", "b", "c", "d", "e"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, _ := Build(records, nil, entries, tt.opts)
			got := idx.Remaining(input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Remaining() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildReport(t *testing.T) {
	records := []domain.VideoRecord{{URL: "a"}, {URL: "a"}, {URL: " "}}
	entries := []domain.ProgressEntry{
		{Identifier: "a", Outcome: domain.OutcomeFailed},
		{Identifier: "b", Outcome: domain.OutcomeSucceeded},
	}
	idx, report := Build(records, nil, entries, Options{})
	want := Report{MasterRecords: 2, MasterMalformed: 1, MasterDuplicates: 1, JournalSucceeded: 1, JournalFailed: 1, Excluded: 2}
	if report != want {
		t.Fatalf("report = %+v, want %+v", report, want)
	}
	if !idx.Contains("a") || !idx.Contains("b") || idx.Contains("c") {
		t.Fatal("unexpected membership")
	}
}

func TestEmptyState(t *testing.T) {
	idx, report := Build(nil, nil, nil, Options{})
	if idx.Contains("x") || report.Excluded != 0 {
		t.Fatalf("expected empty index")
	}
	if got := idx.Remaining([]string{"x"}); !reflect.DeepEqual(got, []string{"x"}) {
		t.Fatalf("Remaining() = %v", got)
	}
}

func TestUnreadableMasterIdentifiersAreExcluded(t *testing.T) {
	records := []domain.VideoRecord{{URL: "a"}}
	unreadable := []string{"legacy", " ", "a"}

	idx, report := Build(records, unreadable, nil, Options{})
	if report.MasterUnreadable != 2 {
		t.Fatalf("MasterUnreadable = %d, want 2", report.MasterUnreadable)
	}
	got := idx.Remaining([]string{"a", "legacy", "new"})
	if !reflect.DeepEqual(got, []string{"new"}) {
		t.Fatalf("Remaining() = %v, want [new]", got)
	}

	forced, _ := Build(records, unreadable, nil, Options{Force: true})
	if got := forced.Remaining([]string{"legacy"}); !reflect.DeepEqual(got, []string{"legacy"}) {
		t.Fatalf("forced Remaining() = %v, want [legacy]", got)
	}
}
