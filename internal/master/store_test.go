package master

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/timmy/vidledger/internal/domain"
)

func record(url string) domain.VideoRecord {
	return domain.VideoRecord{
		URL:           url,
		Title:         "title " + url,
		StorageFolder: "downloads/" + url,
		IngestedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Comments:      []domain.CommentRecord{{ID: "1", Text: "first"}, {ID: "2", Text: "second"}},
	}
}

func TestAppendAndScan(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "master.json"))

	res, err := s.Append([]domain.VideoRecord{record("a"), record("b")})
	if err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if res.Appended != 2 {
		t.Fatalf("Appended = %d, want 2", res.Appended)
	}

	res, err = s.Append([]domain.VideoRecord{record("b"), record("c"), record("c")})
	if err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if res.Appended != 1 || res.Duplicates != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}

	records, report, err := s.Scan()
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if report.Total != 3 || report.Valid != 3 || len(report.Malformed) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	for i, want := range []string{"a", "b", "c"} {
		if records[i].URL != want {
			t.Errorf("records[%d] = %s, want %s", i, records[i].URL, want)
		}
	}
	if records[0].Comments[0].ID != "1" || records[0].Comments[1].ID != "2" {
		t.Errorf("comment order not preserved: %+v", records[0].Comments)
	}
}

func TestAppendReplaceMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.json")
	if _, err := New(path).Append([]domain.VideoRecord{record("a"), record("b")}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	updated := record("a")
	updated.Title = "fresh"
	res, err := New(path, WithReplace(true)).Append([]domain.VideoRecord{updated})
	if err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if res.Replaced != 1 || res.Appended != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	records, err := New(path).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if len(records) != 2 || records[0].Title != "fresh" || records[1].URL != "b" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestAppendRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.json")
	bad := record("x")
	bad.StorageFolder = ""

	res, err := New(path).Append([]domain.VideoRecord{bad})
	if err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if len(res.Rejected) != 1 || res.Appended != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("nothing valid was appended, file should not exist")
	}
}

func TestScanToleratesMalformedAndPreservesThem(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.json")
	seed := `[{"url":"a","folder":"f","downloaded_at":"2024-01-01T00:00:00Z"}, {"title":"no url"}, 42, {"url":"a"}]`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := New(path)
	records, report, err := s.Scan()
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if len(records) != 1 || report.Duplicates != 1 || len(report.Malformed) != 2 {
		t.Fatalf("records=%d report=%+v", len(records), report)
	}

	if _, err := s.Append([]domain.VideoRecord{record("b")}); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(raw) != 5 {
		t.Fatalf("expected malformed elements to survive rewrite, got %d elements", len(raw))
	}
}

func TestCorruptFileRefused(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.json")
	if err := os.WriteFile(path, []byte(`{"url":"a"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := New(path)
	if _, _, err := s.Scan(); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Scan() error = %v, want ErrCorrupt", err)
	}
	if _, err := s.Append([]domain.VideoRecord{record("b")}); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Append() error = %v, want ErrCorrupt", err)
	}
}

func TestAppendStorageError(t *testing.T) {
	dir := t.TempDir()
	// A directory at the file path makes the rename fail.
	path := filepath.Join(dir, "master.json")
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	_, err := New(path).Append([]domain.VideoRecord{record("a")})
	if !domain.IsFatal(err) {
		t.Fatalf("Append() error = %v, want StorageError", err)
	}
}

const legacyElement = `{"url":"https://www.tiktok.com/@u/video/1","video_id":"1","title":"old",` +
	`"downloaded_at":"2025-06-01T10:00:00.123456","transcription_timestamp":"",` +
	`"top_comments":[],"folder":"downloads/old"}`

func TestScanReadsLegacyTimestamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.json")
	if err := os.WriteFile(path, []byte("["+legacyElement+"]"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	records, report, err := New(path).Scan()
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if len(records) != 1 || len(report.Malformed) != 0 {
		t.Fatalf("records=%d report=%+v", len(records), report)
	}
	rec := records[0]
	if got := rec.IngestedAt.Format("2006-01-02T15:04:05"); got != "2025-06-01T10:00:00" {
		t.Errorf("IngestedAt = %s", got)
	}
	if rec.TranscriptionTimestamp != nil {
		t.Errorf("TranscriptionTimestamp = %v, want nil", rec.TranscriptionTimestamp)
	}
}

func TestUndecodableRecordKeepsItsIdentifier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.json")
	seed := `[{"url":"a","folder":"f","downloaded_at":"last tuesday"}]`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := New(path)
	_, report, err := s.Scan()
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if got := report.Unreadable(); len(got) != 1 || got[0] != "a" {
		t.Fatalf("Unreadable() = %v, want [a]", got)
	}

	res, err := s.Append([]domain.VideoRecord{record("a")})
	if err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if res.Duplicates != 1 || res.Appended != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	res, err = New(path, WithReplace(true)).Append([]domain.VideoRecord{record("a")})
	if err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if res.Replaced != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	records, err := s.ReadAll()
	if err != nil || len(records) != 1 || records[0].Title != "title a" {
		t.Fatalf("records=%+v err=%v", records, err)
	}
}
