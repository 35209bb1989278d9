package linefile

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/timmy/vidledger/internal/source"
)

func writeList(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "urls.txt")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write list: %v", err)
	}
	return path
}

func TestFetchBatch(t *testing.T) {
	path := writeList(t, "# harvested\nhttps://www.tiktok.com/@a/video/1\n\n  https://www.tiktok.com/@b/video/2  \nhttps://example.com/x\n{\"url\":\"https://www.tiktok.com/@c/video/3\"}\n{broken\n")

	tests := []struct {
		name   string
		filter string
		want   []string
	}{
		{
			name: "no filter",
			want: []string{
				"https://www.tiktok.com/@a/video/1",
				"https://www.tiktok.com/@b/video/2",
				"https://example.com/x",
				"https://www.tiktok.com/@c/video/3",
			},
		},
		{
			name:   "tiktok filter",
			filter: "tiktok.com",
			want: []string{
				"https://www.tiktok.com/@a/video/1",
				"https://www.tiktok.com/@b/video/2",
				"https://www.tiktok.com/@c/video/3",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAdapter(path, tt.filter)
			first, next, err := a.FetchBatch(context.Background(), "", 2)
			if err != nil {
				t.Fatalf("FetchBatch() error: %v", err)
			}
			if next != "2" {
				t.Fatalf("next cursor = %q, want 2", next)
			}
			got, err := source.Collect(context.Background(), a, 0)
			if err != nil {
				t.Fatalf("Collect() error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Collect() = %v, want %v", got, tt.want)
			}
			if !reflect.DeepEqual(first, tt.want[:2]) {
				t.Fatalf("first batch = %v", first)
			}
		})
	}
}

func TestCollectLimit(t *testing.T) {
	path := writeList(t, "a\nb\nc\n")
	got, err := source.Collect(context.Background(), NewAdapter(path, ""), 2)
	if err != nil {
		t.Fatalf("Collect() error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("Collect() = %v", got)
	}
}

func TestMissingFile(t *testing.T) {
	a := NewAdapter(filepath.Join(t.TempDir(), "missing.txt"), "")
	if _, _, err := a.FetchBatch(context.Background(), "", 10); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestInvalidCursor(t *testing.T) {
	a := NewAdapter(writeList(t, "a\n"), "")
	if _, _, err := a.FetchBatch(context.Background(), "x", 10); err == nil {
		t.Fatal("expected error for invalid cursor")
	}
}
