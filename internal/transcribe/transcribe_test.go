package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/timmy/vidledger/internal/cmdrun"
)

func TestWhisperCLI(t *testing.T) {
	media := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(media, []byte("fake"), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}

	var gotArgs []string
	runner := func(ctx context.Context, name string, args ...string) (cmdrun.Output, error) {
		gotArgs = args
		var outDir string
		for i, a := range args {
			if a == "--output_dir" {
				outDir = args[i+1]
			}
		}
		return cmdrun.Output{}, os.WriteFile(filepath.Join(outDir, "clip.txt"), []byte("hello\nworld \n"), 0o644)
	}

	w := NewWhisperCLI("", "tiny", "en", time.Minute, WithCommandRunner(runner))
	got, err := w.Transcribe(context.Background(), media)
	if err != nil {
		t.Fatalf("Transcribe() error: %v", err)
	}
	if got != "hello world" {
		t.Fatalf("Transcribe() = %q", got)
	}
	joined := strings.Join(gotArgs, " ")
	for _, want := range []string{"--model tiny", "--beam_size 1", "--language en", "--output_format txt"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
}

func TestWhisperCLIFailure(t *testing.T) {
	runner := func(ctx context.Context, name string, args ...string) (cmdrun.Output, error) {
		return cmdrun.Output{}, errors.New("whisper failed")
	}
	w := NewWhisperCLI("", "", "", 0, WithCommandRunner(runner))
	if _, err := w.Transcribe(context.Background(), "/nope.mp4"); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenAI(t *testing.T) {
	media := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(media, []byte("fake audio"), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}

	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr bool
	}{
		{"ok", http.StatusOK, `{"text":"  spoken   words "}`, "spoken words", false},
		{"error", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/audio/transcriptions" {
					t.Errorf("path = %s", r.URL.Path)
				}
				if r.Header.Get("Authorization") != "Bearer key" {
					t.Errorf("missing bearer token")
				}
				file, _, err := r.FormFile("file")
				if err != nil {
					t.Errorf("form file: %v", err)
				} else {
					data, _ := io.ReadAll(file)
					if string(data) != "fake audio" {
						t.Errorf("uploaded %q", data)
					}
				}
				if r.FormValue("model") != "whisper-1" {
					t.Errorf("model = %q", r.FormValue("model"))
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			o := NewOpenAI(OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "key", Language: "en"})
			got, err := o.Transcribe(context.Background(), media)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Transcribe() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("Transcribe() = %q, want %q", got, tt.want)
			}
		})
	}
}
