package transcribe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/timmy/vidledger/internal/cmdrun"
)

// WhisperCLI runs a local openai-whisper installation.
type WhisperCLI struct {
	binary   string
	model    string
	language string
	timeout  time.Duration
	run      cmdrun.Runner
}

// WhisperOption configures WhisperCLI.
type WhisperOption func(*WhisperCLI)

// WithCommandRunner replaces the process runner.
func WithCommandRunner(r cmdrun.Runner) WhisperOption {
	return func(w *WhisperCLI) {
		if r != nil {
			w.run = r
		}
	}
}

// NewWhisperCLI creates a CLI-backed transcriber.
func NewWhisperCLI(binary, model, language string, timeout time.Duration, opts ...WhisperOption) *WhisperCLI {
	if binary == "" {
		binary = "whisper"
	}
	if model == "" {
		model = "base"
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	w := &WhisperCLI{binary: binary, model: model, language: language, timeout: timeout, run: cmdrun.Exec}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name returns the backend label.
func (w *WhisperCLI) Name() string { return "whisper:" + w.model }

// Transcribe writes a txt transcript to a scratch directory and reads it back.
func (w *WhisperCLI) Transcribe(ctx context.Context, mediaPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	outDir, err := os.MkdirTemp("", "vidledger-whisper-*")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	args := []string{
		mediaPath,
		"--model", w.model,
		"--beam_size", "1",
		"--output_format", "txt",
		"--output_dir", outDir,
		"--fp16", "False",
		"--verbose", "False",
	}
	if w.language != "" {
		args = append(args, "--language", w.language)
	}
	if _, err := w.run(ctx, w.binary, args...); err != nil {
		return "", err
	}

	stem := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
	data, err := os.ReadFile(filepath.Join(outDir, stem+".txt"))
	if err != nil {
		return "", fmt.Errorf("read whisper output: %w", err)
	}
	return normalize(string(data)), nil
}
