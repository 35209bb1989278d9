// Package retrieval resolves a video identifier into media and metadata via yt-dlp.
package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/timmy/vidledger/internal/cmdrun"
	"github.com/timmy/vidledger/internal/domain"
	"github.com/timmy/vidledger/internal/logger"
)

// Files lists what a download left in the item folder.
type Files struct {
	Media    string
	InfoJSON string
	// Subtitles are ordered by preference: automatic captions first.
	Subtitles []string
}

// Retriever resolves identifiers into metadata and downloaded media.
type Retriever interface {
	// Probe fetches metadata without downloading media.
	Probe(ctx context.Context, id string) (*Info, error)
	// Download writes media, info json and subtitles into folder using baseName.
	// An empty quality uses the retriever's default format selector.
	Download(ctx context.Context, id string, info *Info, folder, baseName, quality string) (*Files, error)
}

var mediaExts = map[string]bool{
	".mp4": true, ".webm": true, ".mkv": true, ".mov": true, ".m4a": true, ".mp3": true,
}

// YtDlp is a Retriever backed by the yt-dlp binary.
type YtDlp struct {
	binary   string
	quality  string
	subLangs string
	timeout  time.Duration
	run      cmdrun.Runner
}

// Option configures YtDlp.
type Option func(*YtDlp)

// WithCommandRunner replaces the process runner.
func WithCommandRunner(r cmdrun.Runner) Option {
	return func(y *YtDlp) {
		if r != nil {
			y.run = r
		}
	}
}

// WithSubtitleLangs sets the --sub-langs selector.
func WithSubtitleLangs(langs string) Option {
	return func(y *YtDlp) { y.subLangs = langs }
}

// NewYtDlp creates a yt-dlp retriever. An empty binary means "yt-dlp" on PATH.
func NewYtDlp(binary, quality string, timeout time.Duration, opts ...Option) *YtDlp {
	if binary == "" {
		binary = "yt-dlp"
	}
	if quality == "" {
		quality = "best"
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	y := &YtDlp{
		binary:   binary,
		quality:  quality,
		subLangs: "en.*,en",
		timeout:  timeout,
		run:      cmdrun.Exec,
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

// Probe runs yt-dlp in metadata-only mode.
func (y *YtDlp) Probe(ctx context.Context, id string) (*Info, error) {
	ctx, cancel := context.WithTimeout(ctx, y.timeout)
	defer cancel()

	out, err := y.run(ctx, y.binary,
		"--dump-single-json", "--skip-download", "--no-playlist", "--no-warnings", id)
	if err != nil {
		return nil, classify(id, ctxErr(ctx, err), out.Stderr)
	}

	var info Info
	if err := json.Unmarshal(out.Stdout, &info); err != nil {
		return nil, &domain.RetrievalError{Identifier: id, Reason: domain.ReasonOther, Err: fmt.Errorf("decode info: %w", err)}
	}
	if info.WebpageURL == "" {
		info.WebpageURL = id
	}
	return &info, nil
}

// Download fetches media and sidecar files into folder.
func (y *YtDlp) Download(ctx context.Context, id string, info *Info, folder, baseName, quality string) (*Files, error) {
	ctx, cancel := context.WithTimeout(ctx, y.timeout)
	defer cancel()

	if quality == "" {
		quality = y.quality
	}
	start := time.Now()
	args := []string{
		"--no-playlist", "--no-warnings", "--no-progress",
		"-f", quality,
		"-o", filepath.Join(folder, baseName+".%(ext)s"),
		"--write-info-json",
		"--write-subs", "--write-auto-subs", "--sub-format", "vtt", "--sub-langs", y.subLangs,
		id,
	}
	out, err := y.run(ctx, y.binary, args...)
	if err != nil {
		return nil, classify(id, ctxErr(ctx, err), out.Stderr)
	}

	files, err := collectFiles(folder, baseName, info)
	if err != nil {
		return nil, &domain.RetrievalError{Identifier: id, Reason: domain.ReasonOther, Err: err}
	}
	logger.With(logger.Fields{"subtitles": len(files.Subtitles)}).
		WithDuration(start).
		Debug(ctx, "yt-dlp download finished: media=%s", filepath.Base(files.Media))
	return files, nil
}

// ReadSubtitle returns the first non-empty transcript from the preference-ordered files.
func ReadSubtitle(paths []string) (string, error) {
	var firstErr error
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if text := ParseVTT(string(data)); text != "" {
			return text, nil
		}
	}
	return "", firstErr
}

func collectFiles(folder, baseName string, info *Info) (*Files, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("list download folder: %w", err)
	}

	files := &Files{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), baseName+".") {
			continue
		}
		name := e.Name()
		path := filepath.Join(folder, name)
		switch {
		case strings.HasSuffix(name, ".info.json"):
			files.InfoJSON = path
		case strings.HasSuffix(name, ".vtt"):
			files.Subtitles = append(files.Subtitles, path)
		case mediaExts[strings.ToLower(filepath.Ext(name))] && !strings.HasSuffix(name, ".part"):
			if files.Media == "" {
				files.Media = path
			}
		}
	}
	if files.Media == "" {
		return nil, errors.New("yt-dlp produced no media file")
	}

	sort.SliceStable(files.Subtitles, func(i, j int) bool {
		return subtitleRank(files.Subtitles[i], baseName, info) < subtitleRank(files.Subtitles[j], baseName, info)
	})
	return files, nil
}

// subtitleRank orders automatic captions before uploaded subtitles.
func subtitleRank(path, baseName string, info *Info) int {
	lang := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), baseName+"."), ".vtt")
	if info != nil && info.hasAutoVTT(lang) {
		return 0
	}
	return 1
}

func ctxErr(ctx context.Context, err error) error {
	if ctxe := ctx.Err(); ctxe != nil && !errors.Is(err, ctxe) {
		return fmt.Errorf("%w: %v", ctxe, err)
	}
	return err
}
