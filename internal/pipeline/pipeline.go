// Package pipeline performs one ingestion attempt for a single identifier.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/timmy/vidledger/internal/comments"
	"github.com/timmy/vidledger/internal/domain"
	"github.com/timmy/vidledger/internal/fsutil"
	"github.com/timmy/vidledger/internal/logger"
	"github.com/timmy/vidledger/internal/retrieval"
	"github.com/timmy/vidledger/internal/textutil"
	"github.com/timmy/vidledger/internal/transcribe"
)

// MetadataFile is written into every item folder.
const MetadataFile = "metadata.json"

// CommentFetcher lists comments for a video.
type CommentFetcher interface {
	Fetch(ctx context.Context, videoID, token string, max int) ([]domain.CommentRecord, error)
}

// Archiver copies a finished item folder to remote storage.
type Archiver interface {
	ArchiveFolder(ctx context.Context, folder, key string) (string, error)
}

// Outcome is the result of a successful attempt.
// Warnings holds non-fatal step failures; the record is still complete.
type Outcome struct {
	Record       *domain.VideoRecord
	Warnings     []error
	TokenExpired bool
}

// Degraded reports whether any optional step failed.
func (o *Outcome) Degraded() bool {
	return len(o.Warnings) > 0
}

// Pipeline wires the per-item collaborators.
type Pipeline struct {
	retriever   retrieval.Retriever
	transcriber transcribe.Transcriber
	comments    CommentFetcher
	archiver    Archiver
	now         func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTranscriber enables model transcription.
func WithTranscriber(t transcribe.Transcriber) Option {
	return func(p *Pipeline) { p.transcriber = t }
}

// WithComments enables comment extraction.
func WithComments(c CommentFetcher) Option {
	return func(p *Pipeline) { p.comments = c }
}

// WithArchiver enables remote archival of item folders.
func WithArchiver(a Archiver) Option {
	return func(p *Pipeline) { p.archiver = a }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline around a retriever.
func New(r retrieval.Retriever, opts ...Option) *Pipeline {
	p := &Pipeline{retriever: r, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs one attempt for id.
// Parameters:
//   - ctx: context for cancellation.
//   - id: identifier to ingest.
//   - token: active credential, or nil for video-only mode.
//   - cfg: run configuration.
//
// Returns:
//   - *Outcome: the assembled record plus warnings.
//   - error: *domain.RetrievalError, *domain.StorageError or a validation error.
func (p *Pipeline) Process(ctx context.Context, id string, token *domain.Token, cfg domain.BatchConfig) (*Outcome, error) {
	start := time.Now()
	out := &Outcome{}

	info, err := p.retriever.Probe(logger.SetStage(ctx, "probe"), id)
	if err != nil {
		return nil, err
	}

	videoID := info.ID
	if videoID == "" {
		videoID = comments.VideoID(id)
	}
	folderName := textutil.FolderName(info.DisplayTitle(), videoID)
	folder := filepath.Join(cfg.OutputDir, folderName)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, &domain.StorageError{Op: "create item folder", Path: folder, Err: err}
	}

	baseName := videoID
	if baseName == "" {
		baseName = "video"
	}
	files, err := p.retriever.Download(logger.SetStage(ctx, "download"), id, info, folder, baseName, cfg.Quality)
	if err != nil {
		return nil, err
	}

	rec := &domain.VideoRecord{
		URL:             id,
		VideoID:         videoID,
		Title:           info.DisplayTitle(),
		Description:     info.Description,
		Uploader:        info.UploaderHandle(),
		UploaderID:      info.UploaderID,
		Hashtags:        info.Hashtags(),
		ViewCount:       info.ViewCount,
		LikeCount:       info.LikeCount,
		CommentCount:    info.CommentCount,
		ShareCount:      info.ShareCount,
		RepostCount:     info.RepostCount,
		DurationSeconds: info.Duration,
		UploadedAt:      info.UploadedAt(),
		Comments:        []domain.CommentRecord{},
		StorageFolder:   folder,
		MediaFile:       filepath.Base(files.Media),
	}

	if text, err := retrieval.ReadSubtitle(files.Subtitles); err != nil {
		logger.CtxWarn(ctx, "Subtitle track unreadable: error=%v", err)
	} else {
		rec.SubtitleTranscript = text
	}

	if cfg.Transcribe && p.transcriber != nil {
		p.transcribe(logger.SetStage(ctx, "transcribe"), id, files.Media, rec, out)
	}

	if token.Usable() && cfg.MaxComments > 0 && p.comments != nil {
		p.fetchComments(logger.SetStage(ctx, "comments"), videoID, token, cfg.MaxComments, rec, out)
	}

	rec.IngestedAt = p.now().UTC()
	if err := fsutil.WriteJSONAtomic(filepath.Join(folder, MetadataFile), rec); err != nil {
		return nil, &domain.StorageError{Op: "write item metadata", Path: folder, Err: err}
	}

	if p.archiver != nil {
		key := videoID
		if key == "" {
			key = folderName
		}
		if url, err := p.archiver.ArchiveFolder(logger.SetStage(ctx, "archive"), folder, key); err != nil {
			logger.CtxWarn(ctx, "Archival failed, keeping local folder: folder=%s, error=%v", folder, err)
		} else {
			rec.StorageFolder = url
		}
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	out.Record = rec

	logger.With(logger.Fields{
		"comments":   len(rec.Comments),
		"subtitles":  rec.SubtitleTranscript != "",
		"transcript": rec.ModelTranscript != "",
		"warnings":   len(out.Warnings),
	}).WithDuration(start).Info(ctx, "Item processed: title=%q", rec.Title)
	return out, nil
}

func (p *Pipeline) transcribe(ctx context.Context, id, media string, rec *domain.VideoRecord, out *Outcome) {
	text, err := p.transcriber.Transcribe(ctx, media)
	if err != nil {
		werr := &domain.TranscriptionError{Identifier: id, Err: err}
		out.Warnings = append(out.Warnings, werr)
		logger.CtxWarn(ctx, "Transcription failed: backend=%s, error=%v", p.transcriber.Name(), err)
		return
	}
	now := p.now().UTC()
	rec.ModelTranscript = text
	rec.TranscriptionTimestamp = &now
}

func (p *Pipeline) fetchComments(ctx context.Context, videoID string, token *domain.Token, max int, rec *domain.VideoRecord, out *Outcome) {
	list, err := p.comments.Fetch(ctx, videoID, token.Value, max)
	if err != nil {
		out.Warnings = append(out.Warnings, fmt.Errorf("comments: %w", err))
		if domain.IsAuth(err) {
			out.TokenExpired = true
			logger.CtxWarn(ctx, "Comment extraction rejected, token likely expired: token=%s, error=%v", token.Masked(), err)
		} else {
			logger.CtxWarn(ctx, "Comment extraction failed: error=%v", err)
		}
		return
	}
	rec.Comments = list
	rec.CommentsExtracted = true
}
