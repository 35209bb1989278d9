package storage

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/timmy/vidledger/internal/logger"
)

// Archiver copies a finished item folder into object storage.
type Archiver struct {
	store       ObjectStorage
	prefix      string
	removeLocal bool
}

// NewArchiver creates an Archiver writing under prefix.
func NewArchiver(store ObjectStorage, prefix string, removeLocal bool) *Archiver {
	return &Archiver{store: store, prefix: strings.Trim(prefix, "/"), removeLocal: removeLocal}
}

// ArchiveFolder uploads every regular file in folder to <prefix>/<key>/<name>
// and returns the public URL of that key. On a partial failure the objects
// uploaded so far are deleted and the local folder is left untouched.
func (a *Archiver) ArchiveFolder(ctx context.Context, folder, key string) (string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return "", fmt.Errorf("list folder: %w", err)
	}
	base := path.Join(a.prefix, key)

	var uploaded []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		objectKey := path.Join(base, e.Name())
		if err := a.uploadFile(ctx, filepath.Join(folder, e.Name()), objectKey); err != nil {
			a.rollback(ctx, uploaded)
			return "", err
		}
		uploaded = append(uploaded, objectKey)
	}

	logger.With(logger.Fields{logger.FieldCount: len(uploaded)}).
		Debug(ctx, "Archived folder: folder=%s, key=%s", folder, base)

	if a.removeLocal {
		if err := os.RemoveAll(folder); err != nil {
			logger.CtxWarn(ctx, "Failed to remove archived folder: folder=%s, error=%v", folder, err)
		}
	}
	return a.store.GetURL(base), nil
}

func (a *Archiver) uploadFile(ctx context.Context, filePath, key string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", filePath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", filePath, err)
	}
	return a.store.Upload(ctx, key, f, info.Size(), contentTypeFor(filePath))
}

var mediaTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
	".m4a":  "audio/mp4",
	".mp3":  "audio/mpeg",
	".vtt":  "text/vtt",
	".json": "application/json",
}

func contentTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := mediaTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (a *Archiver) rollback(ctx context.Context, keys []string) {
	for _, k := range keys {
		if err := a.store.Delete(ctx, k); err != nil {
			logger.CtxWarn(ctx, "Failed to roll back archived object: key=%s, error=%v", k, err)
		}
	}
}
