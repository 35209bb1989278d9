package storage

import (
	"context"
	"io"
)

// ObjectStorage is the subset of an object store used for media archival.
type ObjectStorage interface {
	// Upload stores size bytes from reader under key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// GetURL returns the public URL for key.
	GetURL(key string) string

	// Delete removes key.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
}
