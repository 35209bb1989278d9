// Package transcribe converts downloaded media into text.
package transcribe

import (
	"context"
	"strings"
)

// Transcriber produces a transcript for a local media file.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaPath string) (string, error)
	// Name identifies the backend in logs.
	Name() string
}

// normalize joins transcript lines into one paragraph.
func normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
