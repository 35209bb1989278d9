package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidRecord is returned when a record fails shape validation and must not be persisted.
var ErrInvalidRecord = errors.New("invalid video record")

// CommentRecord represents a single top-level comment attached to a video.
type CommentRecord struct {
	ID          string `json:"comment_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Text        string `json:"comment_text"`
	LikeCount   int64  `json:"like_count"`
	Timestamp   int64  `json:"timestamp"`
	ReplyCount  int64  `json:"reply_count,omitempty"`
}

// VideoRecord is the ingested unit stored in the master database.
// A record is either fully populated or absent; Validate guards the write path.
type VideoRecord struct {
	URL         string   `json:"url"`
	VideoID     string   `json:"video_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Uploader    string   `json:"uploader"`
	UploaderID  string   `json:"uploader_id,omitempty"`
	Hashtags    []string `json:"hashtags,omitempty"`

	ViewCount    int64 `json:"view_count"`
	LikeCount    int64 `json:"like_count"`
	CommentCount int64 `json:"comment_count"`
	ShareCount   int64 `json:"share_count"`
	RepostCount  int64 `json:"repost_count"`

	DurationSeconds float64    `json:"duration"`
	UploadedAt      *time.Time `json:"uploaded_at,omitempty"`

	SubtitleTranscript     string     `json:"subtitle_transcription"`
	ModelTranscript        string     `json:"custom_transcription"`
	TranscriptionTimestamp *time.Time `json:"transcription_timestamp,omitempty"`

	Comments          []CommentRecord `json:"top_comments"`
	CommentsExtracted bool            `json:"comments_extracted"`

	IngestedAt    time.Time `json:"downloaded_at"`
	StorageFolder string    `json:"folder"`
	MediaFile     string    `json:"media_file,omitempty"`
}

// Identifier returns the unique key of the record.
func (r *VideoRecord) Identifier() string {
	return strings.TrimSpace(r.URL)
}

// Validate checks that the record is complete enough to be persisted.
// Parameters: none.
// Returns:
//   - error: wraps ErrInvalidRecord describing the first violation, nil if valid.
func (r *VideoRecord) Validate() error {
	switch {
	case r == nil:
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	case r.Identifier() == "":
		return fmt.Errorf("%w: empty identifier", ErrInvalidRecord)
	case r.IngestedAt.IsZero():
		return fmt.Errorf("%w: %s: missing ingestion timestamp", ErrInvalidRecord, r.URL)
	case strings.TrimSpace(r.StorageFolder) == "":
		return fmt.Errorf("%w: %s: missing storage folder", ErrInvalidRecord, r.URL)
	case r.ViewCount < 0 || r.LikeCount < 0 || r.CommentCount < 0 || r.ShareCount < 0 || r.RepostCount < 0:
		return fmt.Errorf("%w: %s: negative engagement counter", ErrInvalidRecord, r.URL)
	case r.DurationSeconds < 0:
		return fmt.Errorf("%w: %s: negative duration", ErrInvalidRecord, r.URL)
	}
	for i, c := range r.Comments {
		if strings.TrimSpace(c.ID) == "" {
			return fmt.Errorf("%w: %s: comment %d has no id", ErrInvalidRecord, r.URL, i)
		}
	}
	return nil
}

// HasTranscript reports whether either transcript is present.
func (r *VideoRecord) HasTranscript() bool {
	return strings.TrimSpace(r.SubtitleTranscript) != "" || strings.TrimSpace(r.ModelTranscript) != ""
}

// Layouts accepted for stored timestamps. Records written by older tooling
// carry naive local times without an offset.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// UnmarshalJSON decodes a record, accepting naive, empty or numeric timestamps.
func (r *VideoRecord) UnmarshalJSON(data []byte) error {
	type plain VideoRecord
	aux := struct {
		*plain
		UploadedAt             json.RawMessage `json:"uploaded_at"`
		TranscriptionTimestamp json.RawMessage `json:"transcription_timestamp"`
		IngestedAt             json.RawMessage `json:"downloaded_at"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if r.UploadedAt, err = ParseTimestamp(aux.UploadedAt); err != nil {
		return fmt.Errorf("uploaded_at: %w", err)
	}
	if r.TranscriptionTimestamp, err = ParseTimestamp(aux.TranscriptionTimestamp); err != nil {
		return fmt.Errorf("transcription_timestamp: %w", err)
	}
	ingested, err := ParseTimestamp(aux.IngestedAt)
	if err != nil {
		return fmt.Errorf("downloaded_at: %w", err)
	}
	r.IngestedAt = time.Time{}
	if ingested != nil {
		r.IngestedAt = *ingested
	}
	return nil
}

// ParseTimestamp reads a JSON timestamp. Absent, null and empty values yield nil.
// Strings may be RFC 3339 or naive ISO 8601 (read as local time); numbers are unix seconds.
func ParseTimestamp(raw json.RawMessage) (*time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] != '"' {
		secs, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %s", raw)
		}
		if secs == 0 {
			return nil, nil
		}
		whole, frac := math.Modf(secs)
		t := time.Unix(int64(whole), int64(frac*float64(time.Second))).UTC()
		return &t, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised timestamp %q", s)
}
