package retrieval

import (
	"strings"
	"time"
)

// Track is one downloadable subtitle rendition listed in Info.
type Track struct {
	Ext string `json:"ext"`
	URL string `json:"url"`
}

// Info is the subset of the yt-dlp info document the pipeline consumes.
type Info struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	WebpageURL  string   `json:"webpage_url"`
	Uploader    string   `json:"uploader"`
	UploaderID  string   `json:"uploader_id"`
	Channel     string   `json:"channel"`
	Tags        []string `json:"tags"`

	Duration     float64 `json:"duration"`
	ViewCount    int64   `json:"view_count"`
	LikeCount    int64   `json:"like_count"`
	CommentCount int64   `json:"comment_count"`
	RepostCount  int64   `json:"repost_count"`
	ShareCount   int64   `json:"share_count"`

	UploadDate string  `json:"upload_date"`
	Timestamp  float64 `json:"timestamp"`

	AutomaticCaptions map[string][]Track `json:"automatic_captions"`
	Subtitles         map[string][]Track `json:"subtitles"`
}

// DisplayTitle returns a non-empty title for naming.
func (i *Info) DisplayTitle() string {
	if t := strings.TrimSpace(i.Title); t != "" {
		return t
	}
	if d := strings.TrimSpace(i.Description); d != "" {
		return d
	}
	return "Unknown"
}

// UploaderHandle prefers the uploader handle, then the channel name.
func (i *Info) UploaderHandle() string {
	if i.Uploader != "" {
		return i.Uploader
	}
	if i.Channel != "" {
		return i.Channel
	}
	return "Unknown"
}

// UploadedAt resolves the upload time from the unix timestamp or the YYYYMMDD date.
func (i *Info) UploadedAt() *time.Time {
	if i.Timestamp > 0 {
		t := time.Unix(int64(i.Timestamp), 0).UTC()
		return &t
	}
	if i.UploadDate != "" {
		if t, err := time.Parse("20060102", i.UploadDate); err == nil {
			return &t
		}
	}
	return nil
}

// Hashtags returns tags without a leading '#', empties removed.
func (i *Info) Hashtags() []string {
	out := make([]string, 0, len(i.Tags))
	for _, tag := range i.Tags {
		tag = strings.TrimSpace(strings.TrimPrefix(tag, "#"))
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

// hasAutoVTT reports whether lang is offered as an automatic caption in vtt.
func (i *Info) hasAutoVTT(lang string) bool {
	for _, tr := range i.AutomaticCaptions[lang] {
		if tr.Ext == "vtt" {
			return true
		}
	}
	return false
}
