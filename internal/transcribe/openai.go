package transcribe

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// OpenAIConfig configures the HTTP transcription backend.
type OpenAIConfig struct {
	BaseURL  string
	APIKey   string
	Model    string
	Language string
	Timeout  time.Duration
}

// OpenAI calls an OpenAI-compatible /audio/transcriptions endpoint.
type OpenAI struct {
	client   *resty.Client
	endpoint string
	model    string
	language string
}

type transcriptionResponse struct {
	Text  string `json:"text"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewOpenAI creates an HTTP transcriber.
// Parameters:
//   - cfg: endpoint, credentials and model.
//
// Returns:
//   - *OpenAI: initialized client.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	client := resty.New()
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	client.SetTimeout(timeout)

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" || model == "base" {
		model = "whisper-1"
	}
	return &OpenAI{
		client:   client,
		endpoint: baseURL + "/audio/transcriptions",
		model:    model,
		language: cfg.Language,
	}
}

// Name returns the backend label.
func (o *OpenAI) Name() string { return "openai:" + o.model }

// Transcribe uploads the media file and returns the transcript text.
func (o *OpenAI) Transcribe(ctx context.Context, mediaPath string) (string, error) {
	form := map[string]string{
		"model":           o.model,
		"response_format": "json",
	}
	if o.language != "" {
		form["language"] = o.language
	}

	var resp transcriptionResponse
	httpResp, err := o.client.R().
		SetContext(ctx).
		SetFile("file", mediaPath).
		SetFormData(form).
		SetResult(&resp).
		SetError(&resp).
		Post(o.endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to call transcription API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		msg := string(httpResp.Body())
		if resp.Error != nil {
			msg = resp.Error.Message
		}
		return "", fmt.Errorf("transcription API returned HTTP %d for %s: %s", httpResp.StatusCode(), filepath.Base(mediaPath), msg)
	}
	return normalize(resp.Text), nil
}
