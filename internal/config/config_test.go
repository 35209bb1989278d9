package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("ingest:\n  batch_size: 2\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TIKTOK_MS_TOKEN", "env-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Ingest.BatchSize != 2 {
		t.Errorf("batch size = %d, want 2", cfg.Ingest.BatchSize)
	}
	if cfg.Ingest.ItemDelay != 2*time.Second {
		t.Errorf("item delay = %v, want 2s", cfg.Ingest.ItemDelay)
	}
	if cfg.Comments.MaxComments != 10 {
		t.Errorf("max comments = %d, want 10", cfg.Comments.MaxComments)
	}
	if cfg.Paths.Master != "master2.json" || cfg.Paths.Journal != "download_progress.json" {
		t.Errorf("paths = %+v", cfg.Paths)
	}
	if cfg.Token.Value != "env-token" {
		t.Errorf("token value not bound from environment")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Ingest:        IngestConfig{BatchSize: 5, MaxAttempts: 3},
			Paths:         PathsConfig{Master: "m.json", Journal: "j.json"},
			Token:         TokenConfig{OnExpiry: "Prompt"},
			Transcription: TranscriptionConfig{Provider: "whisper"},
			Database:      DatabaseConfig{Enabled: true, Driver: "sqlite"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"zero batch", func(c *Config) { c.Ingest.BatchSize = 0 }, true},
		{"negative delay", func(c *Config) { c.Ingest.ItemDelay = -time.Second }, true},
		{"bad expiry policy", func(c *Config) { c.Token.OnExpiry = "panic" }, true},
		{"bad provider", func(c *Config) { c.Transcription.Provider = "vosk" }, true},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }, true},
		{"disabled db ignores driver", func(c *Config) { c.Database.Enabled = false; c.Database.Driver = "mysql" }, false},
		{"storage without bucket", func(c *Config) { c.Storage.Enabled = true }, true},
		{"negative comments", func(c *Config) { c.Comments.MaxComments = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNormalisesPolicy(t *testing.T) {
	c := Config{
		Ingest:        IngestConfig{BatchSize: 1, MaxAttempts: 1},
		Paths:         PathsConfig{Master: "m", Journal: "j"},
		Token:         TokenConfig{OnExpiry: " DEGRADE "},
		Transcription: TranscriptionConfig{Provider: "OpenAI"},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if c.Token.OnExpiry != "degrade" || c.Transcription.Provider != "openai" {
		t.Fatalf("not normalised: %q %q", c.Token.OnExpiry, c.Transcription.Provider)
	}
}
