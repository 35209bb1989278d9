package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Ingest        IngestConfig        `mapstructure:"ingest"`
	Paths         PathsConfig         `mapstructure:"paths"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	Transcription TranscriptionConfig `mapstructure:"transcription"`
	Comments      CommentsConfig      `mapstructure:"comments"`
	Token         TokenConfig         `mapstructure:"token"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Server        ServerConfig        `mapstructure:"server"`
}

type IngestConfig struct {
	BatchSize   int           `mapstructure:"batch_size"`
	ItemDelay   time.Duration `mapstructure:"item_delay"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryPause  time.Duration `mapstructure:"retry_pause"`
	RetryFailed bool          `mapstructure:"retry_failed"`
	URLFilter   string        `mapstructure:"url_filter"`
}

type PathsConfig struct {
	Input     string `mapstructure:"input"`
	OutputDir string `mapstructure:"output_dir"`
	Master    string `mapstructure:"master"`
	Journal   string `mapstructure:"journal"`
}

type RetrievalConfig struct {
	Binary  string        `mapstructure:"binary"`
	Quality string        `mapstructure:"quality"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TranscriptionConfig selects the speech-to-text backend.
// Provider is "whisper" (local CLI) or "openai" (HTTP endpoint).
type TranscriptionConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Provider string        `mapstructure:"provider"`
	Binary   string        `mapstructure:"binary"`
	Model    string        `mapstructure:"model"`
	Language string        `mapstructure:"language"`
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type CommentsConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	MaxComments int           `mapstructure:"max_comments"`
	PageSize    int           `mapstructure:"page_size"`
	Timeout     time.Duration `mapstructure:"timeout"`
	UserAgent   string        `mapstructure:"user_agent"`
}

type TokenConfig struct {
	EnvVar    string `mapstructure:"env_var"`
	MinLength int    `mapstructure:"min_length"`
	OnExpiry  string `mapstructure:"on_expiry"`
	Prompts   int    `mapstructure:"prompts"`
	// Value is populated from the environment only and never written back.
	Value string `mapstructure:"value"`
}

type StorageConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Type        string `mapstructure:"type"` // r2, s3, s3compatible
	Endpoint    string `mapstructure:"endpoint"`
	Region      string `mapstructure:"region"`
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
	UseSSL      bool   `mapstructure:"use_ssl"`
	Bucket      string `mapstructure:"bucket"`
	PublicURL   string `mapstructure:"public_url"`
	Prefix      string `mapstructure:"prefix"`
	RemoveLocal bool   `mapstructure:"remove_local"`
}

type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Driver  string `mapstructure:"driver"` // sqlite, postgres
	Path    string `mapstructure:"path"`
	DSN     string `mapstructure:"dsn"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ingest.batch_size", 5)
	v.SetDefault("ingest.item_delay", 2*time.Second)
	v.SetDefault("ingest.max_attempts", 3)
	v.SetDefault("ingest.retry_pause", 5*time.Second)
	v.SetDefault("ingest.retry_failed", false)
	v.SetDefault("ingest.url_filter", "")

	v.SetDefault("paths.input", "urls.txt")
	v.SetDefault("paths.output_dir", "downloads")
	v.SetDefault("paths.master", "master2.json")
	v.SetDefault("paths.journal", "download_progress.json")

	v.SetDefault("retrieval.binary", "yt-dlp")
	v.SetDefault("retrieval.quality", "best[height<=720]/best")
	v.SetDefault("retrieval.timeout", 5*time.Minute)

	v.SetDefault("transcription.enabled", true)
	v.SetDefault("transcription.provider", "whisper")
	v.SetDefault("transcription.binary", "whisper")
	v.SetDefault("transcription.model", "base")
	v.SetDefault("transcription.language", "en")
	v.SetDefault("transcription.base_url", "https://api.openai.com/v1")
	v.SetDefault("transcription.timeout", 10*time.Minute)

	v.SetDefault("comments.base_url", "https://www.tiktok.com")
	v.SetDefault("comments.max_comments", 10)
	v.SetDefault("comments.page_size", 20)
	v.SetDefault("comments.timeout", 30*time.Second)
	v.SetDefault("comments.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")

	v.SetDefault("token.env_var", "TIKTOK_MS_TOKEN")
	v.SetDefault("token.min_length", 50)
	v.SetDefault("token.on_expiry", "prompt")
	v.SetDefault("token.prompts", 3)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.prefix", "videos")
	v.SetDefault("storage.use_ssl", true)

	v.SetDefault("database.enabled", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/runs.db")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
}

// Load reads configuration from configPath (or ./configs/config.yaml, ./config.yaml),
// the process environment, and an optional .env file.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.BindEnv("token.value", v.GetString("token.env_var"))
	v.BindEnv("transcription.api_key", "OPENAI_API_KEY")
	v.BindEnv("transcription.base_url", "OPENAI_BASE_URL")
	v.BindEnv("storage.endpoint", "S3_ENDPOINT")
	v.BindEnv("storage.access_key", "S3_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "S3_SECRET_KEY")
	v.BindEnv("storage.bucket", "S3_BUCKET")
	v.BindEnv("storage.public_url", "S3_PUBLIC_URL")
	v.BindEnv("database.dsn", "DATABASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate normalises values and rejects combinations that cannot run.
func (c *Config) Validate() error {
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be positive, got %d", c.Ingest.BatchSize)
	}
	if c.Ingest.MaxAttempts <= 0 {
		return fmt.Errorf("ingest.max_attempts must be positive, got %d", c.Ingest.MaxAttempts)
	}
	if c.Ingest.ItemDelay < 0 || c.Ingest.RetryPause < 0 {
		return errors.New("ingest delays must not be negative")
	}
	if c.Comments.MaxComments < 0 {
		return fmt.Errorf("comments.max_comments must not be negative, got %d", c.Comments.MaxComments)
	}
	if strings.TrimSpace(c.Paths.Master) == "" || strings.TrimSpace(c.Paths.Journal) == "" {
		return errors.New("paths.master and paths.journal are required")
	}

	c.Token.OnExpiry = strings.ToLower(strings.TrimSpace(c.Token.OnExpiry))
	switch c.Token.OnExpiry {
	case "prompt", "degrade":
	default:
		return fmt.Errorf("token.on_expiry must be prompt or degrade, got %q", c.Token.OnExpiry)
	}

	c.Transcription.Provider = strings.ToLower(strings.TrimSpace(c.Transcription.Provider))
	switch c.Transcription.Provider {
	case "whisper", "openai":
	default:
		return fmt.Errorf("transcription.provider must be whisper or openai, got %q", c.Transcription.Provider)
	}

	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Enabled {
		switch c.Database.Driver {
		case "sqlite":
		case "postgres":
			if c.Database.DSN == "" {
				return errors.New("database.dsn is required for postgres")
			}
		default:
			return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
		}
	}

	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return errors.New("storage.bucket is required when storage is enabled")
	}
	return nil
}
