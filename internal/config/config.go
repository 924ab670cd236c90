// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/maauso/audiosplit-api/internal/status"
)

// Static errors for configuration validation.
var (
	// ErrInvalidMaxUpload is returned when MAX_UPLOAD_MB is not positive.
	ErrInvalidMaxUpload = errors.New("config: MAX_UPLOAD_MB must be positive")
	// ErrUnsupportedLanguage is returned when STATUS_LANG has no message catalog.
	ErrUnsupportedLanguage = errors.New("config: STATUS_LANG is not supported")
	// ErrInvalidPort is returned when PORT is outside 1-65535.
	ErrInvalidPort = errors.New("config: PORT must be between 1 and 65535")
	// ErrInvalidTimeout is returned when an HTTP or shutdown timeout is not positive.
	ErrInvalidTimeout = errors.New("config: timeouts must be positive")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port        int  `env:"PORT, default=8080" json:"port"`
	MaxUploadMB int  `env:"MAX_UPLOAD_MB, default=100" json:"max_upload_mb"`
	InlineJobs  bool `env:"INLINE_JOBS, default=false" json:"inline_jobs"` // POST /jobs waits for the result

	// ReadTimeout covers the whole upload; WriteTimeout must also cover an
	// inline split.
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT, default=2m" json:"read_timeout"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT, default=5m" json:"write_timeout"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT, default=2m" json:"shutdown_timeout"`

	// Engine settings
	TempDir     string `env:"TEMP_DIR, default=/tmp/audiosplit" json:"temp_dir"`
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`

	// Status settings
	StatusLang  string `env:"STATUS_LANG, default=en" json:"status_lang"`
	EventBuffer int    `env:"EVENT_BUFFER, default=500" json:"event_buffer"`
	HistorySize int    `env:"HISTORY_SIZE, default=100" json:"history_size"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3KeyPrefix        string `env:"S3_KEY_PREFIX, default=audiosplit" json:"s3_key_prefix"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// MaxUploadBytes returns MaxUploadMB in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	return load(envconfig.OsLookuper())
}

func load(l envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   cfg,
		Lookuper: l,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks semantic constraints envconfig cannot express.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if c.MaxUploadMB <= 0 {
		return ErrInvalidMaxUpload
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 || c.ShutdownTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if !status.Supported(c.StatusLang) {
		return fmt.Errorf("%w: %q", ErrUnsupportedLanguage, c.StatusLang)
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, MaxUploadMB: %d, InlineJobs: %t, ReadTimeout: %s, WriteTimeout: %s, ShutdownTimeout: %s, TempDir: %s, FFmpegPath: %s, FFprobePath: %s, StatusLang: %s, S3Bucket: %s, S3Region: %s, S3Endpoint: %s, S3KeyPrefix: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.MaxUploadMB,
		c.InlineJobs,
		c.ReadTimeout,
		c.WriteTimeout,
		c.ShutdownTimeout,
		c.TempDir,
		c.FFmpegPath,
		c.FFprobePath,
		c.StatusLang,
		c.S3Bucket,
		c.S3Region,
		c.S3Endpoint,
		c.S3KeyPrefix,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
