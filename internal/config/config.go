// Package config loads and validates tracker configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/follower-tracker/internal/browser"
)

// Storage backends for page snapshots.
const (
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Batch     BatchConfig     `mapstructure:"batch"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Progress  ProgressConfig  `mapstructure:"progress"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// BrowserConfig configures page sessions and page classification.
type BrowserConfig struct {
	Mode               string        `mapstructure:"mode"`
	ExecPath           string        `mapstructure:"exec_path"`
	RemoteURL          string        `mapstructure:"remote_url"`
	UserAgent          string        `mapstructure:"user_agent"`
	NavTimeout         time.Duration `mapstructure:"nav_timeout"`
	ContentRetries     int           `mapstructure:"content_retries"`
	ContentBackoff     time.Duration `mapstructure:"content_backoff"`
	ContentWaitTimeout time.Duration `mapstructure:"content_wait_timeout"`
	ContentMarkers     string        `mapstructure:"content_markers"`
	ViewportWidth      int           `mapstructure:"viewport_width"`
	ViewportHeight     int           `mapstructure:"viewport_height"`
	LoginPath          string        `mapstructure:"login_path"`
}

// BatchConfig paces refresh batches.
type BatchConfig struct {
	Delay      time.Duration `mapstructure:"delay"`
	QueueDepth int           `mapstructure:"queue_depth"`
}

// RateLimitConfig throttles page loads per host.
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Burst    int           `mapstructure:"burst"`
}

// StorageConfig selects where failed-extraction snapshots go.
type StorageConfig struct {
	Backend string             `mapstructure:"backend"`
	Bucket  string             `mapstructure:"bucket"`
	Prefix  string             `mapstructure:"prefix"`
	Local   LocalStorageConfig `mapstructure:"local"`
}

// LocalStorageConfig configures the filesystem snapshot backend.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// DatabaseConfig controls access to Postgres. An empty DSN keeps profiles in memory.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// PubSubConfig holds metadata for batch completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// TelemetryConfig controls OpenTelemetry tracing. Spans are exported to Cloud
// Trace only when ProjectID is set.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	ProjectID   string  `mapstructure:"project_id"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// ProgressConfig controls live job progress events.
type ProgressConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	LogEvents    bool          `mapstructure:"log_events"`
	BufferSize   int           `mapstructure:"buffer_size"`
	MaxBatchWait time.Duration `mapstructure:"max_batch_wait"`
}

// Load builds a Config from disk/environment. Environment variables use the
// TRACKER_ prefix with dots replaced by underscores (TRACKER_BROWSER_MODE).
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("browser.mode", string(browser.ModeLocal))
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.user_agent", browser.DefaultUserAgent)
	v.SetDefault("browser.nav_timeout", browser.DefaultNavigationTimeout)
	v.SetDefault("browser.content_retries", browser.DefaultContentRetries)
	v.SetDefault("browser.content_backoff", browser.DefaultContentBackoff)
	v.SetDefault("browser.content_wait_timeout", browser.DefaultContentWaitTimeout)
	v.SetDefault("browser.content_markers", browser.DefaultContentMarkers)
	v.SetDefault("browser.viewport_width", browser.DefaultViewportWidth)
	v.SetDefault("browser.viewport_height", browser.DefaultViewportHeight)
	v.SetDefault("browser.login_path", "/accounts/login")
	v.SetDefault("batch.delay", "2s")
	v.SetDefault("batch.queue_depth", 16)
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.interval", "2s")
	v.SetDefault("ratelimit.burst", 1)
	v.SetDefault("storage.backend", StorageMemory)
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.prefix", "snapshots")
	v.SetDefault("storage.local.base_dir", "data/snapshots")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "follower-tracker")
	v.SetDefault("telemetry.project_id", "")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.log_events", false)
	v.SetDefault("progress.buffer_size", 256)
	v.SetDefault("progress.max_batch_wait", "250ms")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if _, err := browser.ParseMode(c.Browser.Mode); err != nil {
		return fmt.Errorf("browser.mode: %w", err)
	}
	if c.Browser.NavTimeout <= 0 {
		return fmt.Errorf("browser.nav_timeout must be > 0")
	}
	if c.Browser.ContentRetries <= 0 {
		return fmt.Errorf("browser.content_retries must be > 0")
	}
	if c.Batch.Delay <= 0 {
		return fmt.Errorf("batch.delay must be > 0")
	}
	if c.Batch.QueueDepth <= 0 {
		return fmt.Errorf("batch.queue_depth must be > 0")
	}
	if c.RateLimit.Enabled && c.RateLimit.Interval <= 0 {
		return fmt.Errorf("ratelimit.interval must be > 0 when rate limiting is enabled")
	}
	switch c.Storage.Backend {
	case StorageMemory:
	case StorageLocal:
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir must be set for the local backend")
		}
	case StorageGCS:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, local, gcs (got %q)", c.Storage.Backend)
	}
	if c.Database.MinConns < 0 || (c.Database.MaxConns > 0 && c.Database.MinConns > c.Database.MaxConns) {
		return fmt.Errorf("database.min_conns must be between 0 and database.max_conns")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	if c.Progress.BufferSize < 0 || c.Progress.MaxBatchWait < 0 {
		return fmt.Errorf("progress.buffer_size and progress.max_batch_wait must be >= 0")
	}
	return nil
}
