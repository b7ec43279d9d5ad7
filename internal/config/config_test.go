package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/follower-tracker/internal/browser"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, string(browser.ModeLocal), cfg.Browser.Mode)
	assert.Equal(t, 30*time.Second, cfg.Browser.NavTimeout)
	assert.Equal(t, 3, cfg.Browser.ContentRetries)
	assert.Equal(t, 2*time.Second, cfg.Browser.ContentBackoff)
	assert.Equal(t, 10*time.Second, cfg.Browser.ContentWaitTimeout)
	assert.Equal(t, browser.DefaultContentMarkers, cfg.Browser.ContentMarkers)
	assert.Equal(t, 1366, cfg.Browser.ViewportWidth)
	assert.Equal(t, 768, cfg.Browser.ViewportHeight)
	assert.Equal(t, 2*time.Second, cfg.Batch.Delay)
	assert.Equal(t, StorageMemory, cfg.Storage.Backend)
	assert.Empty(t, cfg.Database.DSN)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "follower-tracker", cfg.Telemetry.ServiceName)
	assert.InDelta(t, 1.0, cfg.Telemetry.SampleRatio, 1e-9)
	assert.True(t, cfg.Progress.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Progress.MaxBatchWait)
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
logging:
  development: false
browser:
  mode: restricted
  remote_url: ws://chrome:9222
  nav_timeout: 45s
  content_retries: 5
  content_backoff: 500ms
batch:
  delay: 3s
  queue_depth: 4
ratelimit:
  enabled: true
  interval: 10s
  burst: 2
storage:
  backend: gcs
  bucket: snapshots-bucket
  prefix: drift
database:
  dsn: postgres://tracker@localhost/tracker
  max_conns: 8
  max_conn_lifetime: 1h
pubsub:
  project_id: proj
  topic_name: batches
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "secret", cfg.Auth.APIKey)
	assert.False(t, cfg.Logging.Development)
	assert.Equal(t, "restricted", cfg.Browser.Mode)
	assert.Equal(t, "ws://chrome:9222", cfg.Browser.RemoteURL)
	assert.Equal(t, 45*time.Second, cfg.Browser.NavTimeout)
	assert.Equal(t, 5, cfg.Browser.ContentRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Browser.ContentBackoff)
	assert.Equal(t, 3*time.Second, cfg.Batch.Delay)
	assert.Equal(t, 4, cfg.Batch.QueueDepth)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.Interval)
	assert.Equal(t, 2, cfg.RateLimit.Burst)
	assert.Equal(t, "snapshots-bucket", cfg.Storage.Bucket)
	assert.Equal(t, int32(8), cfg.Database.MaxConns)
	assert.Equal(t, time.Hour, cfg.Database.MaxConnLifetime)
	assert.Equal(t, "batches", cfg.PubSub.TopicName)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("TRACKER_BROWSER_MODE", "static")
	t.Setenv("TRACKER_BATCH_DELAY", "250ms")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "static", cfg.Browser.Mode)
	assert.Equal(t, 250*time.Millisecond, cfg.Batch.Delay)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Browser: BrowserConfig{Mode: "local", NavTimeout: time.Second, ContentRetries: 1},
		Batch:   BatchConfig{QueueDepth: 1},
		Storage: StorageConfig{Backend: StorageMemory},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "auth missing api key", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_key"},
		{name: "unknown browser mode", mutate: func(c *Config) { c.Browser.Mode = "firefox" }, want: "browser.mode"},
		{name: "zero nav timeout", mutate: func(c *Config) { c.Browser.NavTimeout = 0 }, want: "browser.nav_timeout"},
		{name: "zero retries", mutate: func(c *Config) { c.Browser.ContentRetries = 0 }, want: "browser.content_retries"},
		{name: "negative delay", mutate: func(c *Config) { c.Batch.Delay = -time.Second }, want: "batch.delay"},
		{name: "zero delay", mutate: func(c *Config) { c.Batch.Delay = 0 }, want: "batch.delay"},
		{name: "zero queue depth", mutate: func(c *Config) { c.Batch.QueueDepth = 0 }, want: "batch.queue_depth"},
		{
			name:   "rate limit without interval",
			mutate: func(c *Config) { c.RateLimit.Enabled = true },
			want:   "ratelimit.interval",
		},
		{name: "unknown storage backend", mutate: func(c *Config) { c.Storage.Backend = "s3" }, want: "storage.backend"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Storage.Backend = StorageGCS }, want: "storage.bucket"},
		{name: "local without dir", mutate: func(c *Config) { c.Storage.Backend = StorageLocal }, want: "storage.local.base_dir"},
		{
			name:   "pubsub without project",
			mutate: func(c *Config) { c.PubSub.TopicName = "batches" },
			want:   "pubsub.project_id",
		},
		{
			name:   "sample ratio above one",
			mutate: func(c *Config) { c.Telemetry.SampleRatio = 1.5 },
			want:   "telemetry.sample_ratio",
		},
		{
			name:   "negative progress buffer",
			mutate: func(c *Config) { c.Progress.BufferSize = -1 },
			want:   "progress.buffer_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
