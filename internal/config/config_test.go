package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "LOG_LEVEL", "HTTP_ADDR", "READ_TIMEOUT", "WRITE_TIMEOUT", "SHUTDOWN_TIMEOUT",
		"INPUT_FILE", "GTFS_PATH", "GTFS_URL", "ALLOW_UPDATES",
		"REDIS_ENABLED", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "CACHE_TTL", "CACHE_WARM_ON_START",
		"RATE_LIMIT_PER_WINDOW", "RATE_LIMIT_WINDOW", "RATE_LIMIT_WHITELIST",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.RedisEnabled)
	assert.True(t, cfg.CacheWarmOnStart)
	assert.Equal(t, 120, cfg.RateLimitPerWindow)
	assert.False(t, cfg.HasDataSource())
	assert.False(t, cfg.AllowUpdates)
}

func TestLoadEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("READ_TIMEOUT", "3s")
	t.Setenv("INPUT_FILE", "base.txt")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("RATE_LIMIT_WHITELIST", " 10.0.0.1, ,127.0.0.1 ")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, 3*time.Second, cfg.ReadTimeout)
	assert.Equal(t, "base.txt", cfg.InputFile)
	assert.True(t, cfg.RedisEnabled)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, []string{"10.0.0.1", "127.0.0.1"}, cfg.RateLimitWhitelist)
	assert.True(t, cfg.HasDataSource())
}

func TestLoadRejectsTwoSources(t *testing.T) {
	clearEnv(t)
	t.Setenv("INPUT_FILE", "base.txt")
	t.Setenv("GTFS_PATH", "feed.zip")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadFileOverlay(t *testing.T) {
	path := writeConfig(t, `
log_level: warn
server:
  addr: ":7000"
  write_timeout: 15s
data:
  gtfs_source: https://example.com/gtfs.zip
  allow_updates: true
redis:
  enabled: true
  warm_on_start: false
  cache_ttl: 1h
rate_limit:
  per_window: 10
  whitelist: ["192.168.1.1"]
`)
	clearEnv(t)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTP_ADDR", ":7100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
	assert.Equal(t, ":7100", cfg.HTTPAddr)
	assert.Equal(t, 15*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 10*time.Second, cfg.ReadTimeout)
	assert.Equal(t, "https://example.com/gtfs.zip", cfg.GTFSSource)
	assert.True(t, cfg.AllowUpdates)
	assert.True(t, cfg.RedisEnabled)
	assert.False(t, cfg.CacheWarmOnStart)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 10, cfg.RateLimitPerWindow)
	assert.Equal(t, []string{"192.168.1.1"}, cfg.RateLimitWhitelist)
}

func TestLoadFileValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown log level", "log_level: loud\n"},
		{"negative timeout", "server:\n  read_timeout: -1s\n"},
		{"redis db out of range", "redis:\n  db: 99\n"},
		{"bad whitelist entry", "rate_limit:\n  whitelist: [\"not-an-ip\"]\n"},
		{"two data sources", "data:\n  input_file: a.txt\n  gtfs_source: b.zip\n"},
		{"malformed yaml", "server: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yml"))

	_, err := Load()
	assert.Error(t, err)
}
