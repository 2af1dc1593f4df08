package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	LogLevel        slog.Level
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	InputFile    string
	GTFSSource   string
	AllowUpdates bool

	RedisEnabled     bool
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	CacheTTL         time.Duration
	CacheWarmOnStart bool

	RateLimitPerWindow int
	RateLimitWindow    time.Duration
	RateLimitWhitelist []string
}

// Load reads the configuration from the environment. When CONFIG_FILE names a
// YAML file, its values replace the built-in defaults; environment variables
// still take precedence over both.
func Load() (*Config, error) {
	fc := &FileConfig{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		var err error
		if fc, err = LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		LogLevel:        getLogLevelEnv("LOG_LEVEL", parseLogLevel(fc.LogLevel, slog.LevelInfo)),
		HTTPAddr:        getEnv("HTTP_ADDR", orString(fc.Server.Addr, ":8080")),
		ReadTimeout:     getDurationEnv("READ_TIMEOUT", orDuration(fc.Server.ReadTimeout, 10*time.Second)),
		WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", orDuration(fc.Server.WriteTimeout, 10*time.Second)),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", orDuration(fc.Server.ShutdownTimeout, 30*time.Second)),

		InputFile:    getEnv("INPUT_FILE", fc.Data.InputFile),
		GTFSSource:   getEnv("GTFS_PATH", getEnv("GTFS_URL", fc.Data.GTFSSource)),
		AllowUpdates: getBoolEnv("ALLOW_UPDATES", orBool(fc.Data.AllowUpdates, false)),

		RedisEnabled:     getBoolEnv("REDIS_ENABLED", orBool(fc.Redis.Enabled, false)),
		RedisAddr:        getEnv("REDIS_ADDR", orString(fc.Redis.Addr, "localhost:6379")),
		RedisPassword:    getEnv("REDIS_PASSWORD", fc.Redis.Password),
		RedisDB:          getIntEnv("REDIS_DB", fc.Redis.DB),
		CacheTTL:         getDurationEnv("CACHE_TTL", orDuration(fc.Redis.CacheTTL, 24*time.Hour)),
		CacheWarmOnStart: getBoolEnv("CACHE_WARM_ON_START", orBool(fc.Redis.WarmOnStart, true)),

		RateLimitPerWindow: getIntEnv("RATE_LIMIT_PER_WINDOW", orInt(fc.RateLimit.PerWindow, 120)),
		RateLimitWindow:    getDurationEnv("RATE_LIMIT_WINDOW", orDuration(fc.RateLimit.Window, time.Minute)),
		RateLimitWhitelist: getCSVEnv("RATE_LIMIT_WHITELIST"),
	}
	if cfg.RateLimitWhitelist == nil {
		cfg.RateLimitWhitelist = fc.RateLimit.Whitelist
	}

	if cfg.InputFile != "" && cfg.GTFSSource != "" {
		return nil, fmt.Errorf("INPUT_FILE and GTFS source are mutually exclusive")
	}

	return cfg, nil
}

// HasDataSource reports whether serve mode has something to load
func (c *Config) HasDataSource() bool {
	return c.InputFile != "" || c.GTFSSource != ""
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getLogLevelEnv(key string, defaultVal slog.Level) slog.Level {
	return parseLogLevel(os.Getenv(key), defaultVal)
}

func parseLogLevel(v string, defaultVal slog.Level) slog.Level {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultVal
	}
}

func getCSVEnv(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			result = append(result, t)
		}
	}
	return result
}

func orString(v, defaultVal string) string {
	if v != "" {
		return v
	}
	return defaultVal
}

func orInt(v, defaultVal int) int {
	if v != 0 {
		return v
	}
	return defaultVal
}

func orDuration(v, defaultVal time.Duration) time.Duration {
	if v != 0 {
		return v
	}
	return defaultVal
}

func orBool(v *bool, defaultVal bool) bool {
	if v != nil {
		return *v
	}
	return defaultVal
}
