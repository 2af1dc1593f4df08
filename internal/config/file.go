package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FileConfig is the optional YAML configuration file. Zero values mean
// "not set" and leave the built-in default in place.
type FileConfig struct {
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	Server struct {
		Addr            string        `yaml:"addr"`
		ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gte=0"`
		WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gte=0"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
	} `yaml:"server"`

	Data struct {
		InputFile    string `yaml:"input_file"`
		GTFSSource   string `yaml:"gtfs_source" validate:"omitempty,excluded_with=InputFile"`
		AllowUpdates *bool  `yaml:"allow_updates"`
	} `yaml:"data"`

	Redis struct {
		Enabled     *bool         `yaml:"enabled"`
		Addr        string        `yaml:"addr"`
		Password    string        `yaml:"password"`
		DB          int           `yaml:"db" validate:"gte=0,lte=15"`
		CacheTTL    time.Duration `yaml:"cache_ttl" validate:"gte=0"`
		WarmOnStart *bool         `yaml:"warm_on_start"`
	} `yaml:"redis"`

	RateLimit struct {
		PerWindow int           `yaml:"per_window" validate:"gte=0"`
		Window    time.Duration `yaml:"window" validate:"gte=0"`
		Whitelist []string      `yaml:"whitelist" validate:"dive,ip"`
	} `yaml:"rate_limit"`
}

// LoadFile reads and validates a YAML configuration file
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if err := validator.New().Struct(fc); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return &fc, nil
}
