// Package config loads the memory service configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dhawansolanki/weavium-ai/internal/domain"
)

// Config holds the service configuration.
// Values come from defaults, an optional YAML file, then environment variables.
type Config struct {
	// Server settings
	HTTPPort int `mapstructure:"http_port"`

	// Database
	DatabasePath  string `mapstructure:"database_path"`
	BusyTimeoutMs int    `mapstructure:"busy_timeout_ms"`
	WriteRetries  int    `mapstructure:"write_retries"`
	RetryBaseMs   int    `mapstructure:"retry_base_ms"`

	// Behaviour
	RecentLimit int  `mapstructure:"recent_limit"`
	ReadOnly    bool `mapstructure:"read_only"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// keys lists every configuration key. Each is also read from the environment
// under its upper-cased name.
var keys = []string{
	"http_port",
	"database_path",
	"busy_timeout_ms",
	"write_retries",
	"retry_base_ms",
	"recent_limit",
	"read_only",
	"log_level",
	"log_format",
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		HTTPPort:      8080,
		DatabasePath:  "agent_memory.db",
		BusyTimeoutMs: 5000,
		WriteRetries:  5,
		RetryBaseMs:   10,
		RecentLimit:   domain.DefaultRecentLimit,
		ReadOnly:      false,
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

// Load reads configuration. An empty configPath searches the working
// directory for config.yaml and tolerates its absence; an explicit path must exist.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	d := Default()
	v.SetDefault("http_port", d.HTTPPort)
	v.SetDefault("database_path", d.DatabasePath)
	v.SetDefault("busy_timeout_ms", d.BusyTimeoutMs)
	v.SetDefault("write_retries", d.WriteRetries)
	v.SetDefault("retry_base_ms", d.RetryBaseMs)
	v.SetDefault("recent_limit", d.RecentLimit)
	v.SetDefault("read_only", d.ReadOnly)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.HTTPPort <= 0 || c.HTTPPort > 65535:
		return fmt.Errorf("%w: http_port %d out of range", domain.ErrInvalidArgument, c.HTTPPort)
	case strings.TrimSpace(c.DatabasePath) == "":
		return fmt.Errorf("%w: database_path is required", domain.ErrInvalidArgument)
	case c.BusyTimeoutMs < 0:
		return fmt.Errorf("%w: busy_timeout_ms must not be negative", domain.ErrInvalidArgument)
	case c.WriteRetries < 0:
		return fmt.Errorf("%w: write_retries must not be negative", domain.ErrInvalidArgument)
	case c.RetryBaseMs <= 0:
		return fmt.Errorf("%w: retry_base_ms must be positive", domain.ErrInvalidArgument)
	case c.RecentLimit <= 0:
		return fmt.Errorf("%w: recent_limit must be positive", domain.ErrInvalidArgument)
	}
	return nil
}

// BusyTimeout is how long SQLite waits on a locked database.
func (c *Config) BusyTimeout() time.Duration {
	return time.Duration(c.BusyTimeoutMs) * time.Millisecond
}

// RetryBase is the first backoff interval for busy write retries.
func (c *Config) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseMs) * time.Millisecond
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
