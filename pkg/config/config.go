// Package config loads the service configuration from a YAML file with
// environment-variable fallbacks.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	// Server settings
	HTTPPort    int `yaml:"http_port"`
	MetricsPort int `yaml:"metrics_port"`

	// Store selects the persistence backend: "memory" or "redis".
	Store string `yaml:"store"`

	// Redis connection, shared by the redis store, the fanout publisher, and
	// the websocket gateway.
	Redis RedisConfig `yaml:"redis"`

	// Fanout settings
	Fanout FanoutConfig `yaml:"fanout"`

	// AI holds the generative capability settings.
	AI AIConfig `yaml:"ai"`

	// Janitor holds the idle-session sweeper settings.
	Janitor JanitorConfig `yaml:"janitor"`

	// LogLevel is the zerolog level name (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// FanoutConfig holds fanout settings.
type FanoutConfig struct {
	// Enabled turns real-time publication on. Requires Redis.
	Enabled bool `yaml:"enabled"`
	// ChannelPrefix namespaces the pub/sub channels.
	ChannelPrefix string `yaml:"channel_prefix"`
}

// AIConfig holds the generative capability settings.
type AIConfig struct {
	Enabled           bool          `yaml:"enabled"`
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

// JanitorConfig holds the idle-session sweeper settings.
type JanitorConfig struct {
	Enabled bool `yaml:"enabled"`
	// Schedule is a cron expression (default "@every 10m").
	Schedule string `yaml:"schedule"`
	// IdleAfter is how long a session may sit untouched before it is closed.
	IdleAfter time.Duration `yaml:"idle_after"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		HTTPPort:    8080,
		MetricsPort: 9090,
		Store:       "memory",
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Fanout: FanoutConfig{
			Enabled:       false,
			ChannelPrefix: "supportflow:chat:",
		},
		AI: AIConfig{
			Enabled:           false,
			Model:             "gpt-4o-mini",
			Timeout:           10 * time.Second,
			RequestsPerMinute: 60,
		},
		Janitor: JanitorConfig{
			Enabled:   true,
			Schedule:  "@every 10m",
			IdleAfter: 24 * time.Hour,
		},
		LogLevel: "info",
	}
}

// Load reads configuration from a YAML file, applies defaults, and fills API
// credentials from the environment when the file leaves them blank. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return applyEnv(cfg), nil
			}
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	return applyEnv(cfg), nil
}

func applyEnv(cfg *Config) *Config {
	if cfg.AI.APIKey == "" {
		cfg.AI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pass := os.Getenv("REDIS_PASSWORD"); pass != "" {
		cfg.Redis.Password = pass
	}
	return cfg
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store)
	}
	if c.Store == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("redis store requires redis.addr")
	}
	if c.Fanout.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("fanout requires redis.addr")
	}
	if c.Janitor.Enabled && c.Janitor.IdleAfter <= 0 {
		return fmt.Errorf("janitor.idle_after must be positive")
	}
	return nil
}
