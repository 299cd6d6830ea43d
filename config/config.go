// Package config loads the server configuration from a YAML file, layering
// it over built-in defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "15m" parse directly.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ServerConfig names the server as reported to clients.
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Workers int    `yaml:"workers"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level string `yaml:"level"`
}

// CacheConfig selects and tunes the cache backend.
type CacheConfig struct {
	// Backend is one of "memory", "sqlite", or "postgres".
	Backend    string   `yaml:"backend"`
	Path       string   `yaml:"path"`
	DSN        string   `yaml:"dsn"`
	DefaultTTL Duration `yaml:"default_ttl"`
}

// RetryConfig tunes the upstream retry policy.
type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
	Multiplier  float64  `yaml:"multiplier"`
	Jitter      bool     `yaml:"jitter"`
	Timeout     Duration `yaml:"timeout"`
}

// ProviderConfig points at the upstream data APIs.
type ProviderConfig struct {
	ErgastBaseURL     string   `yaml:"ergast_base_url"`
	OpenF1BaseURL     string   `yaml:"openf1_base_url"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	Burst             int      `yaml:"burst"`
	HTTPTimeout       Duration `yaml:"http_timeout"`
}

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Cache    CacheConfig    `yaml:"cache"`
	Retry    RetryConfig    `yaml:"retry"`
	Provider ProviderConfig `yaml:"provider"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Name:    "f1mcp-server",
			Version: "1.0.0",
			Workers: 1,
		},
		Log: LogConfig{
			Level: "info",
		},
		Cache: CacheConfig{
			Backend:    "memory",
			DefaultTTL: Duration(15 * time.Minute),
		},
		Retry: RetryConfig{
			MaxAttempts: 4,
			BaseDelay:   Duration(500 * time.Millisecond),
			Multiplier:  2.0,
			Jitter:      true,
			Timeout:     Duration(30 * time.Second),
		},
		Provider: ProviderConfig{
			ErgastBaseURL:     "https://ergast.com/api/f1",
			OpenF1BaseURL:     "https://api.openf1.org/v1",
			RequestsPerSecond: 4.0,
			Burst:             2,
			HTTPTimeout:       Duration(15 * time.Second),
		},
	}
}

// Load reads a YAML configuration file over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Cache.Backend {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "sqlite" && c.Cache.Path == "" {
		return fmt.Errorf("cache backend sqlite requires a path")
	}
	if c.Cache.Backend == "postgres" && c.Cache.DSN == "" {
		return fmt.Errorf("cache backend postgres requires a dsn")
	}
	if c.Server.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	return nil
}
