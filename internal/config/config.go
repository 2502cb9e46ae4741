// Package config provides configuration for jurywatch.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up in the working directory when no path is given.
const DefaultConfigFile = "jurywatch.yaml"

// Config holds the jurywatch configuration.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Session  SessionConfig  `yaml:"session"`
	NATS     NATSConfig     `yaml:"nats"`
	Log      LogConfig      `yaml:"log"`
}

// APIConfig locates the pipeline backend.
type APIConfig struct {
	BaseURL      string        `yaml:"base_url"`
	StreamPath   string        `yaml:"stream_path"`
	ResultsPath  string        `yaml:"results_path"`
	FinalizePath string        `yaml:"finalize_path"`
	CorePath     string        `yaml:"core_path"`
	// Timeout bounds non-streaming calls. The stream itself is bounded only
	// by the session context.
	Timeout time.Duration `yaml:"timeout"`
}

// DatabaseConfig configures the local SQLite store.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// ServerConfig configures the trace view server.
type ServerConfig struct {
	HTTPPort     int           `yaml:"http_port"`
	PingInterval time.Duration `yaml:"ws_ping_interval"`
	WriteTimeout time.Duration `yaml:"ws_write_timeout"`
}

// SessionConfig tunes session pacing.
type SessionConfig struct {
	CatchupInterval   time.Duration `yaml:"catchup_interval"`
	PollFallbackDelay time.Duration `yaml:"poll_fallback_delay"`
	// StrictAgents drops thoughts whose agent only resolved by default.
	StrictAgents bool `yaml:"strict_agents"`
}

// NATSConfig configures the optional update sink. Empty URL disables it.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:      "http://localhost:8000",
			StreamPath:   "/stream/pipeline",
			ResultsPath:  "/results",
			FinalizePath: "/run/autofix",
			CorePath:     "/run/core",
			Timeout:      30 * time.Second,
		},
		Database: DatabaseConfig{
			URL: "file:jurywatch.db?cache=shared&mode=rwc",
		},
		Server: ServerConfig{
			HTTPPort:     8080,
			PingInterval: 30 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Session: SessionConfig{
			CatchupInterval:   800 * time.Millisecond,
			PollFallbackDelay: 5 * time.Second,
		},
		NATS: NATSConfig{
			SubjectPrefix: "jurywatch.trace",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file, then
// environment variables. An empty path falls back to DefaultConfigFile if
// it exists.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration as YAML.
func (c *Config) SaveToFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	} else if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("api.base_url %q is not an absolute URL", c.API.BaseURL))
	}
	for name, p := range map[string]string{
		"api.stream_path":   c.API.StreamPath,
		"api.results_path":  c.API.ResultsPath,
		"api.finalize_path": c.API.FinalizePath,
		"api.core_path":     c.API.CorePath,
	} {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("%s must start with /", name))
		}
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, errors.New("api.timeout must be positive"))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("server.http_port %d out of range", c.Server.HTTPPort))
	}
	if c.Session.CatchupInterval < 0 {
		errs = append(errs, errors.New("session.catchup_interval must not be negative"))
	}
	if c.Session.PollFallbackDelay < 0 {
		errs = append(errs, errors.New("session.poll_fallback_delay must not be negative"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}

	return errors.Join(errs...)
}
