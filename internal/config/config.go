// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override, RAGDECK_* prefix)
//  2. Config file (~/.ragdeck/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Configuration categories:
//   - Backend: base URL of the Document/Chat API
//   - Chat: default model, retrieval result count, minimum relevance score
//   - State: local state directory for cached transcript and settings
//   - Logging: level, JSON output
//
// Validation uses sentinel errors for Go-idiomatic checking with errors.Is(),
// wrapped with context via fmt.Errorf("%w: details", ErrXxx).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidBaseURL indicates the backend base URL is missing or not http(s).
	ErrInvalidBaseURL = errors.New("invalid base URL")

	// ErrInvalidModelName indicates the model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidResultsCount indicates the retrieval result count is out of range.
	ErrInvalidResultsCount = errors.New("invalid results count")

	// ErrInvalidMinScore indicates the minimum relevance score is outside [0,1].
	ErrInvalidMinScore = errors.New("invalid minimum score")

	// ErrInvalidLogLevel indicates an unknown log level.
	ErrInvalidLogLevel = errors.New("invalid log level")
)

const (
	// DefaultBaseURL points at a locally running backend.
	DefaultBaseURL = "http://localhost:3000"

	// DefaultModel is the generation model requested per turn.
	DefaultModel = "gemini-2.5-flash"

	// DefaultResultsCount is how many chunks retrieval asks for.
	DefaultResultsCount = 10

	// MaxResultsCount bounds the retrieval request size.
	MaxResultsCount = 100

	// DefaultMinScore is the relevance floor applied to retrieval results.
	DefaultMinScore = 0.3
)

// Config stores application configuration.
type Config struct {
	// Backend
	BaseURL string `mapstructure:"base_url"`

	// Chat defaults (the chat store may override per session)
	Model        string  `mapstructure:"model"`
	ResultsCount int     `mapstructure:"results_count"`
	MinScore     float64 `mapstructure:"min_score"`
	Stream       bool    `mapstructure:"stream"`

	// State directory for cached transcript, settings and selection
	StateDir string `mapstructure:"state_dir"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`

	// configDir is where Save writes; set by Load.
	configDir string
}

// Load loads configuration from ~/.ragdeck.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	return LoadFrom(filepath.Join(home, ".ragdeck"))
}

// LoadFrom loads configuration with the given config directory. Used
// directly by tests; Load resolves the per-user directory.
func LoadFrom(configDir string) (*Config, error) {
	// Ensure directory exists (0750 permission)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	setDefaults(v, configDir)
	bindEnvVariables(v)

	// Configuration file not found is not an error; defaults apply.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_path", configDir, "config_name", "config.yaml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	cfg.configDir = configDir

	// Fail fast on invalid values.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("base_url", DefaultBaseURL)
	v.SetDefault("model", DefaultModel)
	v.SetDefault("results_count", DefaultResultsCount)
	v.SetDefault("min_score", DefaultMinScore)
	v.SetDefault("stream", true)
	v.SetDefault("state_dir", configDir)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// bindEnvVariables binds runtime overrides explicitly.
func bindEnvVariables(v *viper.Viper) {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail).
	// A panic here is a bug in this file, not a runtime condition.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("base_url", "RAGDECK_BASE_URL")
	mustBind("model", "RAGDECK_MODEL")
	mustBind("results_count", "RAGDECK_RESULTS_COUNT")
	mustBind("min_score", "RAGDECK_MIN_SCORE")
	mustBind("state_dir", "RAGDECK_STATE_DIR")
	mustBind("log_level", "RAGDECK_LOG_LEVEL")
	mustBind("log_json", "RAGDECK_LOG_JSON")
}

// Validate checks all configuration values, failing on the first
// violation with a wrapped sentinel error.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q (must be an http or https URL)", ErrInvalidBaseURL, c.BaseURL)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: model must not be empty", ErrInvalidModelName)
	}
	if c.ResultsCount < 1 || c.ResultsCount > MaxResultsCount {
		return fmt.Errorf("%w: %d (must be 1..%d)", ErrInvalidResultsCount, c.ResultsCount, MaxResultsCount)
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return fmt.Errorf("%w: %v (must be within [0,1])", ErrInvalidMinScore, c.MinScore)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel converts a config log level string to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, level)
	}
}

// Save writes the current configuration to config.yaml in the config
// directory it was loaded from.
func (c *Config) Save() error {
	if c == nil {
		return ErrConfigNil
	}
	if err := c.Validate(); err != nil {
		return err
	}

	v := viper.New()
	v.Set("base_url", c.BaseURL)
	v.Set("model", c.Model)
	v.Set("results_count", c.ResultsCount)
	v.Set("min_score", c.MinScore)
	v.Set("stream", c.Stream)
	v.Set("state_dir", c.StateDir)
	v.Set("log_level", c.LogLevel)
	v.Set("log_json", c.LogJSON)

	path := filepath.Join(c.configDir, "config.yaml")
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
