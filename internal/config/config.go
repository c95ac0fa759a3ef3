// Package config handles configuration loading and management for fractal.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/fractal/internal/branching"
	"github.com/ShayCichocki/fractal/pkg/models"
)

// ProjectConfigName is the project-level override file searched upward from
// the working directory.
const ProjectConfigName = ".fractal.yaml"

var (
	// ErrInvalidConfig is returned by Validate.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrUnknownKey is returned for a dotted key that names no setting.
	ErrUnknownKey = errors.New("unknown configuration key")
)

// Config holds all configuration for fractal.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Stream    StreamConfig    `mapstructure:"stream"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	MaxTokens  int64  `mapstructure:"max_tokens"`
	BaseURL    string `mapstructure:"base_url"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// EngineConfig holds the tree shape and execution limits.
type EngineConfig struct {
	Depth           int    `mapstructure:"depth"`
	Width           int    `mapstructure:"width"`
	Policy          string `mapstructure:"policy"`
	Goal            string `mapstructure:"goal"`
	ForceDelegation bool   `mapstructure:"force_delegation"`
	// MaxAgents rejects trees larger than this. Zero disables the check.
	MaxAgents int `mapstructure:"max_agents"`
	// MaxConcurrentCalls bounds in-flight oracle calls. Zero is unbounded.
	MaxConcurrentCalls int `mapstructure:"max_concurrent_calls"`
	// RequestsPerSecond paces oracle calls. Zero disables pacing.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	// NodeTimeout bounds each oracle call. Zero disables the deadline.
	NodeTimeout  time.Duration `mapstructure:"node_timeout"`
	QuantumCount int           `mapstructure:"quantum_count"`

	Temperature          float64 `mapstructure:"temperature"`
	SynthesisTemperature float64 `mapstructure:"synthesis_temperature"`
	ReconcileTemperature float64 `mapstructure:"reconcile_temperature"`
}

// StorageConfig holds the run history database location.
type StorageConfig struct {
	// Path is the sqlite file. Empty uses the XDG data directory.
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// StreamConfig holds the Redis event stream settings.
type StreamConfig struct {
	// RedisAddr enables publishing live events when set.
	RedisAddr string `mapstructure:"redis_addr"`
	// MaxLen caps each stream's length (approximate trimming).
	MaxLen int64 `mapstructure:"max_len"`
}

// BranchingPolicy returns the configured branching policy, falling back to flat.
func (c EngineConfig) BranchingPolicy() branching.Policy {
	p, _ := branching.ParsePolicy(c.Policy)
	return p
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	e := c.Engine
	switch {
	case e.Depth < 1:
		return fmt.Errorf("%w: engine.depth must be at least 1, got %d", ErrInvalidConfig, e.Depth)
	case e.Width < 1:
		return fmt.Errorf("%w: engine.width must be at least 1, got %d", ErrInvalidConfig, e.Width)
	case e.MaxConcurrentCalls < 0:
		return fmt.Errorf("%w: engine.max_concurrent_calls must not be negative", ErrInvalidConfig)
	case e.RequestsPerSecond < 0:
		return fmt.Errorf("%w: engine.requests_per_second must not be negative", ErrInvalidConfig)
	case e.NodeTimeout < 0:
		return fmt.Errorf("%w: engine.node_timeout must not be negative", ErrInvalidConfig)
	case e.QuantumCount < 1:
		return fmt.Errorf("%w: engine.quantum_count must be at least 1, got %d", ErrInvalidConfig, e.QuantumCount)
	}
	if _, ok := branching.ParsePolicy(e.Policy); !ok {
		return fmt.Errorf("%w: unknown engine.policy %q", ErrInvalidConfig, e.Policy)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: logging.format must be console or json, got %q", ErrInvalidConfig, c.Logging.Format)
	}
	if c.Anthropic.UseBedrock && c.Anthropic.AWSRegion == "" {
		return fmt.Errorf("%w: anthropic.aws_region is required with use_bedrock", ErrInvalidConfig)
	}
	return nil
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, FRACTAL_ENGINE_DEPTH, ...)
// 2. Project config (.fractal.yaml in current directory or parent)
// 3. User config (~/.config/fractal/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific file on top of the
// defaults and environment.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FRACTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("anthropic.api_key", "FRACTAL_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.Storage.Path = expandEnv(cfg.Storage.Path)
	cfg.Logging.File = expandEnv(cfg.Logging.File)
	return cfg, nil
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	return SaveTo(cfg, GetUserConfigPath())
}

// SaveTo writes the configuration to path.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	for key, value := range Settings(cfg) {
		v.Set(key, value)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Settings flattens cfg into dotted keys, as accepted by `fractal config`.
func Settings(cfg *Config) map[string]any {
	return map[string]any{
		"anthropic.api_key":            cfg.Anthropic.APIKey,
		"anthropic.model":              cfg.Anthropic.Model,
		"anthropic.max_tokens":         cfg.Anthropic.MaxTokens,
		"anthropic.base_url":           cfg.Anthropic.BaseURL,
		"anthropic.use_bedrock":        cfg.Anthropic.UseBedrock,
		"anthropic.aws_region":         cfg.Anthropic.AWSRegion,
		"anthropic.aws_profile":        cfg.Anthropic.AWSProfile,
		"engine.depth":                 cfg.Engine.Depth,
		"engine.width":                 cfg.Engine.Width,
		"engine.policy":                cfg.Engine.Policy,
		"engine.goal":                  cfg.Engine.Goal,
		"engine.force_delegation":      cfg.Engine.ForceDelegation,
		"engine.max_agents":            cfg.Engine.MaxAgents,
		"engine.max_concurrent_calls":  cfg.Engine.MaxConcurrentCalls,
		"engine.requests_per_second":   cfg.Engine.RequestsPerSecond,
		"engine.node_timeout":          cfg.Engine.NodeTimeout.String(),
		"engine.quantum_count":         cfg.Engine.QuantumCount,
		"engine.temperature":           cfg.Engine.Temperature,
		"engine.synthesis_temperature": cfg.Engine.SynthesisTemperature,
		"engine.reconcile_temperature": cfg.Engine.ReconcileTemperature,
		"storage.path":                 cfg.Storage.Path,
		"logging.level":                cfg.Logging.Level,
		"logging.format":               cfg.Logging.Format,
		"logging.file":                 cfg.Logging.File,
		"telemetry.enabled":            cfg.Telemetry.Enabled,
		"telemetry.endpoint":           cfg.Telemetry.Endpoint,
		"telemetry.service_name":       cfg.Telemetry.ServiceName,
		"telemetry.insecure":           cfg.Telemetry.Insecure,
		"telemetry.sample_rate":        cfg.Telemetry.SampleRate,
		"stream.redis_addr":            cfg.Stream.RedisAddr,
		"stream.max_len":               cfg.Stream.MaxLen,
	}
}

// Get returns the value of a dotted key.
func Get(cfg *Config, key string) (any, error) {
	value, ok := Settings(cfg)[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return value, nil
}

// Set returns a copy of cfg with the dotted key set to value, converted to
// the key's type.
func Set(cfg *Config, key, value string) (*Config, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	settings := Settings(cfg)
	if _, ok := settings[key]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	v := viper.New()
	for k, val := range settings {
		v.Set(k, val)
	}
	v.Set(key, value)

	out := &Config{}
	if err := v.Unmarshal(out); err != nil {
		return nil, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return out, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// DefaultStoragePath returns the run history database under the XDG data
// directory.
func DefaultStoragePath() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "fractal", "fractal.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".fractal", "fractal.db")
	}
	return filepath.Join(home, ".local", "share", "fractal", "fractal.db")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()
	for key, value := range Settings(d) {
		v.SetDefault(key, value)
	}
}

// getUserConfigDir returns the XDG config directory for fractal.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "fractal")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "fractal")
	}
	return filepath.Join(home, ".config", "fractal")
}

// findProjectConfig searches for .fractal.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
		},
		Engine: EngineConfig{
			Depth:                3,
			Width:                3,
			Policy:               string(branching.Flat),
			Goal:                 models.DefaultGoal,
			MaxAgents:            4100,
			MaxConcurrentCalls:   8,
			NodeTimeout:          2 * time.Minute,
			QuantumCount:         1,
			Temperature:          0.7,
			SynthesisTemperature: 0.6,
			ReconcileTemperature: 0.5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			ServiceName: "fractal",
			Insecure:    true,
			SampleRate:  1.0,
		},
		Stream: StreamConfig{
			MaxLen: 10000,
		},
	}
}
