// Package config loads conductor's settings from YAML files and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for conductor.
type Config struct {
	Agents    AgentsConfig    `mapstructure:"agents"`
	Router    RouterConfig    `mapstructure:"router"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Journal   JournalConfig   `mapstructure:"journal"`
}

// AgentsConfig controls where agent definitions come from.
type AgentsConfig struct {
	// Dir is the directory of agent definition documents.
	Dir string `mapstructure:"dir"`
	// Watch enables hot reload of Dir.
	Watch bool `mapstructure:"watch"`
	// Debounce coalesces bursts of file events before a reload.
	Debounce time.Duration `mapstructure:"debounce"`
}

// RouterConfig holds routing thresholds.
type RouterConfig struct {
	// ConfidenceThreshold is the minimum classifier confidence for a level-2 route.
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	// FallbackAgent is the generic agent used when nothing else matches.
	FallbackAgent string `mapstructure:"fallback_agent"`
	// Classifier selects the classifier: "rules" or "llm".
	Classifier string `mapstructure:"classifier"`
}

// LifecycleConfig holds run execution settings.
type LifecycleConfig struct {
	// DefaultTimeout applies when neither the caller nor the agent sets one.
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	// MockDelay is how long the mock executor sleeps by default.
	MockDelay time.Duration `mapstructure:"mock_delay"`
	// WaitTimeout bounds each wait; zero waits until the run finishes.
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
}

// LLMConfig holds settings for the LLM-backed classifier.
type LLMConfig struct {
	APIKey             string        `mapstructure:"api_key"`
	Model              string        `mapstructure:"model"`
	UseBedrock         bool          `mapstructure:"use_bedrock"`
	AWSRegion          string        `mapstructure:"aws_region"`
	AWSProfile         string        `mapstructure:"aws_profile"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl"`
	RequestsPerSecond  float64       `mapstructure:"requests_per_second"`
	Burst              int           `mapstructure:"burst"`
	BreakerMaxFailures uint32        `mapstructure:"breaker_max_failures"`
	BreakerTimeout     time.Duration `mapstructure:"breaker_timeout"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Exporter string `mapstructure:"exporter"`
}

// JournalConfig controls the sqlite run journal.
type JournalConfig struct {
	// Path is the database file. Empty disables the journal.
	Path string `mapstructure:"path"`
}

const (
	appName           = "conductor"
	envPrefix         = "CONDUCTOR"
	projectConfigFile = ".conductor.yaml"
)

// Load reads the user config, then the nearest project config, then the
// environment. Later sources win; keys set nowhere keep the Default value.
//
// The user config lives at $XDG_CONFIG_HOME/conductor/config.yaml. The project
// config is the first .conductor.yaml found walking up from the working
// directory. Environment variables are CONDUCTOR_<SECTION>_<KEY>, plus
// ANTHROPIC_API_KEY for llm.api_key.
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(UserConfigDir())
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if path := ProjectConfigPath(); path != "" {
		project := viper.New()
		project.SetConfigFile(path)
		if err := project.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", path, err)
		}
		if err := v.MergeConfigMap(project.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	return decode(v)
}

// LoadFromPath reads only the file at path, over the defaults and under the environment.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return decode(v)
}

// newViper returns a viper seeded with Default and bound to the environment.
func newViper() *viper.Viper {
	v := viper.New()
	d := Default()

	for key, value := range map[string]any{
		"agents.dir":                  d.Agents.Dir,
		"agents.watch":                d.Agents.Watch,
		"agents.debounce":             d.Agents.Debounce,
		"router.confidence_threshold": d.Router.ConfidenceThreshold,
		"router.fallback_agent":       d.Router.FallbackAgent,
		"router.classifier":           d.Router.Classifier,
		"lifecycle.default_timeout":   d.Lifecycle.DefaultTimeout,
		"lifecycle.mock_delay":        d.Lifecycle.MockDelay,
		"lifecycle.wait_timeout":      d.Lifecycle.WaitTimeout,
		"llm.api_key":                 d.LLM.APIKey,
		"llm.model":                   d.LLM.Model,
		"llm.use_bedrock":             d.LLM.UseBedrock,
		"llm.aws_region":              d.LLM.AWSRegion,
		"llm.aws_profile":             d.LLM.AWSProfile,
		"llm.cache_ttl":               d.LLM.CacheTTL,
		"llm.requests_per_second":     d.LLM.RequestsPerSecond,
		"llm.burst":                   d.LLM.Burst,
		"llm.breaker_max_failures":    d.LLM.BreakerMaxFailures,
		"llm.breaker_timeout":         d.LLM.BreakerTimeout,
		"log.level":                   d.Log.Level,
		"log.format":                  d.Log.Format,
		"log.output":                  d.Log.Output,
		"tracing.enabled":             d.Tracing.Enabled,
		"tracing.exporter":            d.Tracing.Exporter,
		"journal.path":                d.Journal.Path,
	} {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("llm.api_key", envPrefix+"_LLM_API_KEY", APIKeyEnv)
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	for _, field := range []*string{&cfg.LLM.APIKey, &cfg.Agents.Dir, &cfg.Journal.Path} {
		*field = os.ExpandEnv(*field)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later in surprising ways.
func (c *Config) Validate() error {
	if c.Router.ConfidenceThreshold < 0 || c.Router.ConfidenceThreshold > 1 {
		return fmt.Errorf("router.confidence_threshold must be within [0,1], got %v", c.Router.ConfidenceThreshold)
	}
	switch c.Router.Classifier {
	case "rules", "llm":
	default:
		return fmt.Errorf("router.classifier must be rules or llm, got %q", c.Router.Classifier)
	}
	if strings.TrimSpace(c.Router.FallbackAgent) == "" {
		return errors.New("router.fallback_agent must not be empty")
	}
	if c.Lifecycle.DefaultTimeout <= 0 {
		return fmt.Errorf("lifecycle.default_timeout must be positive, got %v", c.Lifecycle.DefaultTimeout)
	}
	if c.Lifecycle.MockDelay < 0 || c.Lifecycle.WaitTimeout < 0 {
		return errors.New("lifecycle durations must not be negative")
	}
	return nil
}

// UserConfigDir is conductor's directory under $XDG_CONFIG_HOME, or ~/.config.
func UserConfigDir() string {
	if base := os.Getenv("XDG_CONFIG_HOME"); base != "" {
		return filepath.Join(base, appName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", appName)
	}
	return filepath.Join(".config", appName)
}

// UserConfigPath is the user config file Load reads, whether or not it exists.
func UserConfigPath() string {
	return filepath.Join(UserConfigDir(), "config.yaml")
}

// ProjectConfigPath returns the nearest .conductor.yaml at or above the
// working directory, or "" if there is none.
func ProjectConfigPath() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, projectConfigFile)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Agents: AgentsConfig{
			Dir:      "agents",
			Debounce: 150 * time.Millisecond,
		},
		Router: RouterConfig{
			ConfidenceThreshold: 0.6,
			FallbackAgent:       "orchestrator",
			Classifier:          "rules",
		},
		Lifecycle: LifecycleConfig{
			DefaultTimeout: 60 * time.Second,
			MockDelay:      300 * time.Millisecond,
		},
		LLM: LLMConfig{
			Model:              "claude-haiku-4-5",
			CacheTTL:           10 * time.Minute,
			RequestsPerSecond:  2,
			Burst:              4,
			BreakerMaxFailures: 5,
			BreakerTimeout:     30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracing: TracingConfig{
			Exporter: "stdout",
		},
	}
}
