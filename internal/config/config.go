// Package config loads interlinear settings from interlinear.yaml, the
// environment (INTERLINEAR_*) and command-line flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/valpere/interlinear/internal/fallback"
	"github.com/valpere/interlinear/internal/llm"
	"github.com/valpere/interlinear/internal/pipeline"
)

const (
	EnvPrefix = "INTERLINEAR"
	FileName  = "interlinear"
)

type Config struct {
	LogLevel string `mapstructure:"log_level"`
	// DBPath is the sqlite file for memory, glossary and audit. Empty
	// disables the store.
	DBPath string `mapstructure:"db_path"`
	// LogDir receives per-job batch artifacts. Empty disables them.
	LogDir string `mapstructure:"log_dir"`
	// RulesFile overrides per-language validation tuning.
	RulesFile string `mapstructure:"rules_file"`
	// SegmenterDicts maps a language code to a word list used to segment
	// unspaced text of that language.
	SegmenterDicts map[string]string `mapstructure:"segmenter_dicts"`

	Primary  llm.Config `mapstructure:"primary"`
	Fallback llm.Config `mapstructure:"fallback"`
	MT       MTConfig   `mapstructure:"mt"`

	Policy           fallback.Policy `mapstructure:"policy"`
	FallbackAttempts int             `mapstructure:"fallback_attempts"`
	DetectLanguages  []string        `mapstructure:"detect_languages"`

	Pipeline pipeline.Config `mapstructure:"pipeline"`
	Metrics  MetricsConfig   `mapstructure:"metrics"`
}

// MetricsConfig controls the OpenTelemetry export of run metrics to stderr.
type MetricsConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// MTConfig selects a machine-translation API used as the primary
// translator instead of the primary LLM.
type MTConfig struct {
	Provider        string `mapstructure:"provider"` // "", "google" or "mymemory"
	CredentialsFile string `mapstructure:"credentials_file"`
	Email           string `mapstructure:"email"`
}

func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "interlinear")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "interlinear")
}

// Default returns the built-in settings.
func Default() *Config {
	data := defaultDataDir()
	return &Config{
		LogLevel: "info",
		DBPath:   filepath.Join(data, "interlinear.db"),
		Primary: llm.Config{
			BaseURL:    "http://localhost:11434/v1",
			Model:      "qwen2.5:14b",
			Timeout:    llm.DefaultTimeout,
			MaxRetries: llm.DefaultMaxRetries,
		},
		Fallback: llm.Config{
			Timeout:    llm.DefaultTimeout,
			MaxRetries: llm.DefaultMaxRetries,
		},
		Policy:           fallback.DefaultPolicy(),
		FallbackAttempts: 2,
		Pipeline:         pipeline.DefaultConfig(),
		Metrics:          MetricsConfig{Interval: 30 * time.Second},
	}
}

// NewViper returns a viper instance carrying the defaults and environment
// bindings. Flags are bound on it by the caller.
func NewViper() *viper.Viper {
	v := viper.New()
	d := Default()

	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("log_dir", d.LogDir)
	v.SetDefault("rules_file", d.RulesFile)

	for _, side := range []struct {
		key string
		cfg llm.Config
	}{{"primary", d.Primary}, {"fallback", d.Fallback}} {
		v.SetDefault(side.key+".base_url", side.cfg.BaseURL)
		v.SetDefault(side.key+".api_key", side.cfg.APIKey)
		v.SetDefault(side.key+".model", side.cfg.Model)
		v.SetDefault(side.key+".timeout", side.cfg.Timeout)
		v.SetDefault(side.key+".max_retries", side.cfg.MaxRetries)
		v.SetDefault(side.key+".rate_per_sec", side.cfg.RatePerSec)
		v.SetDefault(side.key+".burst", side.cfg.Burst)
		v.SetDefault(side.key+".temperature", side.cfg.Temperature)
		v.SetDefault(side.key+".max_tokens", side.cfg.MaxTokens)
	}

	v.SetDefault("mt.provider", "")
	v.SetDefault("mt.credentials_file", "")
	v.SetDefault("mt.email", "")

	v.SetDefault("policy.max_attempts", d.Policy.MaxAttempts)
	v.SetDefault("policy.timeout", d.Policy.Timeout)
	v.SetDefault("fallback_attempts", d.FallbackAttempts)
	v.SetDefault("detect_languages", []string{})
	v.SetDefault("segmenter_dicts", map[string]string{})
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.interval", d.Metrics.Interval)

	p := d.Pipeline
	v.SetDefault("pipeline.source_lang", p.SourceLang)
	v.SetDefault("pipeline.workers", p.Workers)
	v.SetDefault("pipeline.consumer_count", p.ConsumerCount)
	v.SetDefault("pipeline.queue_size", p.QueueSize)
	v.SetDefault("pipeline.batch_size", p.BatchSize)
	v.SetDefault("pipeline.put_timeout", p.PutTimeout)
	v.SetDefault("pipeline.transliterate", p.Transliterate)
	v.SetDefault("pipeline.align", p.Align)
	v.SetDefault("pipeline.context_words", p.ContextWords)
	v.SetDefault("pipeline.fuzzy_threshold", p.FuzzyThreshold)
	v.SetDefault("pipeline.use_memory", p.UseMemory)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path, or interlinear.yaml from the working directory or
// DefaultConfigDir when path is empty. A missing default file is not an
// error; a missing explicit one is.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir := DefaultConfigDir(); dir != "" {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.DBPath = expandTilde(cfg.DBPath)
	cfg.LogDir = expandTilde(cfg.LogDir)
	cfg.RulesFile = expandTilde(cfg.RulesFile)
	cfg.MT.CredentialsFile = expandTilde(cfg.MT.CredentialsFile)
	for lang, path := range cfg.SegmenterDicts {
		cfg.SegmenterDicts[lang] = expandTilde(path)
	}
	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if c.Metrics.Interval < 0 {
		return fmt.Errorf("metrics.interval must be >= 0")
	}

	if c.Primary.BaseURL == "" || c.Primary.Model == "" {
		return fmt.Errorf("primary.base_url and primary.model must be set")
	}
	if (c.Fallback.BaseURL == "") != (c.Fallback.Model == "") {
		return fmt.Errorf("fallback.base_url and fallback.model must be set together")
	}

	switch c.MT.Provider {
	case "", "mymemory":
	case "google":
		if c.MT.CredentialsFile == "" && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
			return fmt.Errorf("mt.credentials_file or GOOGLE_APPLICATION_CREDENTIALS is required for google")
		}
	default:
		return fmt.Errorf("mt.provider must be google or mymemory, got %q", c.MT.Provider)
	}

	if c.Policy.MaxAttempts < 0 {
		return fmt.Errorf("policy.max_attempts must be >= 0")
	}
	if c.Policy.Timeout < 0 {
		return fmt.Errorf("policy.timeout must be >= 0")
	}
	if c.FallbackAttempts < 0 {
		return fmt.Errorf("fallback_attempts must be >= 0")
	}
	for _, side := range []struct {
		name string
		cfg  llm.Config
	}{{"primary", c.Primary}, {"fallback", c.Fallback}} {
		if side.cfg.Timeout < 0 || side.cfg.MaxRetries < 0 || side.cfg.RatePerSec < 0 {
			return fmt.Errorf("%s: timeout, max_retries and rate_per_sec must not be negative", side.name)
		}
	}
	return c.Pipeline.Validate()
}

// HasFallback reports whether a fallback LLM is configured.
func (c *Config) HasFallback() bool {
	return c.Fallback.BaseURL != "" && c.Fallback.Model != ""
}

// ParseLogLevel maps a log_level value to a slog level. Unknown values are
// treated as info.
func ParseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
