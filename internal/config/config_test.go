package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "interlinear.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(NewViper(), writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.LogLevel != "info" || cfg.Policy.MaxAttempts != 5 || cfg.Policy.Timeout != 2*time.Minute {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Metrics.Enabled || cfg.Metrics.Interval != 30*time.Second {
		t.Errorf("metrics defaults = %+v", cfg.Metrics)
	}
	if cfg.Pipeline.Workers != 4 || !cfg.Pipeline.Align || cfg.HasFallback() {
		t.Errorf("pipeline defaults = %+v, fallback = %v", cfg.Pipeline, cfg.HasFallback())
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
db_path: ~/tm.db
primary:
  base_url: http://gateway:8080/v1
  model: big-model
  timeout: 45s
  rate_per_sec: 2
fallback:
  base_url: http://backup/v1
  model: small-model
policy:
  max_attempts: 3
  timeout: 30s
pipeline:
  workers: 8
  consumer_count: 2
  batch_size: 10
  transliterate: true
  put_timeout: 250ms
`)
	cfg, err := Load(NewViper(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Primary.Model != "big-model" || cfg.Primary.Timeout != 45*time.Second || cfg.Primary.RatePerSec != 2 {
		t.Errorf("primary = %+v", cfg.Primary)
	}
	if cfg.Primary.MaxRetries != 3 {
		t.Errorf("unset primary.max_retries should keep its default, got %d", cfg.Primary.MaxRetries)
	}
	if !cfg.HasFallback() || cfg.Fallback.Model != "small-model" {
		t.Errorf("fallback = %+v", cfg.Fallback)
	}
	if cfg.Policy.MaxAttempts != 3 || cfg.Policy.Timeout != 30*time.Second {
		t.Errorf("policy = %+v", cfg.Policy)
	}
	p := cfg.Pipeline
	if p.Workers != 8 || p.ConsumerCount != 2 || p.BatchSize != 10 || !p.Transliterate || p.PutTimeout != 250*time.Millisecond {
		t.Errorf("pipeline = %+v", p)
	}
	if strings.HasPrefix(cfg.DBPath, "~") {
		t.Errorf("db_path not expanded: %q", cfg.DBPath)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("INTERLINEAR_PRIMARY_MODEL", "env-model")
	t.Setenv("INTERLINEAR_PIPELINE_WORKERS", "2")

	cfg, err := Load(NewViper(), writeConfig(t, "primary:\n  model: file-model\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Primary.Model != "env-model" || cfg.Pipeline.Workers != 2 {
		t.Errorf("env overrides ignored: model %q workers %d", cfg.Primary.Model, cfg.Pipeline.Workers)
	}
}

func TestLoad_SegmenterDicts(t *testing.T) {
	cfg, err := Load(NewViper(), writeConfig(t, "segmenter_dicts:\n  th: ~/dicts/th.txt\n  km: /srv/km.txt\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.SegmenterDicts) != 2 || cfg.SegmenterDicts["km"] != "/srv/km.txt" {
		t.Fatalf("SegmenterDicts = %v", cfg.SegmenterDicts)
	}
	if th := cfg.SegmenterDicts["th"]; strings.HasPrefix(th, "~") || !strings.HasSuffix(th, filepath.Join("dicts", "th.txt")) {
		t.Errorf("th path not expanded: %q", th)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(NewViper(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"no primary model", func(c *Config) { c.Primary.Model = "" }},
		{"half fallback", func(c *Config) { c.Fallback.BaseURL = "http://x" }},
		{"unknown mt", func(c *Config) { c.MT.Provider = "babelfish" }},
		{"negative attempts", func(c *Config) { c.Policy.MaxAttempts = -1 }},
		{"negative retries", func(c *Config) { c.Primary.MaxRetries = -1 }},
		{"negative workers", func(c *Config) { c.Pipeline.Workers = -2 }},
		{"negative metrics interval", func(c *Config) { c.Metrics.Interval = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLogLevel(tt.input); got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
