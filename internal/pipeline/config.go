package pipeline

import (
	"fmt"
	"time"
)

const (
	DefaultWorkers       = 4
	DefaultConsumerCount = 1
	DefaultQueueSize     = 16
	DefaultPutTimeout    = 100 * time.Millisecond
	DefaultContextWords  = 25
)

// Config tunes one pipeline run.
type Config struct {
	SourceLang string `mapstructure:"source_lang"`
	// Workers caps the thread pool; the pool never has more workers than
	// units of work.
	Workers       int `mapstructure:"workers"`
	ConsumerCount int `mapstructure:"consumer_count"`
	QueueSize     int `mapstructure:"queue_size"`
	// BatchSize above one sends sentences sharing a target language in one
	// request.
	BatchSize     int           `mapstructure:"batch_size"`
	PutTimeout    time.Duration `mapstructure:"put_timeout"`
	Transliterate bool          `mapstructure:"transliterate"`
	Align         bool          `mapstructure:"align"`
	ContextWords  int           `mapstructure:"context_words"`
	// FuzzyThreshold enables near-match memory lookups when above zero.
	FuzzyThreshold float64 `mapstructure:"fuzzy_threshold"`
	UseMemory      bool    `mapstructure:"use_memory"`
}

func DefaultConfig() Config {
	return Config{
		SourceLang:    "auto",
		Workers:       DefaultWorkers,
		ConsumerCount: DefaultConsumerCount,
		QueueSize:     DefaultQueueSize,
		BatchSize:     1,
		PutTimeout:    DefaultPutTimeout,
		Align:         true,
		ContextWords:  DefaultContextWords,
		UseMemory:     true,
	}
}

// ConfigError reports a pipeline setup that cannot run.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("pipeline config: %s: %s", e.Field, e.Reason)
}

// ErrAsyncPool is returned when an async pool is handed to the pipeline,
// which only drives thread pools.
var ErrAsyncPool = &ConfigError{Field: "pool", Reason: "async pool cannot drive the synchronous pipeline"}

// Validate fills zero values with defaults and rejects impossible ones.
func (c *Config) Validate() error {
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.ConsumerCount == 0 {
		c.ConsumerCount = DefaultConsumerCount
	}
	if c.QueueSize == 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.PutTimeout == 0 {
		c.PutTimeout = DefaultPutTimeout
	}
	if c.BatchSize == 0 {
		c.BatchSize = 1
	}
	if c.SourceLang == "" {
		c.SourceLang = "auto"
	}

	switch {
	case c.Workers < 0:
		return &ConfigError{Field: "workers", Reason: fmt.Sprintf("must be > 0, got %d", c.Workers)}
	case c.ConsumerCount < 0:
		return &ConfigError{Field: "consumer_count", Reason: fmt.Sprintf("must be > 0, got %d", c.ConsumerCount)}
	case c.QueueSize < 0:
		return &ConfigError{Field: "queue_size", Reason: fmt.Sprintf("must be > 0, got %d", c.QueueSize)}
	case c.BatchSize < 0:
		return &ConfigError{Field: "batch_size", Reason: fmt.Sprintf("must be > 0, got %d", c.BatchSize)}
	case c.PutTimeout < 0:
		return &ConfigError{Field: "put_timeout", Reason: "must not be negative"}
	case c.FuzzyThreshold < 0 || c.FuzzyThreshold > 1:
		return &ConfigError{Field: "fuzzy_threshold", Reason: fmt.Sprintf("must be within [0, 1], got %g", c.FuzzyThreshold)}
	}
	return nil
}
