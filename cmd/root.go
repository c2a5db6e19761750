/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/valpere/interlinear/internal/config"
	"github.com/valpere/interlinear/internal/observe"
)

var version = "0.1.0"

var (
	cfgFile string
	v       = config.NewViper()

	// meterProvider is set when metrics export is enabled and flushed on exit.
	meterProvider *sdkmetric.MeterProvider
)

var rootCmd = &cobra.Command{
	Use:   "interlinear",
	Short: "Sentence-by-sentence translation with aligned transliteration",
	Long: `interlinear translates a document sentence by sentence with an LLM,
optionally adds a Latin-script transliteration aligned word by word, and
writes one JSON task per sentence.

Settings come from interlinear.yaml (./ or ~/.config/interlinear), from
INTERLINEAR_* environment variables and from flags, in increasing priority.

Use "interlinear translate --help" for translation options.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	err := rootCmd.Execute()
	flushMetrics()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads and validates the settings and installs the logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := observe.NewLogger(os.Stderr, config.ParseLogLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	if cfg.Metrics.Enabled && meterProvider == nil {
		mp, err := observe.NewMeterProvider(os.Stderr, cfg.Metrics.Interval)
		if err != nil {
			return nil, nil, err
		}
		otel.SetMeterProvider(mp)
		meterProvider = mp
	}
	return cfg, logger, nil
}

// flushMetrics exports the final readings and stops the meter provider.
func flushMetrics() {
	if meterProvider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := meterProvider.Shutdown(ctx); err != nil {
		slog.Warn("[cmd] metrics export failed", "error", err)
	}
}

func bindFlag(v *viper.Viper, key string, cmd *cobra.Command, flag string) {
	if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./interlinear.yaml or ~/.config/interlinear/interlinear.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("db", "", "SQLite database for translation memory and glossary")
	rootCmd.PersistentFlags().Bool("metrics", false, "Write OpenTelemetry metrics to stderr")

	if err := v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		panic(err)
	}
	if err := v.BindPFlag("db_path", rootCmd.PersistentFlags().Lookup("db")); err != nil {
		panic(err)
	}
	if err := v.BindPFlag("metrics.enabled", rootCmd.PersistentFlags().Lookup("metrics")); err != nil {
		panic(err)
	}
}
