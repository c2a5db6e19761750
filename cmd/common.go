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
	"path/filepath"

	"github.com/valpere/interlinear/internal"
	"github.com/valpere/interlinear/internal/batch"
	"github.com/valpere/interlinear/internal/config"
	"github.com/valpere/interlinear/internal/detector"
	"github.com/valpere/interlinear/internal/fallback"
	"github.com/valpere/interlinear/internal/langscript"
	"github.com/valpere/interlinear/internal/llm"
	"github.com/valpere/interlinear/internal/observe"
	"github.com/valpere/interlinear/internal/orchestrator"
	"github.com/valpere/interlinear/internal/store"
	"github.com/valpere/interlinear/internal/tokenizer"
	"github.com/valpere/interlinear/internal/translator"
	"github.com/valpere/interlinear/internal/validator"
)

// services is everything a translation run needs, built from the config.
type services struct {
	clients *llm.ClientCache
	health  *llm.HealthChecker

	primaryLLM  *translator.LLMService
	fallbackLLM *translator.LLMService
	mt          translator.TranslationService

	validator    *validator.Validator
	orchestrator *orchestrator.Orchestrator
	batch        *batch.Translator
	db           *store.Store
	tokenizer    *tokenizer.Tokenizer
	metrics      *observe.Metrics
	logger       *slog.Logger
}

// buildServices wires providers, validation, fallback reporting and the
// optional store for one job. db may be nil when useStore is false or no
// db_path is configured.
func buildServices(cfg *config.Config, job *internal.Job, useStore bool, logger *slog.Logger) (*services, error) {
	s := &services{
		clients: llm.NewClientCache(llm.WithLogger(logger)),
		health:  llm.NewHealthChecker(llm.DefaultHealthTTL),
		logger:  logger,
	}

	metrics, err := observe.NewMetrics(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	s.metrics = metrics

	if useStore && cfg.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		if s.db, err = store.New(cfg.DBPath); err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
	}

	rules := langscript.DefaultRules()
	if cfg.RulesFile != "" {
		if rules, err = langscript.LoadRules(cfg.RulesFile); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to load language rules: %w", err)
		}
	}
	var det *detector.Detector
	if len(cfg.DetectLanguages) > 0 {
		det = detector.NewFor(cfg.DetectLanguages...)
	} else {
		det = detector.New()
	}
	if s.tokenizer, err = buildTokenizer(cfg); err != nil {
		s.Close()
		return nil, err
	}
	s.validator = validator.New(validator.WithRules(rules), validator.WithDetector(det), validator.WithTokenizer(s.tokenizer))

	s.primaryLLM = translator.NewLLMService("primary", s.clients.Get(cfg.Primary), s.health)
	if cfg.HasFallback() {
		s.fallbackLLM = translator.NewLLMService("fallback", s.clients.Get(cfg.Fallback), s.health)
	}

	switch cfg.MT.Provider {
	case "google":
		s.mt = translator.NewGoogleService(cfg.MT.CredentialsFile)
	case "mymemory":
		s.mt = translator.NewMyMemoryService(cfg.MT.Email)
	}

	reporters := fallback.Reporters{fallback.LogReporter{Logger: logger}, s.metrics}
	if s.db != nil {
		reporters = append(reporters, s.db.AuditReporter(logger))
	}

	// An MT primary escalates to an LLM: the fallback one if configured,
	// else the primary LLM.
	var primary translator.TranslationService = s.primaryLLM
	var fb translator.TranslationService
	if s.fallbackLLM != nil {
		fb = s.fallbackLLM
	}
	if s.mt != nil {
		primary = s.mt
		if fb == nil {
			fb = s.primaryLLM
		}
	}

	opts := []orchestrator.Option{
		orchestrator.WithValidator(s.validator),
		orchestrator.WithPolicy(cfg.Policy),
		orchestrator.WithFallbackAttempts(cfg.FallbackAttempts),
		orchestrator.WithReporter(reporters),
		orchestrator.WithLogger(logger),
	}
	if fb != nil {
		opts = append(opts, orchestrator.WithFallback(fb))
	}
	var fbTranslit translator.Transliterator
	if s.fallbackLLM != nil {
		fbTranslit = s.fallbackLLM
	}
	opts = append(opts, orchestrator.WithTransliterators(s.primaryLLM, fbTranslit))
	s.orchestrator = orchestrator.New(primary, opts...)

	if s.mt == nil && cfg.Pipeline.BatchSize > 1 {
		var artifacts *batch.ArtifactLog
		if job.ArtifactDir != "" {
			artifacts = batch.NewArtifactLog(job.ArtifactDir, logger)
		}
		s.batch = batch.NewTranslator(s.primaryLLM.Client(), s.validator,
			batch.WithArtifactLog(artifacts),
			batch.WithLogger(logger))
	}
	return s, nil
}

// buildTokenizer registers a dictionary segmenter for every configured
// word list.
func buildTokenizer(cfg *config.Config) (*tokenizer.Tokenizer, error) {
	tok := tokenizer.New()
	for lang, path := range cfg.SegmenterDicts {
		seg, err := tokenizer.LoadDictionary(path)
		if err != nil {
			return nil, fmt.Errorf("segmenter for %s: %w", lang, err)
		}
		tok.Register(lang, seg)
	}
	return tok, nil
}

// checkProviders probes every configured provider.
func (s *services) checkProviders(ctx context.Context) map[string]error {
	out := map[string]error{"primary": s.primaryLLM.IsAvailable(ctx)}
	if s.fallbackLLM != nil {
		out["fallback"] = s.fallbackLLM.IsAvailable(ctx)
	}
	if s.mt != nil {
		out[s.mt.Name()] = s.mt.IsAvailable(ctx)
	}
	return out
}

func (s *services) Close() {
	if closer, ok := s.mt.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			s.logger.Warn("[cmd] closing MT client failed", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("[cmd] closing database failed", "error", err)
		}
	}
}

// openStore opens the configured database for the cache and glossary
// commands.
func openStore(cfg *config.Config) (*store.Store, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("no database configured (set db_path or --db)")
	}
	db, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}
