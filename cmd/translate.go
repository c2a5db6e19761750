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
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/valpere/interlinear/internal"
	"github.com/valpere/interlinear/internal/chunker"
	"github.com/valpere/interlinear/internal/detector"
	"github.com/valpere/interlinear/internal/markdown"
	"github.com/valpere/interlinear/internal/pipeline"
)

var (
	inputFile   string
	outputFile  string
	targetLangs []string
	noCache     bool
	maxChars    int
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate a text or markdown file sentence by sentence",
	Long: `Split the input into sentences, translate each one and write one JSON
object per line:

  {"index":0,"sentence_number":1,"sentence":"...","target_language":"ru",
   "translation":"...","transliteration":"..."}

Lines are ordered by index. Sentences that could not be translated carry a
"[failure] ..." marker instead of a translation.

Examples:
  interlinear translate -i chapter.md -t ru --transliterate
  interlinear translate -i notes.txt -t ja -t zh --batch-size 8 -o out.jsonl`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if outputFile != "" && filepath.Clean(inputFile) == filepath.Clean(outputFile) {
			return fmt.Errorf("input file and output file cannot be the same")
		}
		if len(targetLangs) == 0 {
			return fmt.Errorf("at least one --target language is required")
		}

		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		raw, err := os.ReadFile(inputFile)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}
		text := string(raw)
		if markdown.IsMarkdownPath(inputFile) {
			text = markdown.ToPlainText(raw)
		}
		sentences := chunker.Sentences(text, maxChars)
		if len(sentences) == 0 {
			return fmt.Errorf("no sentences found in %s", inputFile)
		}

		if cfg.Pipeline.SourceLang == "auto" {
			if detected, ok := detector.New().DetectISO(text); ok {
				cfg.Pipeline.SourceLang = detected
				fmt.Fprintf(os.Stderr, "Detected source language: %s\n", detected)
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		jobID := uuid.NewString()
		var artifactDir string
		if cfg.LogDir != "" {
			artifactDir = filepath.Join(cfg.LogDir, jobID)
		}
		job := internal.NewJob(jobID, artifactDir)
		svc, err := buildServices(cfg, job, !noCache, logger)
		if err != nil {
			return err
		}
		defer svc.Close()

		var input []pipeline.Sentence
		for _, lang := range targetLangs {
			for i, s := range sentences {
				input = append(input, pipeline.Sentence{Number: i + 1, Text: s, TargetLang: strings.ToLower(lang)})
			}
		}

		deps := pipeline.Deps{
			Job:          job,
			Orchestrator: svc.orchestrator,
			Batch:        svc.batch,
			Metrics:      svc.metrics,
			Logger:       logger,
			Tokenizer:    svc.tokenizer,
		}
		if svc.db != nil {
			deps.Memory = svc.db
		}
		if noCache {
			cfg.Pipeline.UseMemory = false
		}

		fmt.Fprintf(os.Stderr, "Translating %d sentences into %s (job %s)\n",
			len(sentences), strings.Join(targetLangs, ", "), job.ID)

		producer, err := pipeline.Start(ctx, cfg.Pipeline, deps, input)
		if err != nil {
			return err
		}
		tasks := collect(producer, cfg.Pipeline.ConsumerCount, logger)
		runErr := producer.Wait()

		if err := writeTasks(tasks, outputFile); err != nil {
			return err
		}

		st := producer.Stats()
		fmt.Fprintf(os.Stderr, "Done: %d tasks, %d from memory, %d batched, %d degraded, %d failed\n",
			st.Total, st.FromMemory, st.Batched, st.Degraded, st.Failed)
		for _, d := range job.Fallback().Decisions() {
			fmt.Fprintf(os.Stderr, "Fallback for %s: %s (%s: %s)\n", d.Concern, d.Provider, d.Trigger, d.Reason)
		}
		if runErr != nil {
			logger.Warn("[cmd] run stopped early", "error", runErr)
			return fmt.Errorf("translation interrupted: %w", runErr)
		}
		return nil
	},
}

// collect runs the consumers and returns every task in input order.
func collect(p *pipeline.Producer, consumers int, logger *slog.Logger) []*internal.TranslationTask {
	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		tasks []*internal.TranslationTask
	)
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for t := range p.Tasks() {
				if t == nil {
					logger.Debug("[cmd] consumer finished", "consumer", id)
					return
				}
				mu.Lock()
				tasks = append(tasks, t)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Index < tasks[j].Index })
	return tasks
}

func writeTasks(tasks []*internal.TranslationTask, path string) error {
	var w io.Writer = os.Stdout
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, t := range tasks {
		if err := enc.Encode(t); err != nil {
			return fmt.Errorf("failed to write task %d: %w", t.Index, err)
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(translateCmd)

	f := translateCmd.Flags()
	f.StringVarP(&inputFile, "input", "i", "", "Input file (.txt or .md)")
	f.StringVarP(&outputFile, "output", "o", "", "Output JSONL file (default stdout)")
	f.StringSliceVarP(&targetLangs, "target", "t", nil, "Target language code, repeatable (e.g. ru, ja)")
	f.StringP("source", "s", "auto", "Source language code, or auto to detect")
	f.Bool("transliterate", false, "Add a Latin-script transliteration track")
	f.Bool("align", true, "Align translation and transliteration token counts")
	f.Int("batch-size", 1, "Sentences per LLM request (1 disables batching)")
	f.Int("workers", pipeline.DefaultWorkers, "Worker pool size")
	f.Int("consumers", pipeline.DefaultConsumerCount, "Output consumers")
	f.Float64("fuzzy", 0, "Similarity threshold (0-1) for near-match memory hits; 0 disables")
	f.BoolVar(&noCache, "no-cache", false, "Disable translation memory")
	f.IntVar(&maxChars, "max-chars", chunker.DefaultMaxSentenceChars, "Cut sentences longer than this many characters")
	translateCmd.MarkFlagRequired("input")

	bindFlag(v, "pipeline.source_lang", translateCmd, "source")
	bindFlag(v, "pipeline.transliterate", translateCmd, "transliterate")
	bindFlag(v, "pipeline.align", translateCmd, "align")
	bindFlag(v, "pipeline.batch_size", translateCmd, "batch-size")
	bindFlag(v, "pipeline.workers", translateCmd, "workers")
	bindFlag(v, "pipeline.consumer_count", translateCmd, "consumers")
	bindFlag(v, "pipeline.fuzzy_threshold", translateCmd, "fuzzy")
}
