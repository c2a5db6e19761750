// Package pipeline streams translation tasks to downstream consumers. One
// producer goroutine schedules work on a worker pool, drains results in
// completion order and hands them to a bounded channel.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/valpere/interlinear/internal"
	"github.com/valpere/interlinear/internal/aligner"
	"github.com/valpere/interlinear/internal/batch"
	"github.com/valpere/interlinear/internal/chunker"
	"github.com/valpere/interlinear/internal/fallback"
	"github.com/valpere/interlinear/internal/observe"
	"github.com/valpere/interlinear/internal/orchestrator"
	"github.com/valpere/interlinear/internal/store"
	"github.com/valpere/interlinear/internal/tokenizer"
	"github.com/valpere/interlinear/internal/translator"
	"github.com/valpere/interlinear/internal/workerpool"
)

// Sentence is one input unit. Its position in the input slice becomes the
// task Index.
type Sentence struct {
	Number     int
	Text       string
	TargetLang string
}

// Memory is the translation memory and glossary; *store.Store satisfies it.
type Memory interface {
	Lookup(ctx context.Context, sourceText, sourceLang, targetLang string) (*store.MemoryEntry, bool, error)
	LookupSimilar(ctx context.Context, sourceText, sourceLang, targetLang string, threshold float64) (*store.MemoryEntry, float64, error)
	Remember(ctx context.Context, e store.MemoryEntry) error
	GlossaryTerms(ctx context.Context, sourceLang, targetLang string) (map[string]string, error)
}

// Deps are the collaborators of a run. Orchestrator and Job are required.
type Deps struct {
	Job          *internal.Job
	Orchestrator *orchestrator.Orchestrator
	// Batch enables the multi-sentence path when Config.BatchSize > 1.
	Batch  *batch.Translator
	Memory Memory
	// Pool is used as is and never shut down. When nil the run owns a
	// thread pool sized to the work.
	Pool    workerpool.Pool
	Metrics *observe.Metrics
	Logger  *slog.Logger
	// Tokenizer drives token alignment; nil has no segmenters.
	Tokenizer *tokenizer.Tokenizer
}

// Stats summarise a finished run.
type Stats struct {
	Total      int
	FromMemory int
	Batched    int
	Degraded   int
	Failed     int
	Dropped    int
}

type Producer struct {
	cfg     Config
	deps    Deps
	input   []Sentence
	logger  *slog.Logger
	aligner *aligner.Aligner

	out  chan *internal.TranslationTask
	done chan struct{}

	mu       sync.Mutex
	stats    Stats
	err      error
	glossary map[string]map[string]string
}

// Start validates the setup and launches the producer. The returned
// producer's channel yields every task followed by one nil per consumer.
func Start(ctx context.Context, cfg Config, deps Deps, input []Sentence) (*Producer, error) {
	if deps.Pool != nil && deps.Pool.Mode() == workerpool.ModeAsync {
		return nil, ErrAsyncPool
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Orchestrator == nil {
		return nil, &ConfigError{Field: "orchestrator", Reason: "required"}
	}
	if deps.Job == nil {
		return nil, &ConfigError{Field: "job", Reason: "required"}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Producer{
		cfg:      cfg,
		deps:     deps,
		input:    input,
		logger:   logger.With("job", deps.Job.ID),
		aligner:  aligner.New(deps.Tokenizer),
		out:      make(chan *internal.TranslationTask, cfg.QueueSize),
		done:     make(chan struct{}),
		glossary: make(map[string]map[string]string),
	}
	go p.run(ctx)
	return p, nil
}

// Tasks is the output channel shared by the consumers.
func (p *Producer) Tasks() <-chan *internal.TranslationTask { return p.out }

// Done is closed after the producer sent its end markers.
func (p *Producer) Done() <-chan struct{} { return p.done }

// Wait blocks until the producer exits and returns why it stopped early,
// if it did. The consumers must keep reading until they see their end
// marker.
func (p *Producer) Wait() error {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Producer) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Producer) count(f func(s *Stats)) {
	p.mu.Lock()
	f(&p.stats)
	p.mu.Unlock()
}

func (p *Producer) fail(err error) {
	p.mu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.mu.Unlock()
}

type unit struct {
	single *indexed
	batch  *batch.Batch
}

type indexed struct {
	Sentence
	index   int
	context string
}

func (p *Producer) run(ctx context.Context) {
	var pool workerpool.Pool
	owned := false

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("[pipeline] producer panic", "panic", r, "stack", string(debug.Stack()))
			p.fail(fmt.Errorf("producer panic: %v", r))
		}
		if ctx.Err() != nil {
			p.fail(ctx.Err())
		}
		if owned {
			pool.Shutdown(ctx.Err() == nil)
		}
		for i := 0; i < p.cfg.ConsumerCount; i++ {
			p.out <- nil
		}
		p.logger.Info("[pipeline] producer finished", "stats", fmt.Sprintf("%+v", p.Stats()))
		close(p.done)
	}()

	p.logger.Info("[pipeline] producer started", "sentences", len(p.input), "consumers", p.cfg.ConsumerCount)

	pending := p.serveFromMemory(ctx)
	if ctx.Err() != nil || len(pending) == 0 {
		return
	}
	p.loadGlossaries(ctx, pending)

	units := p.plan(pending)
	pool = p.deps.Pool
	if pool == nil {
		pool = workerpool.NewThreadPool(min(p.cfg.Workers, len(units)),
			workerpool.WithResource(func(id int) any { return p.logger.With("worker", id) }),
			workerpool.WithEvents(p.deps.Metrics.PoolEvent),
			workerpool.WithLogger(p.logger))
		owned = true
	}

	futures := make([]*workerpool.Future[[]*internal.TranslationTask], len(units))
	for i, u := range units {
		futures[i] = workerpool.Submit(pool, func(w *workerpool.Worker) ([]*internal.TranslationTask, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return p.process(ctx, w, u), nil
		})
	}
	byFuture := make(map[*workerpool.Future[[]*internal.TranslationTask]]unit, len(units))
	for i, f := range futures {
		byFuture[f] = units[i]
	}

	for f := range workerpool.IterateCompleted(futures) {
		tasks, err := f.Result()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("[pipeline] unit failed", "error", err)
			tasks = p.failedTasks(byFuture[f], err)
		}
		for _, t := range tasks {
			if !p.put(ctx, t) {
				return
			}
		}
	}
}

// serveFromMemory emits the sentences the memory already knows and returns
// the rest.
func (p *Producer) serveFromMemory(ctx context.Context) []indexed {
	lastByLang := make(map[string]string)
	pending := make([]indexed, 0, len(p.input))
	for i, s := range p.input {
		if ctx.Err() != nil {
			return nil
		}
		prev := lastByLang[s.TargetLang]
		lastByLang[s.TargetLang] = s.Text

		if t, ok := p.fromMemory(ctx, i, s); ok {
			if !p.put(ctx, t) {
				return nil
			}
			p.count(func(st *Stats) { st.Total++; st.FromMemory++ })
			p.deps.Metrics.ItemDone(ctx, s.TargetLang, "memory", 0)
			continue
		}
		pending = append(pending, indexed{
			Sentence: s,
			index:    i,
			context:  chunker.ExtractContext(prev, p.cfg.ContextWords),
		})
	}
	return pending
}

func (p *Producer) fromMemory(ctx context.Context, index int, s Sentence) (*internal.TranslationTask, bool) {
	if p.deps.Memory == nil || !p.cfg.UseMemory {
		return nil, false
	}
	e, ok, err := p.deps.Memory.Lookup(ctx, s.Text, p.cfg.SourceLang, s.TargetLang)
	if err != nil {
		p.logger.Warn("[pipeline] memory lookup failed", "error", err)
		return nil, false
	}
	if !ok && p.cfg.FuzzyThreshold > 0 {
		var score float64
		e, score, err = p.deps.Memory.LookupSimilar(ctx, s.Text, p.cfg.SourceLang, s.TargetLang, p.cfg.FuzzyThreshold)
		if err != nil {
			p.logger.Warn("[pipeline] fuzzy memory lookup failed", "error", err)
			return nil, false
		}
		ok = e != nil
		if ok {
			p.logger.Debug("[pipeline] fuzzy memory hit", "index", index, "score", score)
		}
	}
	if !ok || (p.cfg.Transliterate && e.Transliteration == "") {
		return nil, false
	}
	t := &internal.TranslationTask{
		Index:          index,
		SentenceNumber: s.Number,
		Sentence:       s.Text,
		TargetLanguage: s.TargetLang,
		Translation:    e.Translation,
	}
	if p.cfg.Transliterate {
		t.Transliteration = e.Transliteration
	}
	return t, true
}

func (p *Producer) loadGlossaries(ctx context.Context, pending []indexed) {
	if p.deps.Memory == nil {
		return
	}
	for _, s := range pending {
		if _, ok := p.glossary[s.TargetLang]; ok {
			continue
		}
		terms, err := p.deps.Memory.GlossaryTerms(ctx, p.cfg.SourceLang, s.TargetLang)
		if err != nil {
			p.logger.Warn("[pipeline] glossary lookup failed", "target", s.TargetLang, "error", err)
		}
		p.glossary[s.TargetLang] = terms
	}
}

// plan groups the pending sentences into units. Jobs already pinned to the
// fallback provider skip the batch path.
func (p *Producer) plan(pending []indexed) []unit {
	useBatch := p.deps.Batch != nil && p.cfg.BatchSize > 1 &&
		!p.deps.Orchestrator.Pinned(p.deps.Job, fallback.ConcernTranslation)
	if !useBatch {
		units := make([]unit, len(pending))
		for i := range pending {
			units[i] = unit{single: &pending[i]}
		}
		return units
	}

	entries := make([]batch.Entry, len(pending))
	for i, s := range pending {
		entries[i] = batch.Entry{Index: s.index, Text: s.Text, TargetLang: s.TargetLang}
	}
	batches := batch.Group(entries, p.cfg.BatchSize)
	units := make([]unit, len(batches))
	for i := range batches {
		units[i] = unit{batch: &batches[i]}
	}
	return units
}

func (p *Producer) process(ctx context.Context, w *workerpool.Worker, u unit) []*internal.TranslationTask {
	logger, ok := w.Resource.(*slog.Logger)
	if !ok {
		logger = p.logger
	}
	if u.single != nil {
		return []*internal.TranslationTask{p.translateOne(ctx, logger, *u.single)}
	}
	return p.translateBatch(ctx, logger, *u.batch)
}

func (p *Producer) translateOne(ctx context.Context, logger *slog.Logger, s indexed) *internal.TranslationTask {
	start := time.Now()
	orch := p.deps.Orchestrator
	res := orch.TranslateSentenceSimple(ctx, p.deps.Job, translator.TranslateRequest{
		Text:            s.Text,
		SourceLang:      p.cfg.SourceLang,
		TargetLang:      s.TargetLang,
		PreviousContext: s.context,
		Glossary:        p.glossary[s.TargetLang],
	})

	t := &internal.TranslationTask{
		Index:          s.index,
		SentenceNumber: s.Number,
		Sentence:       s.Text,
		TargetLanguage: s.TargetLang,
		Translation:    res.Text(orchestrator.KindTranslation),
	}
	translitOK := true
	if p.cfg.Transliterate && res.OK() {
		tr := orch.Transliterate(ctx, p.deps.Job, res.Value, s.TargetLang)
		t.Transliteration = tr.Text(orchestrator.KindTransliteration)
		translitOK = tr.OK() && !tr.Degraded
	}

	outcome := "ok"
	switch {
	case !res.OK():
		outcome = "failed"
		logger.Warn("[pipeline] sentence failed", "index", s.index, "reason", res.Failure)
	case res.Degraded:
		outcome = "degraded"
	default:
		if translitOK {
			p.remember(ctx, t, res.Provider, res.Model)
		}
	}
	p.finish(ctx, t, outcome, time.Since(start))
	return t
}

func (p *Producer) translateBatch(ctx context.Context, logger *slog.Logger, b batch.Batch) []*internal.TranslationTask {
	// The batch client talks to the primary provider; a pin recorded by an
	// earlier unit moves the rest of the job to the single path.
	if p.deps.Orchestrator.Pinned(p.deps.Job, fallback.ConcernTranslation) {
		logger.Debug("[pipeline] job pinned, batch goes through single path", "size", len(b.Entries))
		tasks := make([]*internal.TranslationTask, 0, len(b.Entries))
		for _, e := range b.Entries {
			tasks = append(tasks, p.translateOne(ctx, logger, p.lookupPending(e)))
		}
		return tasks
	}

	start := time.Now()
	outcome := p.deps.Batch.Translate(ctx, b, batch.Options{
		SourceLang:    p.cfg.SourceLang,
		Transliterate: p.cfg.Transliterate,
		Glossary:      p.glossary[b.TargetLang],
	})

	byIndex := make(map[int]indexed, len(b.Entries))
	for _, e := range b.Entries {
		byIndex[e.Index] = p.lookupPending(e)
	}

	tasks := make([]*internal.TranslationTask, 0, len(b.Entries))
	for _, e := range b.Entries {
		r, ok := outcome.Accepted[e.Index]
		if !ok {
			continue
		}
		s := byIndex[e.Index]
		t := &internal.TranslationTask{
			Index:          e.Index,
			SentenceNumber: s.Number,
			Sentence:       e.Text,
			TargetLanguage: e.TargetLang,
			Translation:    r.Translation,
		}
		translitOK := true
		if p.cfg.Transliterate {
			t.Transliteration = r.Transliteration
			if t.Transliteration == "" {
				tr := p.deps.Orchestrator.Transliterate(ctx, p.deps.Job, r.Translation, e.TargetLang)
				t.Transliteration = tr.Text(orchestrator.KindTransliteration)
				translitOK = tr.OK() && !tr.Degraded
			}
		}
		if translitOK {
			p.remember(ctx, t, "batch", "")
		}
		p.count(func(st *Stats) { st.Batched++ })
		p.finish(ctx, t, "ok", time.Since(start))
		tasks = append(tasks, t)
	}

	for _, e := range outcome.FailedEntries(b) {
		logger.Debug("[pipeline] batch item falls back to single path", "index", e.Index, "reason", outcome.Failed[e.Index])
		tasks = append(tasks, p.translateOne(ctx, logger, byIndex[e.Index]))
	}
	return tasks
}

// lookupPending rebuilds the single-path view of a batch entry.
func (p *Producer) lookupPending(e batch.Entry) indexed {
	s := indexed{Sentence: Sentence{Text: e.Text, TargetLang: e.TargetLang}, index: e.Index}
	if e.Index >= 0 && e.Index < len(p.input) {
		s.Sentence = p.input[e.Index]
		for j := e.Index - 1; j >= 0; j-- {
			if p.input[j].TargetLang == e.TargetLang {
				s.context = chunker.ExtractContext(p.input[j].Text, p.cfg.ContextWords)
				break
			}
		}
	}
	return s
}

// finish aligns the two tracks and records the task.
func (p *Producer) finish(ctx context.Context, t *internal.TranslationTask, outcome string, elapsed time.Duration) {
	if p.cfg.Align && t.Transliteration != "" &&
		!orchestrator.IsFailure(t.Translation) && !orchestrator.IsFailure(t.Transliteration) {
		if tr, tl, changed := p.aligner.AlignTokenCounts(t.Translation, t.Transliteration, t.TargetLanguage); changed {
			t.Translation, t.Transliteration = tr, tl
		}
	}
	p.count(func(st *Stats) {
		st.Total++
		switch outcome {
		case "failed":
			st.Failed++
		case "degraded":
			st.Degraded++
		}
	})
	p.deps.Metrics.ItemDone(ctx, t.TargetLanguage, outcome, elapsed)
}

func (p *Producer) remember(ctx context.Context, t *internal.TranslationTask, provider, model string) {
	if p.deps.Memory == nil || !p.cfg.UseMemory {
		return
	}
	err := p.deps.Memory.Remember(ctx, store.MemoryEntry{
		SourceText:      t.Sentence,
		SourceLang:      p.cfg.SourceLang,
		TargetLang:      t.TargetLanguage,
		Translation:     t.Translation,
		Transliteration: t.Transliteration,
		Provider:        provider,
		Model:           model,
	})
	if err != nil {
		p.logger.Warn("[pipeline] failed to remember translation", "index", t.Index, "error", err)
	}
}

// failedTasks turns a unit that died into failure tasks so every sentence
// still reaches the consumers.
func (p *Producer) failedTasks(u unit, err error) []*internal.TranslationTask {
	reason := err.Error()
	var pe *workerpool.PanicError
	if errors.As(err, &pe) {
		reason = fmt.Sprintf("panic: %v", pe.Value)
	}
	reason = strings.ReplaceAll(reason, "\n", " ")

	var sentences []indexed
	if u.single != nil {
		sentences = append(sentences, *u.single)
	} else {
		for _, e := range u.batch.Entries {
			sentences = append(sentences, p.lookupPending(e))
		}
	}
	tasks := make([]*internal.TranslationTask, 0, len(sentences))
	for _, s := range sentences {
		t := &internal.TranslationTask{
			Index:          s.index,
			SentenceNumber: s.Number,
			Sentence:       s.Text,
			TargetLanguage: s.TargetLang,
			Translation:    orchestrator.FormatFailure(orchestrator.KindTranslation, 0, reason),
		}
		p.count(func(st *Stats) { st.Total++; st.Failed++ })
		tasks = append(tasks, t)
	}
	return tasks
}

// put hands t to the consumers, retrying a short timed send until it lands
// or the run is cancelled.
func (p *Producer) put(ctx context.Context, t *internal.TranslationTask) bool {
	timer := time.NewTimer(p.cfg.PutTimeout)
	defer timer.Stop()
	for {
		if ctx.Err() != nil {
			p.count(func(st *Stats) { st.Dropped++ })
			return false
		}
		select {
		case p.out <- t:
			return true
		case <-timer.C:
			p.logger.Debug("[pipeline] output queue full, retrying", "index", t.Index)
			timer.Reset(p.cfg.PutTimeout)
		}
	}
}
