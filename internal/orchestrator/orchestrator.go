// Package orchestrator drives one sentence through the primary provider, the
// quality checks and, when the job escalates, the fallback provider.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/valpere/interlinear/internal"
	"github.com/valpere/interlinear/internal/fallback"
	"github.com/valpere/interlinear/internal/llm"
	"github.com/valpere/interlinear/internal/translator"
	"github.com/valpere/interlinear/internal/validator"
)

const (
	KindTranslation     = "translation"
	KindTransliteration = "transliteration"

	DefaultFallbackAttempts = 2
)

// FormatFailure renders the failure text stored in a task when a sentence
// could not be processed.
func FormatFailure(kind string, retries int, reason string) string {
	return internal.FailureText(kind, retries, reason)
}

// IsFailure reports whether s was produced by FormatFailure.
func IsFailure(s string) bool {
	return internal.IsFailure(s)
}

// Result is the outcome of one unit of work. Exactly one of Value and
// Failure is set.
type Result struct {
	Value    string
	Failure  string
	Provider string
	Model    string
	Attempts int
	// Degraded marks a Value that never passed validation and was kept as
	// the best candidate seen.
	Degraded bool
	Verdict  validator.Verdict
	Elapsed  time.Duration
}

func (r Result) OK() bool { return r.Failure == "" }

// Text returns the value, or the failure text for kind.
func (r Result) Text(kind string) string {
	if r.OK() {
		return r.Value
	}
	return FormatFailure(kind, r.Attempts, r.Failure)
}

type Orchestrator struct {
	primary          translator.TranslationService
	fallback         translator.TranslationService
	translit         translator.Transliterator
	fallbackTranslit translator.Transliterator

	validator        *validator.Validator
	policy           fallback.Policy
	fallbackAttempts int
	reporter         fallback.Reporter
	logger           *slog.Logger
}

type Option func(*Orchestrator)

// WithFallback sets the provider a job is pinned to after escalation.
func WithFallback(svc translator.TranslationService) Option {
	return func(o *Orchestrator) { o.fallback = svc }
}

// WithTransliterators sets the primary and fallback romanizers. Either may
// be nil.
func WithTransliterators(primary, fb translator.Transliterator) Option {
	return func(o *Orchestrator) {
		o.translit = primary
		o.fallbackTranslit = fb
	}
}

func WithValidator(v *validator.Validator) Option {
	return func(o *Orchestrator) { o.validator = v }
}

func WithPolicy(p fallback.Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

func WithFallbackAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.fallbackAttempts = n
		}
	}
}

// WithReporter is notified once per job and concern when a pin is recorded.
func WithReporter(r fallback.Reporter) Option {
	return func(o *Orchestrator) { o.reporter = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func New(primary translator.TranslationService, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		primary:          primary,
		policy:           fallback.DefaultPolicy(),
		fallbackAttempts: DefaultFallbackAttempts,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.validator == nil {
		o.validator = validator.New()
	}
	if o.reporter == nil {
		o.reporter = fallback.LogReporter{Logger: o.logger}
	}
	return o
}

// Validator returns the validator candidates are checked with.
func (o *Orchestrator) Validator() *validator.Validator { return o.validator }

// Pinned reports whether job already switched concern to the fallback
// provider.
func (o *Orchestrator) Pinned(job *internal.Job, c fallback.Concern) bool {
	_, ok := job.Fallback().Pinned(c)
	return ok
}

// TranslateSentenceSimple translates one sentence. It retries the primary
// provider with the rejection reason as feedback, escalates to the fallback
// provider when the policy says so and, if nothing passes, returns the best
// candidate seen or a failure.
func (o *Orchestrator) TranslateSentenceSimple(ctx context.Context, job *internal.Job, req translator.TranslateRequest) Result {
	try := func(svc translator.TranslationService) attemptFunc {
		return func(ctx context.Context, feedback string) attempt {
			r := req
			r.Feedback = feedback
			res, err := svc.Translate(ctx, r)
			a := attempt{model: modelOf(svc, res), err: err}
			if err != nil {
				a.trigger = classify(svc.Kind(), err)
				return a
			}
			a.text = res.TranslatedText
			a.verdict = o.validator.Validate(validator.Candidate{
				Source:     req.Text,
				Text:       res.TranslatedText,
				SourceLang: req.SourceLang,
				TargetLang: req.TargetLang,
			})
			return a
		}
	}

	primary := provider{name: o.primary.Name(), model: modelOf(o.primary, nil), try: try(o.primary)}
	var fb *provider
	if o.fallback != nil {
		fb = &provider{name: o.fallback.Name(), model: modelOf(o.fallback, nil), try: try(o.fallback)}
	}
	return o.run(ctx, job, fallback.ConcernTranslation, primary, fb)
}

// Transliterate romanizes text written in lang.
func (o *Orchestrator) Transliterate(ctx context.Context, job *internal.Job, text, lang string) Result {
	if o.translit == nil {
		return Result{Failure: "no transliterator configured"}
	}
	try := func(t translator.Transliterator) attemptFunc {
		return func(ctx context.Context, feedback string) attempt {
			res, err := t.Transliterate(ctx, translator.TransliterateRequest{Text: text, Lang: lang, Feedback: feedback})
			a := attempt{model: modelOf(t, res), err: err}
			if err != nil {
				a.trigger = classify(translator.KindLLM, err)
				return a
			}
			a.text = res.TranslatedText
			a.verdict = o.validator.ValidateTransliteration(text, res.TranslatedText)
			return a
		}
	}

	primary := provider{name: o.translit.Name(), model: modelOf(o.translit, nil), try: try(o.translit)}
	var fb *provider
	if o.fallbackTranslit != nil {
		fb = &provider{name: o.fallbackTranslit.Name(), model: modelOf(o.fallbackTranslit, nil), try: try(o.fallbackTranslit)}
	}
	return o.run(ctx, job, fallback.ConcernTransliteration, primary, fb)
}

type attempt struct {
	text    string
	model   string
	verdict validator.Verdict
	trigger fallback.Trigger
	err     error
}

func (a attempt) reason() string {
	if a.err != nil {
		return a.err.Error()
	}
	return a.verdict.String()
}

type attemptFunc func(ctx context.Context, feedback string) attempt

type provider struct {
	name  string
	model string
	try   attemptFunc
}

// best keeps the highest scoring rejected candidate.
type best struct {
	attempt
	provider string
	ok       bool
}

func (b *best) offer(a attempt, providerName string) {
	if a.err != nil || a.text == "" || a.verdict.Reason == validator.ReasonPlaceholder {
		return
	}
	if !b.ok || a.verdict.Score > b.verdict.Score {
		b.attempt = a
		b.provider = providerName
		b.ok = true
	}
}

func (o *Orchestrator) run(ctx context.Context, job *internal.Job, concern fallback.Concern, primary provider, fb *provider) Result {
	start := time.Now()
	state := job.Fallback()
	attempts := 0
	var kept best
	var last attempt

	finish := func() Result {
		elapsed := time.Since(start)
		if kept.ok {
			o.logger.Warn("[orchestrator] keeping best rejected candidate",
				"job", job.ID, "concern", string(concern), "provider", kept.provider,
				"verdict", kept.verdict.String(), "attempts", attempts)
			return Result{
				Value: kept.text, Provider: kept.provider, Model: kept.model,
				Attempts: attempts, Degraded: true, Verdict: kept.verdict, Elapsed: elapsed,
			}
		}
		reason := last.reason()
		if err := ctx.Err(); err != nil && attempts == 0 {
			reason = err.Error()
		}
		return Result{Failure: reason, Attempts: attempts, Verdict: last.verdict, Elapsed: elapsed}
	}

	succeed := func(p provider, a attempt) Result {
		return Result{
			Value: a.text, Provider: p.name, Model: a.model,
			Attempts: attempts, Verdict: a.verdict, Elapsed: time.Since(start),
		}
	}

	onFallback := func() Result {
		feedback := ""
		for i := 0; i < o.fallbackAttempts; i++ {
			if ctx.Err() != nil {
				break
			}
			attempts++
			a := fb.try(ctx, feedback)
			last = a
			if a.err == nil && a.verdict.OK {
				return succeed(*fb, a)
			}
			kept.offer(a, fb.name)
			feedback = a.reason()
			o.logger.Debug("[orchestrator] fallback attempt rejected",
				"job", job.ID, "concern", string(concern), "provider", fb.name, "attempt", i+1, "reason", feedback)
		}
		return finish()
	}

	if _, pinned := state.Pinned(concern); pinned && fb != nil {
		return onFallback()
	}

	tracker := o.policy.Track()
	feedback := ""
	for {
		if ctx.Err() != nil {
			return finish()
		}
		attempts++
		a := primary.try(ctx, feedback)
		last = a
		if a.err == nil && a.verdict.OK {
			return succeed(primary, a)
		}
		kept.offer(a, primary.name)

		trigger := a.trigger
		if a.err == nil {
			trigger = fallback.TriggerQuality
		}
		tracker.Fail(trigger, a.reason())
		feedback = a.reason()
		o.logger.Debug("[orchestrator] attempt rejected",
			"job", job.ID, "concern", string(concern), "provider", primary.name,
			"attempt", attempts, "trigger", string(trigger), "reason", feedback)

		trig, reason, escalate := tracker.Escalate()
		if !escalate {
			continue
		}
		if fb == nil {
			return finish()
		}
		d, recorded := state.Pin(fallback.Decision{
			Concern:  concern,
			Provider: fb.name,
			Model:    fb.model,
			Trigger:  trig,
			Reason:   reason,
			Elapsed:  tracker.Elapsed(),
		})
		if recorded {
			o.reporter.FallbackActivated(ctx, job.ID, d)
		}
		return onFallback()
	}
}

// classify maps a provider error onto a fallback trigger.
func classify(kind translator.Kind, err error) fallback.Trigger {
	switch {
	case kind == translator.KindMT:
		return fallback.TriggerMTError
	case errors.Is(err, context.DeadlineExceeded):
		return fallback.TriggerTimeout
	case llm.IsTransport(err):
		return fallback.TriggerTransport
	default:
		return fallback.TriggerQuality
	}
}

type modeler interface{ Model() string }

func modelOf(svc any, res *translator.ServiceResult) string {
	if m := res.Model(); m != "" {
		return m
	}
	if m, ok := svc.(modeler); ok {
		return m.Model()
	}
	return ""
}
