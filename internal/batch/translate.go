package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/valpere/interlinear/internal/postprocess"
	"github.com/valpere/interlinear/internal/translator"
	"github.com/valpere/interlinear/internal/validator"
)

// DefaultDecodeRetries bounds whole-batch retries after a decode failure.
const DefaultDecodeRetries = 2

// Completer is the gateway call the batch path needs; *llm.Client has it.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type Options struct {
	SourceLang    string
	Transliterate bool
	Glossary      map[string]string
}

// Outcome splits a batch into accepted results and entries that must go
// through the single-sentence path. Both maps are keyed by Entry.Index.
type Outcome struct {
	Accepted map[int]Result
	Failed   map[int]string
}

// FailedEntries returns the entries to retry one by one, in input order.
func (o Outcome) FailedEntries(b Batch) []Entry {
	var out []Entry
	for _, e := range b.Entries {
		if _, ok := o.Failed[e.Index]; ok {
			out = append(out, e)
		}
	}
	return out
}

type Translator struct {
	client        Completer
	validator     *validator.Validator
	artifacts     *ArtifactLog
	decodeRetries int
	logger        *slog.Logger
}

type Option func(*Translator)

func WithArtifactLog(l *ArtifactLog) Option {
	return func(t *Translator) { t.artifacts = l }
}

func WithDecodeRetries(n int) Option {
	return func(t *Translator) {
		if n >= 0 {
			t.decodeRetries = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(t *Translator) { t.logger = l }
}

func NewTranslator(client Completer, v *validator.Validator, opts ...Option) *Translator {
	t := &Translator{
		client:        client,
		validator:     v,
		decodeRetries: DefaultDecodeRetries,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Translate sends the batch, re-sending only the items that could not be
// decoded. Items that decode but fail validation are not re-sent; they are
// reported in Outcome.Failed together with the reason.
func (t *Translator) Translate(ctx context.Context, b Batch, opts Options) Outcome {
	out := Outcome{Accepted: make(map[int]Result), Failed: make(map[int]string)}
	system := Prompt(opts.SourceLang, b.TargetLang, opts.Transliterate, opts.Glossary)

	pending := b.Items()
	lastErr := "not attempted"
	for attempt := 1; attempt <= t.decodeRetries+1 && len(pending) > 0; attempt++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err().Error()
			break
		}

		results, err := t.send(ctx, b, pending, system, attempt)
		if err != nil {
			lastErr = err.Error()
			t.logger.WarnContext(ctx, "[batch] attempt failed",
				"target", b.TargetLang, "items", len(pending), "attempt", attempt, "error", err)
			continue
		}

		var undecoded []Item
		for _, it := range pending {
			r, ok := results[it.ID]
			if !ok {
				undecoded = append(undecoded, it)
				continue
			}
			entry, _ := b.Entry(it.ID)
			t.accept(entry, r, opts, &out)
		}
		pending = undecoded
		lastErr = "item missing from response"
	}

	for _, it := range pending {
		if entry, ok := b.Entry(it.ID); ok {
			out.Failed[entry.Index] = "batch: " + lastErr
		}
	}
	return out
}

func (t *Translator) send(ctx context.Context, b Batch, items []Item, system string, attempt int) (map[int]Result, error) {
	request, err := EncodeRequest(items)
	if err != nil {
		return nil, err
	}
	user := postprocess.Wrap(request)

	start := time.Now()
	raw, err := t.client.Complete(ctx, system, user)
	record := Attempt{
		TargetLang:   b.TargetLang,
		Attempt:      attempt,
		Items:        items,
		SystemPrompt: system,
		UserPrompt:   user,
		Response:     raw,
		Elapsed:      time.Since(start),
	}
	if err != nil {
		record.Error = err.Error()
		t.artifacts.Write(record)
		return nil, fmt.Errorf("batch request: %w", err)
	}

	results, err := Decode(raw, items)
	if err != nil {
		record.Error = err.Error()
	}
	t.artifacts.Write(record)
	return results, err
}

func (t *Translator) accept(e Entry, r Result, opts Options, out *Outcome) {
	r.Translation = postprocess.Clean(r.Translation)
	verdict := t.validator.Validate(validator.Candidate{
		Source:     e.Text,
		Text:       r.Translation,
		SourceLang: opts.SourceLang,
		TargetLang: e.TargetLang,
	})
	if !verdict.OK {
		out.Failed[e.Index] = verdict.String()
		return
	}

	r.Transliteration = strings.TrimSpace(r.Transliteration)
	if opts.Transliterate && r.Transliteration != "" {
		if v := t.validator.ValidateTransliteration(r.Translation, r.Transliteration); !v.OK {
			r.Transliteration = ""
		}
	}
	if !opts.Transliterate {
		r.Transliteration = ""
	}
	out.Accepted[e.Index] = r
}

// Prompt builds the system prompt of a batch request.
func Prompt(sourceLang, targetLang string, transliterate bool, glossary map[string]string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are a professional translator. The text between %s and %s is a JSON object whose items hold sentences in %s.\n",
		postprocess.BeginMarker, postprocess.EndMarker, translator.LanguageName(sourceLang))
	fmt.Fprintf(&sb, "Translate every item's text to %s.", translator.LanguageName(targetLang))
	if transliterate {
		sb.WriteString(" Also give a Latin-script transliteration of each translation, one romanized word per translated word, syllables of one word joined with hyphens.")
	}
	sb.WriteString("\nRespond with JSON only, no prose and no code fence, in exactly this shape:\n")
	if transliterate {
		sb.WriteString(`{"items":[{"id":1,"translation":"...","transliteration":"..."}]}`)
	} else {
		sb.WriteString(`{"items":[{"id":1,"translation":"..."}]}`)
	}
	sb.WriteString("\nKeep every id unchanged and return exactly one item per input item.")

	if len(glossary) > 0 {
		terms := make([]string, 0, len(glossary))
		for src := range glossary {
			terms = append(terms, src)
		}
		sort.Strings(terms)
		sb.WriteString("\n\nTERMINOLOGY (use these exact translations):\n")
		for _, src := range terms {
			fmt.Fprintf(&sb, "  %s → %s\n", src, glossary[src])
		}
	}
	return sb.String()
}
