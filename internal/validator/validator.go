// Package validator decides whether an LLM candidate is an acceptable
// translation. Checks run in a fixed order and the first failing one wins;
// its reason feeds the retry prompt and the logs.
package validator

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/valpere/interlinear/internal"
	"github.com/valpere/interlinear/internal/langscript"
	"github.com/valpere/interlinear/internal/placeholder"
	"github.com/valpere/interlinear/internal/tokenizer"
)

// Reason labels a failed check.
type Reason string

const (
	ReasonPlaceholder       Reason = "placeholder"
	ReasonTransliteration   Reason = "transliteration"
	ReasonTooShort          Reason = "too_short"
	ReasonMissingDiacritics Reason = "missing_diacritics"
	ReasonScriptMismatch    Reason = "script_mismatch"
	ReasonSegmentation      Reason = "segmentation"
	ReasonGibberish         Reason = "gibberish"
	ReasonUntranslated      Reason = "untranslated"
)

// Thresholds. Exported so callers can document and log them.
const (
	// LatinTransliterationRatio is the Latin-letter share at which a
	// candidate for a non-Latin target counts as a transliteration.
	LatinTransliterationRatio = 0.6
	// ExpectedScriptRatio is the minimum share of non-Latin letters that
	// must belong to the expected script.
	ExpectedScriptRatio = 0.85
	// ForeignScriptRatio caps any other script relative to the expected one.
	ForeignScriptRatio = 0.10
	// MinLengthRatio and MinDenseLengthRatio bound candidate/source letters.
	MinLengthRatio      = 0.3
	MinDenseLengthRatio = 0.15
	// LongSourceLetters marks sources long enough for the absolute floors.
	LongSourceLetters   = 200
	MinLongLetters      = 20
	MinLongDenseLetters = 8

	minSourceLetters  = 4
	maxRepeatRun      = 8
	repeatTokenRatio  = 0.5
	minDiversityRunes = 20
	minDiversity      = 0.1
	minDetectRunes    = 20
	minIdentityWords  = 3
)

// Verdict is the outcome of a validation. Score ranks failed candidates
// against each other: 1 for a pass, lower for worse failures.
type Verdict struct {
	OK     bool
	Reason Reason
	Detail string
	Score  float64
}

func pass() Verdict { return Verdict{OK: true, Score: 1} }

func fail(reason Reason, score float64, format string, args ...any) Verdict {
	if score < 0 {
		score = 0
	}
	if score > 0.99 {
		score = 0.99
	}
	return Verdict{Reason: reason, Score: score, Detail: fmt.Sprintf(format, args...)}
}

func (v Verdict) String() string {
	if v.OK {
		return "ok"
	}
	if v.Detail == "" {
		return string(v.Reason)
	}
	return fmt.Sprintf("%s: %s", v.Reason, v.Detail)
}

// IsScriptFailure reports whether the candidate was rejected for being in
// the wrong writing system.
func (v Verdict) IsScriptFailure() bool {
	return v.Reason == ReasonTransliteration || v.Reason == ReasonScriptMismatch
}

// Candidate is one translation to check against its source sentence.
type Candidate struct {
	Source     string
	Text       string
	SourceLang string
	TargetLang string
}

// LanguageDetector is satisfied by *detector.Detector.
type LanguageDetector interface {
	DetectISO(text string) (string, bool)
}

type Validator struct {
	rules    *langscript.Rules
	detector LanguageDetector
	tok      *tokenizer.Tokenizer
}

type Option func(*Validator)

// WithRules replaces the built-in per-language tuning.
func WithRules(r *langscript.Rules) Option {
	return func(v *Validator) {
		if r != nil {
			v.rules = r
		}
	}
}

// WithTokenizer sets the tokenizer used by the segmentation check.
func WithTokenizer(t *tokenizer.Tokenizer) Option {
	return func(v *Validator) {
		if t != nil {
			v.tok = t
		}
	}
}

// WithDetector enables the language-detection half of the untranslated check.
func WithDetector(d LanguageDetector) Option {
	return func(v *Validator) { v.detector = d }
}

func New(opts ...Option) *Validator {
	v := &Validator{rules: langscript.DefaultRules(), tok: tokenizer.New()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs every check in order and returns the first failure.
// Links, code spans and markup are ignored; a source made only of them
// accepts any non-empty candidate.
func (v *Validator) Validate(c Candidate) Verdict {
	if verdict := v.checkPlaceholder(c, strings.TrimSpace(c.Text)); !verdict.OK {
		return verdict
	}
	if placeholder.Strip(c.Source) == "" {
		return pass()
	}
	c.Source, c.Text = placeholder.Strip(c.Source), placeholder.Strip(c.Text)
	text := c.Text
	checks := []func(Candidate, string) Verdict{
		v.checkPlaceholder,
		v.checkTransliteration,
		v.checkTooShort,
		v.checkDiacritics,
		v.checkScript,
		v.checkSegmentation,
		v.checkGibberish,
		v.checkUntranslated,
	}
	for _, check := range checks {
		if verdict := check(c, text); !verdict.OK {
			return verdict
		}
	}
	return pass()
}

// ValidateTransliteration checks a romanized rendering of source: it must
// be mostly Latin and not obviously broken.
func (v *Validator) ValidateTransliteration(source, text string) Verdict {
	text = placeholder.Strip(text)
	if verdict := v.checkPlaceholder(Candidate{Source: source}, text); !verdict.OK {
		return verdict
	}
	letters := langscript.Letters(text)
	if letters > 0 {
		latin := langscript.CountIn(text, langscript.Latin)
		if ratio := float64(latin) / float64(letters); ratio < LatinTransliterationRatio {
			return fail(ReasonScriptMismatch, ratio, "expected %s, found %s", langscript.Latin.Name(), langscript.Dominant(text).Name())
		}
	}
	return v.checkGibberish(Candidate{}, text)
}

var placeholderValues = map[string]bool{
	"n/a": true, "na": true, "none": true, "null": true, "nil": true,
	"...": true, "…": true, "-": true, "--": true, "?": true, "???": true,
	"translation": true, "transliteration": true, "translated text": true,
	"[translation]": true, "<translation>": true, "{translation}": true,
	"[transliteration]": true, "<transliteration>": true,
	"your translation here": true, "text": true, "<<<begin_text>>>": true,
	"<<<end_text>>>": true,
}

func (v *Validator) checkPlaceholder(_ Candidate, text string) Verdict {
	if text == "" {
		return fail(ReasonPlaceholder, 0, "empty candidate")
	}
	if internal.IsFailure(text) {
		return fail(ReasonPlaceholder, 0, "failure marker")
	}
	lower := strings.ToLower(text)
	if placeholderValues[lower] || placeholderValues[strings.Trim(lower, `"'`)] {
		return fail(ReasonPlaceholder, 0, "placeholder value %q", text)
	}
	if langscript.Letters(text) == 0 && !containsDigit(text) {
		return fail(ReasonPlaceholder, 0, "no letters")
	}
	return pass()
}

func (v *Validator) checkTransliteration(c Candidate, text string) Verdict {
	expected := langscript.ForLanguage(c.TargetLang)
	if expected == langscript.Unknown || expected.IsLatin() {
		return pass()
	}
	letters := langscript.Letters(text)
	if letters == 0 {
		return pass()
	}
	latin := langscript.CountIn(text, langscript.Latin)
	ratio := float64(latin) / float64(letters)
	if ratio >= LatinTransliterationRatio {
		return fail(ReasonTransliteration, 0.1*(1-ratio), "%.0f%% Latin letters, expected %s", ratio*100, expected.Name())
	}
	return pass()
}

func (v *Validator) checkTooShort(c Candidate, text string) Verdict {
	src := langscript.Letters(c.Source)
	if src < minSourceLetters {
		return pass()
	}
	got := langscript.Letters(text)
	target := langscript.ForLanguage(c.TargetLang)
	source := langscript.Dominant(c.Source)

	minRatio := MinLengthRatio
	floor := MinLongLetters
	if target.Dense() && !source.Dense() {
		minRatio = MinDenseLengthRatio
		floor = MinLongDenseLetters
	}
	if source.Dense() && !target.Dense() {
		return pass()
	}

	ratio := float64(got) / float64(src)
	if ratio < minRatio {
		return fail(ReasonTooShort, 0.3+0.3*ratio/minRatio, "%d letters for a %d-letter source", got, src)
	}
	if src >= LongSourceLetters && got < floor {
		return fail(ReasonTooShort, 0.3, "%d letters for a %d-letter source", got, src)
	}
	return pass()
}

func (v *Validator) checkDiacritics(c Candidate, text string) Verdict {
	rule, ok := v.rules.DiacriticFor(c.TargetLang)
	if !ok {
		return pass()
	}
	if langscript.ForLanguage(c.TargetLang) != langscript.Latin || langscript.Dominant(text) != langscript.Latin {
		return pass()
	}
	if langscript.Letters(text) < rule.MinLetters {
		return pass()
	}
	if hasDiacritics(text, rule.Extra) {
		return pass()
	}
	return fail(ReasonMissingDiacritics, 0.6, "no diacritics in %s text", langscript.Base(c.TargetLang))
}

func hasDiacritics(text, extra string) bool {
	if extra != "" && strings.ContainsAny(text, extra) {
		return true
	}
	for _, r := range norm.NFD.String(text) {
		if unicode.Is(unicode.Mn, r) {
			return true
		}
	}
	return false
}

func (v *Validator) checkScript(c Candidate, text string) Verdict {
	expected := langscript.ForLanguage(c.TargetLang)
	if expected == langscript.Unknown {
		return pass()
	}
	counts := langscript.Counts(text)

	if expected.IsLatin() {
		letters := langscript.Letters(text)
		if letters == 0 {
			return pass()
		}
		ratio := float64(counts[langscript.Latin]) / float64(letters)
		if ratio < 0.5 {
			return fail(ReasonScriptMismatch, 0.2+0.2*ratio, "expected %s, found %s", expected.Name(), langscript.Dominant(text).Name())
		}
		return pass()
	}

	inExpected := make(map[langscript.Script]bool)
	for _, b := range expected.Bases() {
		inExpected[b] = true
	}

	var want, nonLatin int
	offender, offenderN := langscript.Unknown, 0
	for s, n := range counts {
		if s == langscript.Latin {
			continue
		}
		nonLatin += n
		if inExpected[s] {
			want += n
			continue
		}
		if n > offenderN || (n == offenderN && s < offender) {
			offender, offenderN = s, n
		}
	}
	if nonLatin == 0 {
		return pass()
	}

	ratio := float64(want) / float64(nonLatin)
	if ratio < ExpectedScriptRatio {
		return fail(ReasonScriptMismatch, 0.2+0.2*ratio, "expected %s, found %s", expected.Name(), offender.Name())
	}
	if float64(offenderN) > ForeignScriptRatio*float64(want) {
		return fail(ReasonScriptMismatch, 0.2+0.2*ratio, "expected %s, found %s", expected.Name(), offender.Name())
	}
	return pass()
}

func (v *Validator) checkSegmentation(c Candidate, text string) Verdict {
	bounds, ok := v.rules.SegmentationFor(c.TargetLang)
	if !ok {
		return pass()
	}
	words := len(tokenizer.Words(c.Source))
	if words < 2 {
		return pass()
	}
	tokens := v.tok.Tokenize(text, c.TargetLang)
	if len(tokens) == 0 {
		return fail(ReasonSegmentation, 0.4, "no tokens")
	}

	ratio := float64(len(tokens)) / float64(words)
	if ratio < bounds.MinTokenRatio {
		return fail(ReasonSegmentation, 0.4+0.2*ratio/bounds.MinTokenRatio, "%d tokens for %d source words", len(tokens), words)
	}
	if bounds.MaxTokenRatio > 0 && ratio > bounds.MaxTokenRatio {
		return fail(ReasonSegmentation, 0.4, "%d tokens for %d source words", len(tokens), words)
	}

	short := 0
	for _, tok := range tokens {
		if tokenizer.GraphemeLen(tok) <= bounds.ShortTokenLen {
			short++
		}
	}
	if shortRatio := float64(short) / float64(len(tokens)); shortRatio > bounds.MaxShortTokenRatio {
		return fail(ReasonSegmentation, 0.5*(1-shortRatio), "%.0f%% single-character tokens", shortRatio*100)
	}
	return pass()
}

func (v *Validator) checkGibberish(_ Candidate, text string) Verdict {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) >= 4 {
		freq := make(map[string]int, len(fields))
		top := 0
		for _, f := range fields {
			freq[f]++
			if freq[f] > top {
				top = freq[f]
			}
		}
		if float64(top)/float64(len(fields)) > repeatTokenRatio {
			return fail(ReasonGibberish, 0.2, "token repeated %d of %d times", top, len(fields))
		}
	}

	var prev rune
	run := 0
	for _, r := range text {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			prev, run = 0, 0
			continue
		}
		if r == prev {
			run++
		} else {
			prev, run = r, 1
		}
		if run >= maxRepeatRun {
			return fail(ReasonGibberish, 0.2, "character %q repeated %d times", r, run)
		}
	}

	total := 0
	distinct := make(map[rune]struct{})
	for _, r := range text {
		if unicode.IsLetter(r) {
			total++
			distinct[r] = struct{}{}
		}
	}
	if total >= minDiversityRunes && float64(len(distinct))/float64(total) < minDiversity {
		return fail(ReasonGibberish, 0.2, "%d distinct letters in %d", len(distinct), total)
	}
	return pass()
}

func (v *Validator) checkUntranslated(c Candidate, text string) Verdict {
	if langscript.ForLanguage(c.TargetLang) != langscript.Latin {
		return pass()
	}
	src := strings.TrimSpace(c.Source)
	if len(tokenizer.Words(src)) >= minIdentityWords && strings.EqualFold(norm.NFC.String(src), norm.NFC.String(text)) {
		return fail(ReasonUntranslated, 0.1, "candidate repeats the source")
	}

	if v.detector == nil || c.SourceLang == "" {
		return pass()
	}
	source, target := langscript.Base(c.SourceLang), langscript.Base(c.TargetLang)
	if source == "" || source == target || len([]rune(text)) < minDetectRunes {
		return pass()
	}
	if detected, ok := v.detector.DetectISO(text); ok && detected == source {
		return fail(ReasonUntranslated, 0.1, "candidate detected as %s", source)
	}
	return pass()
}

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
