// Package tokenizer splits sentences into the word-level tokens used for
// highlighting. Whitespace is trusted for spaced scripts; continuous scripts
// fall back to a dictionary segmenter, then script runs, then grapheme
// clusters.
package tokenizer

import (
	"strings"
	"sync"
	"unicode"

	"github.com/rivo/uniseg"

	"github.com/valpere/interlinear/internal/langscript"
)

// latinHeavyRatio is the share of Latin letters above which a hyphenated
// string is treated as a transliteration and split on hyphens.
const latinHeavyRatio = 0.8

// Segmenter splits unspaced text of one language into words.
type Segmenter interface {
	Segment(text string) []string
}

// Tokenizer holds the optional per-language segmenters. The zero value is
// ready to use and has none registered.
type Tokenizer struct {
	mu         sync.RWMutex
	segmenters map[string]Segmenter
}

// New returns a Tokenizer without segmenters.
func New() *Tokenizer {
	return &Tokenizer{segmenters: make(map[string]Segmenter)}
}

// Register installs a segmenter for a language. It is used before the
// script-run and grapheme fallbacks.
func (t *Tokenizer) Register(lang string, s Segmenter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.segmenters == nil {
		t.segmenters = make(map[string]Segmenter)
	}
	t.segmenters[langscript.Base(lang)] = s
}

func (t *Tokenizer) segmenter(lang string) Segmenter {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.segmenters[langscript.Base(lang)]
}

// Tokenize is a convenience wrapper around a Tokenizer with no segmenters.
func Tokenize(text, lang string) []string {
	var t Tokenizer
	return t.Tokenize(text, lang)
}

// Tokenize returns the ordered tokens of text. lang may be empty, in which
// case the dominant script of text decides how it is split.
func (t *Tokenizer) Tokenize(text, lang string) []string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}

	script := langscript.ForLanguage(lang)
	if script == langscript.Unknown || !script.Continuous() {
		// The language may be unknown or mislabeled; look at the text.
		if dom := langscript.Dominant(text); dom.Continuous() || script == langscript.Unknown {
			script = dom
		}
	}

	if !script.Continuous() {
		// Hyphens join the syllables of one word in aligned transliterations
		// ("ni-hao shi-jie"), so only a lone hyphenated string is split.
		if len(fields) == 1 {
			return splitLatinHyphens(fields[0])
		}
		return fields
	}

	if len(fields) > 1 && !mostlyShort(fields, script) {
		return fields
	}

	return t.segment(strings.Join(fields, ""), lang)
}

func (t *Tokenizer) segment(text, lang string) []string {
	if seg := t.segmenter(lang); seg != nil {
		if tokens := seg.Segment(text); len(tokens) > 0 {
			return tokens
		}
	}
	if runs := scriptRuns(text); len(runs) > 1 {
		return runs
	}
	return Graphemes(text)
}

// mostlyShort reports whether more than half of the whitespace tokens are
// implausibly short for the script, which means the text was spaced per
// character rather than per word.
func mostlyShort(fields []string, script langscript.Script) bool {
	limit := 2
	if script.CJK() {
		limit = 1
	}
	short := 0
	for _, f := range fields {
		if GraphemeLen(f) <= limit {
			short++
		}
	}
	return short*2 > len(fields)
}

// runClass groups runes for scriptRuns. Letters and marks carry their
// script, digits share one class, everything else breaks a run.
func runClass(r rune) (langscript.Script, bool) {
	switch {
	case unicode.IsDigit(r):
		return "digit", true
	case unicode.IsLetter(r) || unicode.IsMark(r):
		return langscript.Of(r), true
	}
	return langscript.Unknown, false
}

// scriptRuns splits text into maximal runs of the same script. Combining
// marks without a script of their own stay with the preceding rune.
func scriptRuns(text string) []string {
	var runs []string
	var cur strings.Builder
	var curClass langscript.Script

	flush := func() {
		if cur.Len() > 0 {
			runs = append(runs, cur.String())
			cur.Reset()
		}
	}

	for _, r := range text {
		class, ok := runClass(r)
		if !ok {
			flush()
			continue
		}
		if class == langscript.Unknown && unicode.IsMark(r) && cur.Len() > 0 {
			cur.WriteRune(r)
			continue
		}
		if cur.Len() > 0 && class != curClass {
			flush()
		}
		curClass = class
		cur.WriteRune(r)
	}
	flush()
	return runs
}

// Graphemes splits text into user-perceived characters, dropping clusters
// made only of spaces or punctuation.
func Graphemes(text string) []string {
	var out []string
	g := uniseg.NewGraphemes(text)
	for g.Next() {
		cluster := g.Str()
		if hasWordRune(cluster) {
			out = append(out, cluster)
		}
	}
	return out
}

// GraphemeLen returns the number of grapheme clusters in s.
func GraphemeLen(s string) int {
	return uniseg.GraphemeClusterCount(s)
}

// Words splits source text on whitespace, used to size expectations for
// the translated side.
func Words(text string) []string {
	return strings.Fields(text)
}

func hasWordRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) {
			return true
		}
	}
	return false
}

// splitLatinHyphens splits "xin-chào-bạn" shaped strings on hyphens, but
// only when the string is mostly Latin letters.
func splitLatinHyphens(field string) []string {
	if !strings.Contains(field, "-") || !LatinHeavy(field) {
		return []string{field}
	}
	var parts []string
	for _, p := range strings.Split(field, "-") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return []string{field}
	}
	return parts
}

// LatinHeavy reports whether at least 80% of the letters in s are Latin.
func LatinHeavy(s string) bool {
	letters := langscript.Letters(s)
	if letters == 0 {
		return false
	}
	latin := langscript.CountIn(s, langscript.Latin)
	return float64(latin)/float64(letters) >= latinHeavyRatio
}
