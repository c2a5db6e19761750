package langscript

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SegmentationBounds constrains the token count of a no-space language
// relative to the source sentence's word count.
type SegmentationBounds struct {
	// MinTokenRatio is the minimum tokens per source word.
	MinTokenRatio float64 `yaml:"min_token_ratio"`
	// MaxTokenRatio is the maximum tokens per source word (0 = unbounded).
	MaxTokenRatio float64 `yaml:"max_token_ratio"`
	// MaxShortTokenRatio is the largest tolerated share of short tokens.
	MaxShortTokenRatio float64 `yaml:"max_short_token_ratio"`
	// ShortTokenLen is the grapheme length at or below which a token is short.
	ShortTokenLen int `yaml:"short_token_len"`
}

// DiacriticRule describes a language whose orthography requires diacritics.
type DiacriticRule struct {
	// MinLetters is the candidate length below which the rule is not applied.
	MinLetters int `yaml:"min_letters"`
	// Extra lists precomposed letters without a canonical decomposition
	// (Polish ł, Turkish ı, Vietnamese đ) that also count as diacritics.
	Extra string `yaml:"extra"`
}

// Rules holds per-language tuning for the heuristics. The defaults are
// empirically tuned; new languages need their own numbers.
type Rules struct {
	Segmentation map[string]SegmentationBounds `yaml:"segmentation"`
	Diacritics   map[string]DiacriticRule      `yaml:"diacritics"`
}

// DefaultRules returns the built-in tuning.
func DefaultRules() *Rules {
	return &Rules{
		Segmentation: map[string]SegmentationBounds{
			"km": {MinTokenRatio: 0.6, MaxTokenRatio: 3.0, MaxShortTokenRatio: 0.10, ShortTokenLen: 1},
			"th": {MinTokenRatio: 0.5, MaxTokenRatio: 3.0, MaxShortTokenRatio: 0.15, ShortTokenLen: 1},
			"lo": {MinTokenRatio: 0.5, MaxTokenRatio: 3.0, MaxShortTokenRatio: 0.15, ShortTokenLen: 1},
			"my": {MinTokenRatio: 0.5, MaxTokenRatio: 3.0, MaxShortTokenRatio: 0.20, ShortTokenLen: 1},
			"bo": {MinTokenRatio: 0.4, MaxTokenRatio: 3.0, MaxShortTokenRatio: 0.25, ShortTokenLen: 1},
		},
		Diacritics: map[string]DiacriticRule{
			"vi": {MinLetters: 8, Extra: "đĐ"},
			"ro": {MinLetters: 40},
			"pl": {MinLetters: 40, Extra: "łŁ"},
			"cs": {MinLetters: 30},
			"sk": {MinLetters: 30},
			"tr": {MinLetters: 40, Extra: "ıİ"},
			"yo": {MinLetters: 10},
			"hu": {MinLetters: 40},
		},
	}
}

// LoadRules reads a YAML overrides file and merges it over DefaultRules.
// Entries in the file replace the defaults for the same language.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}

	var overrides Rules
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}

	rules := DefaultRules()
	for lang, b := range overrides.Segmentation {
		rules.Segmentation[Base(lang)] = b
	}
	for lang, d := range overrides.Diacritics {
		rules.Diacritics[Base(lang)] = d
	}
	return rules, nil
}

// SegmentationFor returns the bounds for a language, if it has any.
func (r *Rules) SegmentationFor(lang string) (SegmentationBounds, bool) {
	if r == nil {
		return SegmentationBounds{}, false
	}
	b, ok := r.Segmentation[Base(lang)]
	return b, ok
}

// DiacriticFor returns the diacritic requirement for a language, if any.
func (r *Rules) DiacriticFor(lang string) (DiacriticRule, bool) {
	if r == nil {
		return DiacriticRule{}, false
	}
	d, ok := r.Diacritics[Base(lang)]
	return d, ok
}
