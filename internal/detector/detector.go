// Package detector wraps lingua-go for source-language auto-detection and
// for spotting candidates that were left in the source language.
package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

type Detector struct {
	detector lingua.LanguageDetector
}

// New builds a detector over every language lingua knows. Building it loads
// the language models lazily, but the instance should still be shared.
func New() *Detector {
	detector := lingua.NewLanguageDetectorBuilder().
		FromAllLanguages().
		Build()

	return &Detector{detector: detector}
}

// NewFor builds a detector restricted to the given ISO 639-1 codes. Unknown
// codes are ignored; with fewer than two usable codes it falls back to New.
func NewFor(isoCodes ...string) *Detector {
	var codes []lingua.IsoCode639_1
	seen := make(map[lingua.Language]bool)
	for _, c := range isoCodes {
		code := lingua.GetIsoCode639_1FromValue(strings.ToUpper(strings.TrimSpace(c)))
		lang := lingua.GetLanguageFromIsoCode639_1(code)
		if lang == lingua.Unknown || seen[lang] {
			continue
		}
		seen[lang] = true
		codes = append(codes, code)
	}
	if len(codes) < 2 {
		return New()
	}

	detector := lingua.NewLanguageDetectorBuilder().
		FromIsoCodes639_1(codes...).
		Build()

	return &Detector{detector: detector}
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if strings.TrimSpace(text) == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

// DetectISO returns the lower-case ISO 639-1 code of text's language.
func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

// Confidence returns lingua's confidence in [0, 1] that text is written in
// the language with the given ISO 639-1 code. Unknown codes score 0.
func (d *Detector) Confidence(text, isoCode string) float64 {
	code := lingua.GetIsoCode639_1FromValue(strings.ToUpper(strings.TrimSpace(isoCode)))
	lang := lingua.GetLanguageFromIsoCode639_1(code)
	if lang == lingua.Unknown || strings.TrimSpace(text) == "" {
		return 0
	}
	return d.detector.ComputeLanguageConfidence(text, lang)
}
