// Package langscript maps language codes to writing systems and classifies
// runes by script. It is shared by the tokenizer, the aligner and the
// validation heuristics.
package langscript

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
)

// Script is an ISO 15924 script code.
type Script string

const (
	Unknown    Script = ""
	Latin      Script = "Latn"
	Cyrillic   Script = "Cyrl"
	Greek      Script = "Grek"
	Armenian   Script = "Armn"
	Georgian   Script = "Geor"
	Hebrew     Script = "Hebr"
	Arabic     Script = "Arab"
	Devanagari Script = "Deva"
	Bengali    Script = "Beng"
	Gurmukhi   Script = "Guru"
	Gujarati   Script = "Gujr"
	Tamil      Script = "Taml"
	Telugu     Script = "Telu"
	Kannada    Script = "Knda"
	Malayalam  Script = "Mlym"
	Sinhala    Script = "Sinh"
	Thai       Script = "Thai"
	Lao        Script = "Laoo"
	Khmer      Script = "Khmr"
	Myanmar    Script = "Mymr"
	Tibetan    Script = "Tibt"
	Ethiopic   Script = "Ethi"
	Han        Script = "Hani"
	Hiragana   Script = "Hira"
	Katakana   Script = "Kana"
	Hangul     Script = "Hang"

	// Composite writing systems made of several base scripts.
	Japanese Script = "Jpan"
	Korean   Script = "Kore"
)

// baseTables lists the rune tables of every base script Of can return.
// Order matters: Of returns the first match.
var baseTables = []struct {
	script Script
	table  *unicode.RangeTable
}{
	{Latin, unicode.Latin},
	{Cyrillic, unicode.Cyrillic},
	{Greek, unicode.Greek},
	{Armenian, unicode.Armenian},
	{Georgian, unicode.Georgian},
	{Hebrew, unicode.Hebrew},
	{Arabic, unicode.Arabic},
	{Devanagari, unicode.Devanagari},
	{Bengali, unicode.Bengali},
	{Gurmukhi, unicode.Gurmukhi},
	{Gujarati, unicode.Gujarati},
	{Tamil, unicode.Tamil},
	{Telugu, unicode.Telugu},
	{Kannada, unicode.Kannada},
	{Malayalam, unicode.Malayalam},
	{Sinhala, unicode.Sinhala},
	{Thai, unicode.Thai},
	{Lao, unicode.Lao},
	{Khmer, unicode.Khmer},
	{Myanmar, unicode.Myanmar},
	{Tibetan, unicode.Tibetan},
	{Ethiopic, unicode.Ethiopic},
	{Han, unicode.Han},
	{Hiragana, unicode.Hiragana},
	{Katakana, unicode.Katakana},
	{Hangul, unicode.Hangul},
}

var composites = map[Script][]Script{
	Japanese: {Han, Hiragana, Katakana},
	Korean:   {Hangul, Han},
}

var names = map[Script]string{
	Latin: "Latin", Cyrillic: "Cyrillic", Greek: "Greek", Armenian: "Armenian",
	Georgian: "Georgian", Hebrew: "Hebrew", Arabic: "Arabic",
	Devanagari: "Devanagari", Bengali: "Bengali", Gurmukhi: "Gurmukhi",
	Gujarati: "Gujarati", Tamil: "Tamil", Telugu: "Telugu", Kannada: "Kannada",
	Malayalam: "Malayalam", Sinhala: "Sinhala", Thai: "Thai", Lao: "Lao",
	Khmer: "Khmer", Myanmar: "Myanmar", Tibetan: "Tibetan", Ethiopic: "Ethiopic",
	Han: "Han", Hiragana: "Hiragana", Katakana: "Katakana", Hangul: "Hangul",
	Japanese: "Japanese", Korean: "Korean",
}

// Name returns the English name of the script, or the raw code when unknown.
func (s Script) Name() string {
	if n, ok := names[s]; ok {
		return n
	}
	if s == Unknown {
		return "unknown"
	}
	return string(s)
}

// Bases returns the base scripts a writing system is made of.
func (s Script) Bases() []Script {
	if c, ok := composites[s]; ok {
		return c
	}
	return []Script{s}
}

// Contains reports whether r belongs to the writing system.
func (s Script) Contains(r rune) bool {
	b := Of(r)
	if b == Unknown {
		return false
	}
	for _, base := range s.Bases() {
		if base == b {
			return true
		}
	}
	return false
}

// IsLatin reports whether the writing system is Latin.
func (s Script) IsLatin() bool { return s == Latin }

// Continuous reports whether the writing system is written without spaces
// between words.
func (s Script) Continuous() bool {
	switch s {
	case Han, Japanese, Hiragana, Katakana, Thai, Lao, Khmer, Myanmar, Tibetan:
		return true
	}
	return false
}

// CJK reports whether one character roughly corresponds to one syllable.
func (s Script) CJK() bool {
	switch s {
	case Han, Japanese, Hiragana, Katakana:
		return true
	}
	return false
}

// Dense reports whether the script packs a word into very few characters,
// which changes what a plausible source/target length ratio looks like.
func (s Script) Dense() bool {
	return s == Han || s == Japanese || s == Korean
}

// Of classifies a single rune into a base script. Runes outside every known
// table (digits, punctuation, symbols) return Unknown.
func Of(r rune) Script {
	if r < 0x80 {
		if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') {
			return Latin
		}
		return Unknown
	}
	for _, bt := range baseTables {
		if unicode.Is(bt.table, r) {
			return bt.script
		}
	}
	return Unknown
}

// Base returns the lower-case primary language subtag ("pt-BR" -> "pt").
func Base(lang string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if normalized == "" {
		return ""
	}
	if tag, err := language.Parse(normalized); err == nil {
		base, _ := tag.Base()
		return base.String()
	}
	return strings.ToLower(strings.SplitN(normalized, "-", 2)[0])
}

// ForLanguage returns the expected writing system for a language code
// such as "ru", "zh-TW" or "sr_Latn".
func ForLanguage(lang string) Script {
	normalized := strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if normalized == "" {
		return Unknown
	}
	tag, err := language.Parse(normalized)
	if err != nil {
		return Unknown
	}
	script, conf := tag.Script()
	if conf == language.No {
		return Unknown
	}
	switch code := script.String(); code {
	case "Hans", "Hant":
		return Han
	case "Zzzz", "":
		return Unknown
	default:
		return Script(code)
	}
}

// Counts returns the number of letters per base script in text. Marks are
// counted with the letter they belong to only when they are letters
// themselves; digits and punctuation are ignored.
func Counts(text string) map[Script]int {
	counts := make(map[Script]int)
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		if s := Of(r); s != Unknown {
			counts[s]++
		}
	}
	return counts
}

// CountIn returns how many letters of text belong to the writing system.
func CountIn(text string, s Script) int {
	n := 0
	for _, r := range text {
		if unicode.IsLetter(r) && s.Contains(r) {
			n++
		}
	}
	return n
}

// Dominant returns the script with the most letters in text.
func Dominant(text string) Script {
	best, bestN := Unknown, 0
	for _, bt := range baseTables {
		if n := CountIn(text, bt.script); n > bestN {
			best, bestN = bt.script, n
		}
	}
	return best
}

// Letters counts letters of any script in text.
func Letters(text string) int {
	n := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
