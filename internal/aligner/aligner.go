// Package aligner reconciles the token counts of a translation and its
// transliteration so that word-level highlighting can pair them 1:1.
package aligner

import (
	"strings"
	"unicode"

	"github.com/valpere/interlinear/internal/langscript"
	"github.com/valpere/interlinear/internal/tokenizer"
)

// maxMergeLen is the longest transliteration token (in graphemes) that may
// be hyphen-merged with a neighbour.
const maxMergeLen = 6

// maxShortCJK is the longest translation token merged in CJK resizing.
const maxShortCJK = 2

// Pair is one highlight unit: tokens of the translation shown together with
// tokens of the transliteration.
type Pair struct {
	Translation     []string
	Transliteration []string
}

type variant struct {
	translation     []string
	transliteration []string
}

func (v variant) delta() int {
	d := len(v.translation) - len(v.transliteration)
	if d < 0 {
		return -d
	}
	return d
}

// AlignTokenCounts tries to make the translation and transliteration have
// the same number of tokens. It returns the (possibly) rewritten strings
// and whether anything changed. The token-count difference of the result is
// never larger than that of the input.
func AlignTokenCounts(translation, transliteration, lang string) (string, string, bool) {
	return New(nil).AlignTokenCounts(translation, transliteration, lang)
}

// Aligner aligns with a specific tokenizer, so registered segmenters decide
// the translation's tokens.
type Aligner struct {
	tok *tokenizer.Tokenizer
}

// New returns an Aligner using tok. A nil tok has no segmenters.
func New(tok *tokenizer.Tokenizer) *Aligner {
	if tok == nil {
		tok = tokenizer.New()
	}
	return &Aligner{tok: tok}
}

// AlignTokenCounts is the package-level AlignTokenCounts using a's tokenizer.
func (a *Aligner) AlignTokenCounts(translation, transliteration, lang string) (string, string, bool) {
	trTokens := a.tok.Tokenize(translation, lang)
	tlTokens := strings.Fields(transliteration)
	if len(trTokens) == 0 || len(tlTokens) == 0 {
		return translation, transliteration, false
	}

	input := variant{translation: trTokens, transliteration: tlTokens}
	if input.delta() == 0 {
		return translation, transliteration, false
	}

	script := langscript.ForLanguage(lang)
	if !script.CJK() {
		if dom := langscript.Dominant(translation); dom.CJK() {
			script = dom
		}
	}

	best := input
	consider := func(v variant) bool {
		if v.delta() < best.delta() {
			best = v
		}
		return best.delta() == 0
	}

	if script.CJK() {
		if grouped, ok := groupSyllables(trTokens, tlTokens); ok {
			if consider(variant{translation: trTokens, transliteration: grouped}) {
				return finish(input, best, translation, transliteration)
			}
		}
	}

	if consider(variant{translation: trTokens, transliteration: resizeTransliteration(tlTokens, len(trTokens))}) {
		return finish(input, best, translation, transliteration)
	}

	if script.CJK() && len(trTokens) > len(tlTokens) {
		consider(variant{translation: mergeShortTokens(trTokens, len(tlTokens)), transliteration: tlTokens})
	}

	return finish(input, best, translation, transliteration)
}

func finish(input, best variant, translation, transliteration string) (string, string, bool) {
	changed := false
	outTr, outTl := translation, transliteration
	if !sameTokens(input.translation, best.translation) {
		outTr = strings.Join(best.translation, " ")
		changed = true
	}
	if !sameTokens(input.transliteration, best.transliteration) {
		outTl = strings.Join(best.transliteration, " ")
		changed = true
	}
	return outTr, outTl, changed
}

func sameTokens(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// groupSyllables assigns transliteration syllables to translation tokens
// using one syllable per CJK character. It only succeeds when the character
// total equals the syllable count.
func groupSyllables(trTokens, syllables []string) ([]string, bool) {
	counts := make([]int, len(trTokens))
	total := 0
	for i, tok := range trTokens {
		n := 0
		for _, r := range tok {
			if unicode.IsLetter(r) && langscript.Japanese.Contains(r) {
				n++
			}
		}
		if n == 0 {
			n = 1
		}
		counts[i] = n
		total += n
	}
	if total != len(syllables) {
		return nil, false
	}

	grouped := make([]string, 0, len(trTokens))
	idx := 0
	for _, n := range counts {
		grouped = append(grouped, strings.Join(syllables[idx:idx+n], "-"))
		idx += n
	}
	return grouped, true
}

// resizeTransliteration merges or splits transliteration tokens toward
// target. Merging joins the shortest adjacent alphabetic pair with a
// hyphen; splitting only breaks tokens at hyphens already present.
func resizeTransliteration(tokens []string, target int) []string {
	out := append([]string(nil), tokens...)

	for len(out) > target {
		i := shortestMergeablePair(out, func(tok string) bool {
			return alphabetic(tok) && tokenizer.GraphemeLen(tok) <= maxMergeLen
		})
		if i < 0 {
			break
		}
		out = mergeAt(out, i, "-")
	}

	for len(out) < target {
		i := hyphenatedToken(out)
		if i < 0 {
			break
		}
		head, tail, _ := strings.Cut(out[i], "-")
		out = append(out[:i], append([]string{head, tail}, out[i+1:]...)...)
	}

	return out
}

// mergeShortTokens concatenates adjacent short CJK tokens toward target.
// Splitting is never attempted since it would need a morphological analyzer.
func mergeShortTokens(tokens []string, target int) []string {
	out := append([]string(nil), tokens...)
	for len(out) > target {
		i := shortestMergeablePair(out, func(tok string) bool {
			return tokenizer.GraphemeLen(tok) <= maxShortCJK
		})
		if i < 0 {
			break
		}
		out = mergeAt(out, i, "")
	}
	return out
}

// shortestMergeablePair returns the index of the left token of the
// shortest adjacent pair accepted by ok, or -1.
func shortestMergeablePair(tokens []string, ok func(string) bool) int {
	best, bestLen := -1, 0
	for i := 0; i+1 < len(tokens); i++ {
		if !ok(tokens[i]) || !ok(tokens[i+1]) {
			continue
		}
		n := tokenizer.GraphemeLen(tokens[i]) + tokenizer.GraphemeLen(tokens[i+1])
		if best < 0 || n < bestLen {
			best, bestLen = i, n
		}
	}
	return best
}

func mergeAt(tokens []string, i int, sep string) []string {
	merged := tokens[i] + sep + tokens[i+1]
	out := make([]string, 0, len(tokens)-1)
	out = append(out, tokens[:i]...)
	out = append(out, merged)
	return append(out, tokens[i+2:]...)
}

// hyphenatedToken returns the index of the token with the most hyphen
// separated parts, or -1 when no token can be split.
func hyphenatedToken(tokens []string) int {
	best, bestParts := -1, 1
	for i, tok := range tokens {
		head, tail, found := strings.Cut(tok, "-")
		if !found || head == "" || tail == "" {
			continue
		}
		if parts := strings.Count(tok, "-") + 1; parts > bestParts {
			best, bestParts = i, parts
		}
	}
	return best
}

// alphabetic reports whether tok looks like a single transliterated
// syllable or word: letters, marks and apostrophes only.
func alphabetic(tok string) bool {
	if tok == "" {
		return false
	}
	for _, r := range tok {
		if unicode.IsLetter(r) || unicode.IsMark(r) || r == '\'' || r == '’' {
			continue
		}
		return false
	}
	return true
}

// ForceAlignByPosition pairs every token of the shorter side with a
// proportional group of consecutive tokens from the longer side. Every
// input token appears in exactly one pair. It returns nil when either
// side is empty.
func ForceAlignByPosition(translation, transliteration []string) []Pair {
	if len(translation) == 0 || len(transliteration) == 0 {
		return nil
	}

	shortIsTranslation := len(translation) <= len(transliteration)
	m, n := len(translation), len(transliteration)
	if !shortIsTranslation {
		m, n = n, m
	}

	pairs := make([]Pair, 0, m)
	for i := 0; i < m; i++ {
		start, end := i*n/m, (i+1)*n/m
		if shortIsTranslation {
			pairs = append(pairs, Pair{
				Translation:     []string{translation[i]},
				Transliteration: append([]string(nil), transliteration[start:end]...),
			})
		} else {
			pairs = append(pairs, Pair{
				Translation:     append([]string(nil), translation[start:end]...),
				Transliteration: []string{transliteration[i]},
			})
		}
	}
	return pairs
}
