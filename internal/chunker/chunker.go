// Package chunker splits input documents into sentences, the unit the
// pipeline translates, and extracts the preceding-text context passed to
// single-sentence prompts.
package chunker

import (
	"strings"
	"unicode"
)

const (
	// DefaultContextWords is the context window used by ExtractContext.
	DefaultContextWords = 25
	// DefaultMaxSentenceChars caps a sentence before it is cut at a clause
	// or word boundary.
	DefaultMaxSentenceChars = 600
)

// terminators end a sentence only when followed by whitespace.
var terminators = map[rune]bool{'.': true, '!': true, '?': true, '…': true}

// fullStops end a sentence unconditionally; their scripts do not put a
// space after them.
var fullStops = map[rune]bool{
	'。': true, '！': true, '？': true, '．': true,
	'।': true, '॥': true, '။': true, '។': true, '።': true, '؟': true, '۔': true,
}

// closers stay attached to the sentence they close.
var closers = map[rune]bool{
	'"': true, '\'': true, '”': true, '’': true, '»': true, ')': true, ']': true,
	'」': true, '』': true, '）': true, '》': true,
}

// Sentences splits text into trimmed sentences in reading order. Paragraph
// breaks always end a sentence; line breaks inside a paragraph do not.
// Sentences longer than maxChars runes are cut further with Chunk; a
// non-positive maxChars uses DefaultMaxSentenceChars.
func Sentences(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxSentenceChars
	}
	var out []string
	for _, para := range paragraphs(text) {
		for _, s := range splitParagraph(para) {
			out = append(out, Chunk(s, maxChars)...)
		}
	}
	return out
}

func paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, block := range strings.Split(text, "\n\n") {
		joined := strings.Join(strings.Fields(block), " ")
		if joined != "" {
			out = append(out, joined)
		}
	}
	return out
}

func splitParagraph(para string) []string {
	runes := []rune(para)
	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if !terminators[r] && !fullStops[r] {
			continue
		}
		end := i + 1
		for end < len(runes) && (terminators[runes[end]] || fullStops[runes[end]] || closers[runes[end]]) {
			end++
		}
		if terminators[r] && !fullStops[r] {
			if end < len(runes) && !unicode.IsSpace(runes[end]) {
				continue
			}
			if continuesLowercase(runes, end) {
				continue
			}
		}
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, s)
		}
		start = end
		i = end - 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// continuesLowercase reports whether the next word after pos starts with a
// lower-case letter, as after "e.g." or "approx.".
func continuesLowercase(runes []rune, pos int) bool {
	for pos < len(runes) && unicode.IsSpace(runes[pos]) {
		pos++
	}
	return pos < len(runes) && unicode.IsLower(runes[pos])
}

// Chunk cuts text into pieces of at most maxChars runes, preferring clause
// punctuation, then whitespace, then a hard cut. Text that fits, or a
// non-positive maxChars, yields the text unchanged.
func Chunk(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if maxChars <= 0 || len(runes) <= maxChars {
		return []string{text}
	}

	var out []string
	for len(runes) > maxChars {
		cut := findCut(runes[:maxChars])
		if piece := strings.TrimSpace(string(runes[:cut])); piece != "" {
			out = append(out, piece)
		}
		runes = []rune(strings.TrimSpace(string(runes[cut:])))
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}

// findCut returns the rune count to take from window.
func findCut(window []rune) int {
	for i := len(window) - 1; i > 0; i-- {
		switch window[i] {
		case ',', ';', ':', '，', '、', '；', '：':
			return i + 1
		}
	}
	for i := len(window) - 1; i > 0; i-- {
		if unicode.IsSpace(window[i]) {
			return i
		}
	}
	return len(window)
}

// ExtractContext returns the tail of text: its last wordCount words, or for
// unspaced scripts roughly four runes per word. A non-positive wordCount
// uses DefaultContextWords.
func ExtractContext(text string, wordCount int) string {
	if wordCount <= 0 {
		wordCount = DefaultContextWords
	}
	words := strings.Fields(text)
	if len(words) > wordCount {
		words = words[len(words)-wordCount:]
	}
	tail := strings.Join(words, " ")
	if runes := []rune(tail); len(runes) > wordCount*4 && len(words) < wordCount/2+1 {
		tail = string(runes[len(runes)-wordCount*4:])
	}
	return tail
}
