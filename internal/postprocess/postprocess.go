// Package postprocess strips the wrapping that chat models add around an
// answer: reasoning blocks, echoed instructions, input markers, code fences
// and quotes. Batch responses go through StripCodeFence only, since their
// JSON must reach the decoder untouched.
package postprocess

import (
	"regexp"
	"strings"
)

// Input markers wrapped around user text in every prompt.
const (
	BeginMarker = "<<<BEGIN_TEXT>>>"
	EndMarker   = "<<<END_TEXT>>>"
)

// Wrap surrounds text with the input markers.
func Wrap(text string) string {
	return BeginMarker + "\n" + text + "\n" + EndMarker
}

var steps = []func(string) string{
	dropReasoning,
	StripMarkers,
	StripCodeFence,
	dropPreamble,
	unquote,
}

// Clean applies every cleanup step to a single-sentence answer.
func Clean(text string) string {
	for _, step := range steps {
		text = step(text)
	}
	return strings.TrimSpace(text)
}

// RE2 has no backreferences, so each tag pair is spelled out.
var (
	reasoningRe = regexp.MustCompile(
		`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
	)
	// A model cut off mid-thought leaves an opening tag with no end.
	openReasoningRe = regexp.MustCompile(`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`)
)

func dropReasoning(text string) string {
	text = reasoningRe.ReplaceAllString(text, "")
	return strings.TrimSpace(openReasoningRe.ReplaceAllString(text, ""))
}

// StripMarkers removes echoed input markers. When the model repeats the
// whole marked block, only the text between the markers is kept.
func StripMarkers(text string) string {
	if start := strings.Index(text, BeginMarker); start >= 0 {
		rest := text[start+len(BeginMarker):]
		if end := strings.Index(rest, EndMarker); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		text = text[:start] + rest
	}
	return strings.TrimSpace(strings.ReplaceAll(text, EndMarker, ""))
}

var fenceRe = regexp.MustCompile("(?s)^```[a-zA-Z0-9_-]*\\s*\\n?(.*?)\\n?\\s*```$")

// StripCodeFence unwraps text enclosed in a single markdown code fence.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// Preambles are anchored at the start and need a trailing colon, so a
// sentence that merely begins with "Here is" survives.
var preambleRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^here(?:'s| is)(?: the| your)? (?:refined |polished |translated |final )?(?:translation|transliteration|romanization|text)(?: in [\p{L} ]+)?\s*:`),
	regexp.MustCompile(`(?i)^(?:the )?(?:refined |polished |final )?(?:translation|translated text|transliteration|romanization)(?: \([^)]*\))?\s*:`),
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.!]? here(?:'s| is)(?: the| your)? (?:refined |polished |translated )?(?:translation|transliteration|text)\s*:`),
}

func dropPreamble(text string) string {
	for _, re := range preambleRes {
		if loc := re.FindStringIndex(text); loc != nil {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

var quotePairs = map[rune]rune{
	'"':  '"',
	'\'': '\'',
	'«':  '»',
	'“':  '”',
	'‘':  '’',
	'「':  '」',
}

// unquote drops one pair of matching outer quotes.
func unquote(text string) string {
	runes := []rune(text)
	if len(runes) < 2 {
		return text
	}
	if closer, ok := quotePairs[runes[0]]; ok && runes[len(runes)-1] == closer {
		return strings.TrimSpace(string(runes[1 : len(runes)-1]))
	}
	return text
}
