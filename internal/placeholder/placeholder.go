// Package placeholder keeps untranslatable spans of a sentence (links,
// e-mail addresses, code spans, stray markup) out of the model's hands by
// swapping them for numbered markers [PH0], [PH1], ... and putting them
// back after translation.
package placeholder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	reFencedCode = regexp.MustCompile("(?s)```.*?```")
	reInlineCode = regexp.MustCompile("`[^`\n]+`")
	reURL        = regexp.MustCompile(`(?:https?|ftp)://[^\s<>"]*[^\s<>".,;:!?'")\]]`)
	reEmail      = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	reTag        = regexp.MustCompile(`</?[A-Za-z][^<>]*>`)

	rePlaceholder = regexp.MustCompile(`\[PH(\d+)\]`)
)

// passes run in order; earlier patterns win over overlapping later ones.
var passes = []*regexp.Regexp{reFencedCode, reInlineCode, reURL, reEmail, reTag}

// Protect replaces protected spans with markers numbered in the order they
// were captured and returns the captured originals.
func Protect(text string) (string, []string) {
	var spans []string
	replace := func(match string) string {
		id := marker(len(spans))
		spans = append(spans, match)
		return id
	}
	for _, re := range passes {
		text = re.ReplaceAllStringFunc(text, replace)
	}
	return text, spans
}

// Strip removes protected spans from text, leaving the prose that a
// language check should look at.
func Strip(text string) string {
	for _, re := range passes {
		text = re.ReplaceAllString(text, " ")
	}
	return strings.Join(strings.Fields(text), " ")
}

// Restore puts the captured spans back. Unknown indices are left as they
// are.
func Restore(text string, spans []string) string {
	if len(spans) == 0 {
		return text
	}
	return rePlaceholder.ReplaceAllStringFunc(text, func(match string) string {
		sub := rePlaceholder.FindStringSubmatch(match)
		idx, err := strconv.Atoi(sub[1])
		if err != nil || idx < 0 || idx >= len(spans) {
			return match
		}
		return spans[idx]
	})
}

// InstructionHint is appended to a prompt whose text carries markers.
func InstructionHint() string {
	return "Copy every [PHn] marker into your answer unchanged, at the matching position. Do not translate or drop them."
}

// Missing returns the indices of spans whose marker is absent from text.
func Missing(text string, spans []string) []int {
	var missing []int
	for i := range spans {
		if !strings.Contains(text, marker(i)) {
			missing = append(missing, i)
		}
	}
	return missing
}

// LostError reports markers the model dropped.
type LostError struct {
	Missing []int
}

func (e *LostError) Error() string {
	ids := make([]string, len(e.Missing))
	for i, idx := range e.Missing {
		ids[i] = marker(idx)
	}
	return "lost placeholders " + strings.Join(ids, ", ")
}

func marker(i int) string { return fmt.Sprintf("[PH%d]", i) }
