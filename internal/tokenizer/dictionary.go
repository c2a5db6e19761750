package tokenizer

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// DictionarySegmenter segments unspaced text by forward maximal matching
// against a word list. Graphemes not covered by any entry become
// single-grapheme tokens.
type DictionarySegmenter struct {
	words  map[string]struct{}
	maxLen int
}

// NewDictionarySegmenter builds a segmenter from a word list.
func NewDictionarySegmenter(words []string) *DictionarySegmenter {
	d := &DictionarySegmenter{words: make(map[string]struct{}, len(words))}
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		d.words[w] = struct{}{}
		if n := GraphemeLen(w); n > d.maxLen {
			d.maxLen = n
		}
	}
	return d
}

// LoadDictionary reads a word list with one word per line. Blank lines and
// lines starting with # are skipped.
func LoadDictionary(path string) (*DictionarySegmenter, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dictionary: %w", err)
	}
	defer f.Close()

	var words []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dictionary %s: %w", path, err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("dictionary %s has no words", path)
	}
	return NewDictionarySegmenter(words), nil
}

// Segment implements Segmenter.
func (d *DictionarySegmenter) Segment(text string) []string {
	units := Graphemes(text)
	if len(d.words) == 0 {
		return nil
	}

	var out []string
	for i := 0; i < len(units); {
		n := d.maxLen
		if rest := len(units) - i; n > rest {
			n = rest
		}
		matched := 1
		for ; n > 1; n-- {
			if _, ok := d.words[strings.Join(units[i:i+n], "")]; ok {
				matched = n
				break
			}
		}
		out = append(out, strings.Join(units[i:i+matched], ""))
		i += matched
	}
	return out
}
