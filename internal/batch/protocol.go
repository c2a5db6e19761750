// Package batch sends several sentences that share a target language in
// one JSON request and re-validates every item of the answer on its own.
package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/valpere/interlinear/internal/postprocess"
)

// Entry is one input sentence. Index is its position in the whole input.
type Entry struct {
	Index      int
	Text       string
	TargetLang string
}

// Batch is a run of entries sharing a target language.
type Batch struct {
	TargetLang string
	Entries    []Entry
}

// Item is the request shape of one sentence. IDs start at 1 within a batch
// and stay the same on every retry.
type Item struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// Result is the response shape of one sentence.
type Result struct {
	ID              int    `json:"id"`
	Translation     string `json:"translation"`
	Transliteration string `json:"transliteration,omitempty"`
}

type envelope[T any] struct {
	Items []T `json:"items"`
}

// Items assigns request ids to the batch entries.
func (b Batch) Items() []Item {
	items := make([]Item, len(b.Entries))
	for i, e := range b.Entries {
		items[i] = Item{ID: i + 1, Text: e.Text}
	}
	return items
}

// Entry returns the entry behind a request id.
func (b Batch) Entry(id int) (Entry, bool) {
	if id < 1 || id > len(b.Entries) {
		return Entry{}, false
	}
	return b.Entries[id-1], true
}

// Group splits entries into batches, starting a new one whenever the target
// language changes or the current batch holds maxSize entries.
func Group(entries []Entry, maxSize int) []Batch {
	if maxSize <= 0 {
		maxSize = 1
	}
	var batches []Batch
	for _, e := range entries {
		n := len(batches)
		if n == 0 || batches[n-1].TargetLang != e.TargetLang || len(batches[n-1].Entries) >= maxSize {
			batches = append(batches, Batch{TargetLang: e.TargetLang})
			n++
		}
		batches[n-1].Entries = append(batches[n-1].Entries, e)
	}
	return batches
}

// EncodeRequest renders items as {"items":[...]}.
func EncodeRequest(items []Item) (string, error) {
	b, err := json.Marshal(envelope[Item]{Items: items})
	if err != nil {
		return "", fmt.Errorf("failed to encode batch: %w", err)
	}
	return string(b), nil
}

// DecodeError means no usable item could be read from a response.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode batch response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var errNoItems = errors.New("no items in response")

// Decode reads a batch response. It accepts surrounding prose, a code
// fence, the {"items":[...]} object or a bare array. When no result carries
// an id they are matched by position, but only when their count equals
// len(items). Otherwise results without a known id are dropped.
func Decode(content string, items []Item) (map[int]Result, error) {
	results, err := decodeResults(content)
	if err != nil {
		return nil, &DecodeError{Raw: content, Err: err}
	}

	known := make(map[int]bool, len(items))
	for _, it := range items {
		known[it.ID] = true
	}

	missingIDs := 0
	for _, r := range results {
		if r.ID == 0 {
			missingIDs++
		}
	}

	out := make(map[int]Result, len(results))
	if missingIDs == len(results) && len(results) == len(items) {
		for i, r := range results {
			r.ID = items[i].ID
			out[r.ID] = r
		}
		return out, nil
	}
	for _, r := range results {
		if known[r.ID] {
			if _, dup := out[r.ID]; !dup {
				out[r.ID] = r
			}
		}
	}
	if len(out) == 0 {
		return nil, &DecodeError{Raw: content, Err: errNoItems}
	}
	return out, nil
}

func decodeResults(content string) ([]Result, error) {
	content = postprocess.StripMarkers(postprocess.StripCodeFence(content))

	if start, end := strings.Index(content, "{"), strings.LastIndex(content, "}"); start >= 0 && end > start {
		var env envelope[Result]
		if err := json.Unmarshal([]byte(content[start:end+1]), &env); err == nil && len(env.Items) > 0 {
			return env.Items, nil
		}
	}
	if start, end := strings.Index(content, "["), strings.LastIndex(content, "]"); start >= 0 && end > start {
		var arr []Result
		if err := json.Unmarshal([]byte(content[start:end+1]), &arr); err != nil {
			return nil, err
		}
		if len(arr) > 0 {
			return arr, nil
		}
	}
	return nil, errNoItems
}
