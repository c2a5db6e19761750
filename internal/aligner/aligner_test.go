package aligner

import (
	"strings"
	"testing"

	"github.com/valpere/interlinear/internal/tokenizer"
)

func TestAlignTokenCounts(t *testing.T) {
	tests := []struct {
		name        string
		translation string
		translit    string
		lang        string
		wantTr      string
		wantTl      string
		wantChanged bool
	}{
		{
			name:        "cjk syllable grouping",
			translation: "你好 世界",
			translit:    "ni hao shi jie",
			lang:        "zh",
			wantTr:      "你好 世界",
			wantTl:      "ni-hao shi-jie",
			wantChanged: true,
		},
		{
			name:        "already aligned",
			translation: "Привет мир",
			translit:    "privet mir",
			lang:        "ru",
			wantTr:      "Привет мир",
			wantTl:      "privet mir",
			wantChanged: false,
		},
		{
			name:        "merge shortest transliteration pairs",
			translation: "Привет мир",
			translit:    "pri vet mi r",
			lang:        "ru",
			wantTr:      "Привет мир",
			wantTl:      "pri-vet mi-r",
			wantChanged: true,
		},
		{
			name:        "split at existing hyphens",
			translation: "Привет дорогой мир",
			translit:    "privet dorogoy-mir",
			lang:        "ru",
			wantTr:      "Привет дорогой мир",
			wantTl:      "privet dorogoy mir",
			wantChanged: true,
		},
		{
			name:        "cjk translation merge",
			translation: "我们 是 学生 的 朋友",
			translit:    "women shi xuesheng pengyou",
			lang:        "zh",
			wantTr:      "我们是 学生 的 朋友",
			wantTl:      "women shi xuesheng pengyou",
			wantChanged: true,
		},
		{
			name:        "nothing to do",
			translation: "a b c",
			translit:    "x",
			lang:        "en",
			wantTr:      "a b c",
			wantTl:      "x",
			wantChanged: false,
		},
		{
			name:        "empty transliteration",
			translation: "Привет",
			translit:    "",
			lang:        "ru",
			wantTr:      "Привет",
			wantTl:      "",
			wantChanged: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, tl, changed := AlignTokenCounts(tt.translation, tt.translit, tt.lang)
			if tr != tt.wantTr {
				t.Errorf("translation = %q, want %q", tr, tt.wantTr)
			}
			if tl != tt.wantTl {
				t.Errorf("transliteration = %q, want %q", tl, tt.wantTl)
			}
			if changed != tt.wantChanged {
				t.Errorf("changed = %v, want %v", changed, tt.wantChanged)
			}
		})
	}
}

func TestAlignTokenCounts_NeverIncreasesDelta(t *testing.T) {
	translations := []struct {
		text string
		lang string
	}{
		{"Привет мир", "ru"},
		{"Это очень длинное предложение для проверки", "ru"},
		{"你好 世界", "zh"},
		{"我们 是 学生 的 朋友", "zh"},
		{"Xin chào", "vi"},
		{"one", "en"},
	}
	translits := []string{
		"a",
		"ni hao shi jie",
		"pri-vet-mir",
		"eto ochen dlinnoe predlozhenie dlya proverki",
		"x y z w v u t s",
		"long-hyphen-chain-of-parts here",
		"women shi xuesheng pengyou",
	}

	for _, tr := range translations {
		for _, tl := range translits {
			before := delta(len(tokenizer.Tokenize(tr.text, tr.lang)), len(strings.Fields(tl)))
			outTr, outTl, _ := AlignTokenCounts(tr.text, tl, tr.lang)
			after := delta(len(tokenizer.Tokenize(outTr, tr.lang)), len(strings.Fields(outTl)))
			if after > before {
				t.Errorf("AlignTokenCounts(%q, %q) increased delta %d -> %d", tr.text, tl, before, after)
			}
		}
	}
}

func delta(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

func TestAligner_UsesRegisteredSegmenter(t *testing.T) {
	tr, tl, changed := AlignTokenCounts("你好世界", "ni hao shi jie", "zh")
	if changed || tr != "你好世界" || tl != "ni hao shi jie" {
		t.Fatalf("without segmenter: %q / %q changed=%v", tr, tl, changed)
	}

	tok := tokenizer.New()
	tok.Register("zh", tokenizer.NewDictionarySegmenter([]string{"你好", "世界"}))
	tr, tl, changed = New(tok).AlignTokenCounts("你好世界", "ni hao shi jie", "zh")
	if !changed || tr != "你好世界" || tl != "ni-hao shi-jie" {
		t.Errorf("with segmenter: %q / %q changed=%v", tr, tl, changed)
	}
}

func TestForceAlignByPosition_CoversAllTokens(t *testing.T) {
	tr := []string{"one", "two", "three"}
	tl := []string{"a", "b", "c", "d", "e", "f", "g"}

	pairs := ForceAlignByPosition(tr, tl)
	if len(pairs) != 3 {
		t.Fatalf("expected 3 pairs, got %d", len(pairs))
	}

	var covered []string
	for i, p := range pairs {
		if len(p.Translation) != 1 || p.Translation[0] != tr[i] {
			t.Errorf("pair %d translation = %q, want [%q]", i, p.Translation, tr[i])
		}
		if len(p.Transliteration) == 0 {
			t.Errorf("pair %d has no transliteration tokens", i)
		}
		covered = append(covered, p.Transliteration...)
	}
	if strings.Join(covered, " ") != strings.Join(tl, " ") {
		t.Errorf("transliteration tokens not covered in order: %q", covered)
	}
}

func TestForceAlignByPosition_LongerTranslation(t *testing.T) {
	tr := []string{"a", "b", "c", "d", "e"}
	tl := []string{"x", "y"}

	pairs := ForceAlignByPosition(tr, tl)
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(pairs))
	}
	total := 0
	for _, p := range pairs {
		if len(p.Transliteration) != 1 {
			t.Errorf("expected one transliteration token per pair, got %q", p.Transliteration)
		}
		total += len(p.Translation)
	}
	if total != len(tr) {
		t.Errorf("expected %d translation tokens covered, got %d", len(tr), total)
	}
}

func TestForceAlignByPosition_Empty(t *testing.T) {
	if pairs := ForceAlignByPosition(nil, []string{"a"}); pairs != nil {
		t.Errorf("expected nil for empty translation, got %v", pairs)
	}
}
