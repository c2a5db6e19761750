package langscript

import (
	"os"
	"path/filepath"
	"testing"
)

func TestForLanguage(t *testing.T) {
	tests := []struct {
		lang string
		want Script
	}{
		{"ru", Cyrillic},
		{"uk", Cyrillic},
		{"en", Latin},
		{"zh", Han},
		{"zh-TW", Han},
		{"zh_CN", Han},
		{"ja", Japanese},
		{"ko", Korean},
		{"km", Khmer},
		{"th", Thai},
		{"my", Myanmar},
		{"ar", Arabic},
		{"hi", Devanagari},
		{"", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			if got := ForLanguage(tt.lang); got != tt.want {
				t.Errorf("ForLanguage(%q) = %q, want %q", tt.lang, got, tt.want)
			}
		})
	}
}

func TestOf(t *testing.T) {
	tests := []struct {
		r    rune
		want Script
	}{
		{'a', Latin},
		{'é', Latin},
		{'Ж', Cyrillic},
		{'你', Han},
		{'あ', Hiragana},
		{'カ', Katakana},
		{'한', Hangul},
		{'ក', Khmer},
		{'7', Unknown},
		{'.', Unknown},
	}

	for _, tt := range tests {
		if got := Of(tt.r); got != tt.want {
			t.Errorf("Of(%q) = %q, want %q", tt.r, got, tt.want)
		}
	}
}

func TestJapaneseContainsKana(t *testing.T) {
	for _, r := range []rune{'日', 'ひ', 'カ'} {
		if !Japanese.Contains(r) {
			t.Errorf("expected Japanese to contain %q", r)
		}
	}
	if Japanese.Contains('a') {
		t.Error("Japanese should not contain Latin letters")
	}
}

func TestCounts(t *testing.T) {
	counts := Counts("Привет, world 42!")
	if counts[Cyrillic] != 6 {
		t.Errorf("expected 6 Cyrillic letters, got %d", counts[Cyrillic])
	}
	if counts[Latin] != 5 {
		t.Errorf("expected 5 Latin letters, got %d", counts[Latin])
	}
}

func TestBase(t *testing.T) {
	if got := Base("pt_BR"); got != "pt" {
		t.Errorf("Base(pt_BR) = %q, want pt", got)
	}
	if got := Base("KM"); got != "km" {
		t.Errorf("Base(KM) = %q, want km", got)
	}
}

func TestDefaultRules_Khmer(t *testing.T) {
	b, ok := DefaultRules().SegmentationFor("km")
	if !ok {
		t.Fatal("expected Khmer segmentation bounds")
	}
	if b.MinTokenRatio != 0.6 {
		t.Errorf("expected min ratio 0.6, got %v", b.MinTokenRatio)
	}
	if b.MaxShortTokenRatio != 0.10 {
		t.Errorf("expected short ratio 0.10, got %v", b.MaxShortTokenRatio)
	}
}

func TestLoadRules_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `
segmentation:
  km:
    min_token_ratio: 0.7
    max_short_token_ratio: 0.05
    short_token_len: 1
diacritics:
  lv:
    min_letters: 20
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}

	b, _ := rules.SegmentationFor("km")
	if b.MinTokenRatio != 0.7 {
		t.Errorf("expected override 0.7, got %v", b.MinTokenRatio)
	}
	if _, ok := rules.SegmentationFor("th"); !ok {
		t.Error("expected Thai default to survive the merge")
	}
	if _, ok := rules.DiacriticFor("lv"); !ok {
		t.Error("expected Latvian rule from file")
	}
}

func TestLoadRules_MissingFile(t *testing.T) {
	if _, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
