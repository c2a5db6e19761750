package validator

import (
	"strings"
	"testing"

	"github.com/valpere/interlinear/internal"
	"github.com/valpere/interlinear/internal/langscript"
	"github.com/valpere/interlinear/internal/tokenizer"
)

type stubDetector struct {
	code string
	ok   bool
}

func (s stubDetector) DetectISO(string) (string, bool) { return s.code, s.ok }

func TestValidate_RussianInLatinIsScriptFailure(t *testing.T) {
	v := New()

	got := v.Validate(Candidate{
		Source:     "Hello, my friend, how are you?",
		Text:       "Privet, moy drug, kak dela?",
		TargetLang: "ru",
	})
	if got.OK {
		t.Fatal("expected Latin-script Russian candidate to fail")
	}
	if !got.IsScriptFailure() {
		t.Errorf("expected a script failure, got %s", got)
	}
	if got.Reason != ReasonTransliteration {
		t.Errorf("Reason = %q, want %q", got.Reason, ReasonTransliteration)
	}
	if got.Score >= 1 {
		t.Errorf("failed verdict score = %.2f, want < 1", got.Score)
	}
}

func TestValidate_Passes(t *testing.T) {
	v := New()

	tests := []struct {
		name string
		c    Candidate
	}{
		{"russian", Candidate{Source: "Hello, my friend, how are you?", Text: "Привет, мой друг, как дела?", TargetLang: "ru"}},
		{"vietnamese", Candidate{Source: "Hello friend, how are you today?", Text: "Xin chào bạn, hôm nay bạn thế nào?", TargetLang: "vi"}},
		{"japanese", Candidate{Source: "I like katakana.", Text: "私はカタカナが好きです。", TargetLang: "ja"}},
		{"chinese", Candidate{Source: "Hello world", Text: "你好 世界", TargetLang: "zh"}},
		{"numbers only", Candidate{Source: "42", Text: "42", TargetLang: "de"}},
		{"khmer spaced", Candidate{Source: "I love you very much", Text: "ខ្ញុំ ស្រឡាញ់ អ្នក ណាស់", TargetLang: "km"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := v.Validate(tt.c); !got.OK {
				t.Errorf("Validate() = %s, want ok", got)
			}
		})
	}
}

func TestValidate_Failures(t *testing.T) {
	v := New()
	longSource := "This is a considerably longer sentence that deserves a proper number of words."

	tests := []struct {
		name string
		c    Candidate
		want Reason
	}{
		{"empty", Candidate{Source: "Hello", Text: "   ", TargetLang: "ru"}, ReasonPlaceholder},
		{"n/a", Candidate{Source: "Hello", Text: "N/A", TargetLang: "ru"}, ReasonPlaceholder},
		{"ellipsis", Candidate{Source: "Hello", Text: "...", TargetLang: "ru"}, ReasonPlaceholder},
		{"template label", Candidate{Source: "Hello", Text: "[translation]", TargetLang: "de"}, ReasonPlaceholder},
		{"failure marker", Candidate{Source: "Hello", Text: internal.FailureText("translation", 3, "timeout"), TargetLang: "de"}, ReasonPlaceholder},
		{"too short", Candidate{Source: longSource, Text: "Да.", TargetLang: "ru"}, ReasonTooShort},
		{"missing diacritics", Candidate{Source: "Hello friend, how are you today?", Text: "Xin chao ban, hom nay ban the nao?", TargetLang: "vi"}, ReasonMissingDiacritics},
		{"korean for japanese", Candidate{Source: "Hello world", Text: "안녕하세요 세계", TargetLang: "ja"}, ReasonScriptMismatch},
		{"greek inside russian", Candidate{Source: "Hello my dear friend", Text: "Привет мой αγαπητέ друг", TargetLang: "ru"}, ReasonScriptMismatch},
		{"unsegmented khmer", Candidate{Source: "I love you so much", Text: "ខ្ញុំស្រឡាញ់អ្នក", TargetLang: "km"}, ReasonSegmentation},
		{"repeated tokens", Candidate{Source: "Please tell me more about it", Text: "да да да да да", TargetLang: "ru"}, ReasonGibberish},
		{"repeated runes", Candidate{Source: "Please tell me more about it", Text: "Скажиииииииии мне", TargetLang: "ru"}, ReasonGibberish},
		{"identical to source", Candidate{Source: "Das ist ein Test", Text: "Das ist ein Test", TargetLang: "en"}, ReasonUntranslated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Validate(tt.c)
			if got.OK {
				t.Fatalf("Validate() passed, want %s", tt.want)
			}
			if got.Reason != tt.want {
				t.Errorf("Reason = %q (%s), want %q", got.Reason, got.Detail, tt.want)
			}
		})
	}
}

func TestValidate_IgnoresProtectedSpans(t *testing.T) {
	v := New()

	got := v.Validate(Candidate{
		Source:     "Read the guide at https://example.com/getting-started/install before you begin.",
		Text:       "Прочитайте руководство https://example.com/getting-started/install перед началом.",
		TargetLang: "ru",
	})
	if !got.OK {
		t.Errorf("Validate(link in russian) = %s, want ok", got)
	}

	got = v.Validate(Candidate{Source: "https://example.com", Text: "https://example.com", TargetLang: "ru"})
	if !got.OK {
		t.Errorf("Validate(link only) = %s, want ok", got)
	}

	got = v.Validate(Candidate{Source: "https://example.com", Text: "N/A", TargetLang: "ru"})
	if got.Reason != ReasonPlaceholder {
		t.Errorf("Validate(link only, placeholder answer) = %s, want placeholder", got)
	}
}

func TestValidate_ScriptMismatchNamesOffender(t *testing.T) {
	got := New().Validate(Candidate{Source: "Hello world", Text: "안녕하세요 세계", TargetLang: "ja"})
	if !strings.Contains(got.Detail, langscript.Hangul.Name()) {
		t.Errorf("Detail = %q, want it to name %s", got.Detail, langscript.Hangul.Name())
	}
}

func TestValidate_UntranslatedByDetection(t *testing.T) {
	v := New(WithDetector(stubDetector{code: "de", ok: true}))

	got := v.Validate(Candidate{
		Source:     "Das Wetter ist heute wirklich sehr schön.",
		Text:       "Das Wetter ist heute wirklich schön, sagt er.",
		SourceLang: "de",
		TargetLang: "en",
	})
	if got.Reason != ReasonUntranslated {
		t.Errorf("Validate() = %s, want untranslated", got)
	}

	v = New(WithDetector(stubDetector{code: "en", ok: true}))
	got = v.Validate(Candidate{
		Source:     "Das Wetter ist heute wirklich sehr schön.",
		Text:       "The weather is really very nice today.",
		SourceLang: "de",
		TargetLang: "en",
	})
	if !got.OK {
		t.Errorf("Validate() = %s, want ok", got)
	}
}

func TestValidate_SegmentationUsesTokenizer(t *testing.T) {
	c := Candidate{Source: "I love you dearly", Text: "ខ្ញុំស្រឡាញ់អ្នក", TargetLang: "km"}
	if got := New().Validate(c); got.Reason != ReasonSegmentation {
		t.Fatalf("Validate() = %s, want segmentation without a dictionary", got)
	}

	tok := tokenizer.New()
	tok.Register("km", tokenizer.NewDictionarySegmenter([]string{"ខ្ញុំ", "ស្រឡាញ់", "អ្នក"}))
	if got := New(WithTokenizer(tok)).Validate(c); !got.OK {
		t.Errorf("Validate() = %s, want ok with a km dictionary", got)
	}
}

func TestValidate_RulesOverride(t *testing.T) {
	rules := langscript.DefaultRules()
	delete(rules.Diacritics, "vi")
	v := New(WithRules(rules))

	got := v.Validate(Candidate{Source: "Hello friend, how are you today?", Text: "Xin chao ban, hom nay ban the nao?", TargetLang: "vi"})
	if !got.OK {
		t.Errorf("Validate() = %s, want ok once the vi rule is removed", got)
	}
}

func TestValidate_ScoreRanksFailures(t *testing.T) {
	v := New()
	source := "Hello my friend, it is good to see you again after so long."

	latin := v.Validate(Candidate{Source: source, Text: "Privet moy drug, rad tebya videt snova posle tak dolgo.", TargetLang: "ru"})
	short := v.Validate(Candidate{Source: source, Text: "Привет, друг.", TargetLang: "ru"})
	if latin.OK || short.OK {
		t.Fatalf("expected both to fail: %s / %s", latin, short)
	}
	if short.Score <= latin.Score {
		t.Errorf("too_short score %.2f should outrank transliteration score %.2f", short.Score, latin.Score)
	}
}

func TestValidateTransliteration(t *testing.T) {
	v := New()

	if got := v.ValidateTransliteration("Привет мир", "privet mir"); !got.OK {
		t.Errorf("ValidateTransliteration(latin) = %s, want ok", got)
	}
	if got := v.ValidateTransliteration("Привет мир", "привет мир"); got.Reason != ReasonScriptMismatch {
		t.Errorf("ValidateTransliteration(cyrillic) = %s, want script_mismatch", got)
	}
	if got := v.ValidateTransliteration("Привет мир", ""); got.Reason != ReasonPlaceholder {
		t.Errorf("ValidateTransliteration(empty) = %s, want placeholder", got)
	}
}

func TestVerdictString(t *testing.T) {
	if s := pass().String(); s != "ok" {
		t.Errorf("pass().String() = %q", s)
	}
	v := fail(ReasonTooShort, 0.5, "%d letters", 3)
	if s := v.String(); s != "too_short: 3 letters" {
		t.Errorf("String() = %q", s)
	}
}
