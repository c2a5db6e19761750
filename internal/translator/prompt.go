package translator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/valpere/interlinear/internal/langscript"
	"github.com/valpere/interlinear/internal/postprocess"
)

// LanguageName renders a code for prompts: "ru" -> "Russian (ru)".
func LanguageName(code string) string {
	if code == "" || code == "auto" {
		return "the detected language"
	}
	if name, ok := languageNames[langscript.Base(code)]; ok {
		return fmt.Sprintf("%s (%s)", name, code)
	}
	return code
}

var languageNames = map[string]string{
	"ar": "Arabic", "bg": "Bulgarian", "bn": "Bengali", "bo": "Tibetan", "cs": "Czech",
	"de": "German", "el": "Greek", "en": "English", "es": "Spanish", "fa": "Persian",
	"fr": "French", "he": "Hebrew", "hi": "Hindi", "hu": "Hungarian", "hy": "Armenian",
	"id": "Indonesian", "it": "Italian", "ja": "Japanese", "ka": "Georgian", "km": "Khmer",
	"ko": "Korean", "lo": "Lao", "my": "Burmese", "nl": "Dutch", "pl": "Polish",
	"pt": "Portuguese", "ro": "Romanian", "ru": "Russian", "sk": "Slovak", "sr": "Serbian",
	"sv": "Swedish", "ta": "Tamil", "th": "Thai", "tr": "Turkish", "uk": "Ukrainian",
	"vi": "Vietnamese", "yo": "Yoruba", "zh": "Chinese",
}

// TranslationPrompt builds the system prompt for one sentence.
func TranslationPrompt(req TranslateRequest) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are a professional translator. Translate the text between %s and %s from %s to %s.\n",
		postprocess.BeginMarker, postprocess.EndMarker, LanguageName(req.SourceLang), LanguageName(req.TargetLang))
	sb.WriteString("Only respond with the translation, nothing else. No explanations, no quotes, no markers.")

	script := langscript.ForLanguage(req.TargetLang)
	if script != langscript.Unknown {
		fmt.Fprintf(&sb, " Write it in %s script.", script.Name())
	}
	if script.Continuous() {
		sb.WriteString(" Separate words with single spaces.")
	}

	if len(req.Glossary) > 0 {
		sb.WriteString("\n\nTERMINOLOGY (use these exact translations):\n")
		terms := make([]string, 0, len(req.Glossary))
		for src := range req.Glossary {
			terms = append(terms, src)
		}
		sort.Strings(terms)
		for _, src := range terms {
			fmt.Fprintf(&sb, "  %s → %s\n", src, req.Glossary[src])
		}
	}

	if req.PreviousContext != "" {
		fmt.Fprintf(&sb, "\n\nCONTEXT (previous sentences, do NOT translate them):\n...%s", req.PreviousContext)
	}

	if req.Feedback != "" {
		fmt.Fprintf(&sb, "\n\nYour previous answer was rejected (%s). Fix that problem.", req.Feedback)
	}

	return sb.String()
}

// TransliterationPrompt builds the system prompt for romanizing text.
func TransliterationPrompt(req TransliterateRequest) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Transliterate the %s text between %s and %s into Latin script.\n",
		LanguageName(req.Lang), postprocess.BeginMarker, postprocess.EndMarker)
	sb.WriteString("Keep the pronunciation, not the meaning. Output one romanized word per source word, separated by single spaces; ")
	sb.WriteString("join the syllables of one word with hyphens. Only respond with the transliteration.")

	if req.Feedback != "" {
		fmt.Fprintf(&sb, "\n\nYour previous answer was rejected (%s). Fix that problem.", req.Feedback)
	}
	return sb.String()
}
