package translator

import (
	"context"
	"time"
)

// Kind separates chat-model providers from machine-translation APIs. Only
// LLM providers can transliterate, and an MT failure is not worth retrying
// on the same provider.
type Kind string

const (
	KindLLM Kind = "llm"
	KindMT  Kind = "mt"
)

type TranslateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
	// PreviousContext is the tail of the preceding sentences.
	PreviousContext string `json:"previous_context,omitempty"`
	// Glossary maps source terms to mandatory target terms.
	Glossary map[string]string `json:"glossary,omitempty"`
	// Feedback explains why the previous attempt was rejected.
	Feedback string `json:"feedback,omitempty"`
}

type TransliterateRequest struct {
	Text     string `json:"text"`
	Lang     string `json:"lang"`
	Feedback string `json:"feedback,omitempty"`
}

type ServiceResult struct {
	ServiceName    string            `json:"service_name"`
	TranslatedText string            `json:"translated_text"`
	Confidence     float64           `json:"confidence"`
	Metadata       map[string]string `json:"metadata"`
	Latency        time.Duration     `json:"latency"`
	Error          string            `json:"error,omitempty"`
}

// Model returns the model recorded in the result metadata, if any.
func (r *ServiceResult) Model() string {
	if r == nil || r.Metadata == nil {
		return ""
	}
	return r.Metadata["model"]
}

type TranslationService interface {
	Name() string
	Kind() Kind
	Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error)
	IsAvailable(ctx context.Context) error
}

// Transliterator renders text in Latin script.
type Transliterator interface {
	Name() string
	Transliterate(ctx context.Context, req TransliterateRequest) (*ServiceResult, error)
}
