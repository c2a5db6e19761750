package translator

import (
	"context"
	"fmt"
	"time"

	"github.com/valpere/interlinear/internal/llm"
	"github.com/valpere/interlinear/internal/placeholder"
	"github.com/valpere/interlinear/internal/postprocess"
)

// LLMService translates and transliterates through a chat-completion
// gateway. The same type serves as primary and fallback provider.
type LLMService struct {
	name   string
	client *llm.Client
	health *llm.HealthChecker
}

func NewLLMService(name string, client *llm.Client, health *llm.HealthChecker) *LLMService {
	if name == "" {
		name = "llm"
	}
	return &LLMService{name: name, client: client, health: health}
}

func (s *LLMService) Name() string { return s.name }
func (s *LLMService) Kind() Kind   { return KindLLM }

// Model is the gateway model the service talks to.
func (s *LLMService) Model() string { return s.client.Model() }

// Client exposes the gateway client, used by the batch path.
func (s *LLMService) Client() *llm.Client { return s.client }

func (s *LLMService) Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error) {
	text, spans := placeholder.Protect(req.Text)
	req.Text = text
	return s.protected(ctx, TranslationPrompt(req), text, spans)
}

func (s *LLMService) Transliterate(ctx context.Context, req TransliterateRequest) (*ServiceResult, error) {
	text, spans := placeholder.Protect(req.Text)
	req.Text = text
	return s.protected(ctx, TransliterationPrompt(req), text, spans)
}

// protected runs a completion over text whose untranslatable spans were
// replaced by markers, and restores them in the answer. An answer that
// dropped a marker is an error.
func (s *LLMService) protected(ctx context.Context, system, text string, spans []string) (*ServiceResult, error) {
	if len(spans) == 0 {
		return s.complete(ctx, system, text)
	}
	result, err := s.complete(ctx, system+"\n\n"+placeholder.InstructionHint(), text)
	if err != nil {
		return result, err
	}
	if missing := placeholder.Missing(result.TranslatedText, spans); len(missing) > 0 {
		lost := &placeholder.LostError{Missing: missing}
		result.Error = lost.Error()
		return result, fmt.Errorf("%s: %w", s.name, lost)
	}
	result.TranslatedText = placeholder.Restore(result.TranslatedText, spans)
	return result, nil
}

func (s *LLMService) complete(ctx context.Context, system, text string) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name()}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	resp, err := s.client.Chat(ctx, llm.Request{
		Messages: []llm.Message{llm.System(system), llm.User(postprocess.Wrap(text))},
	})
	if err != nil {
		result.Error = err.Error()
		return result, fmt.Errorf("%s: %w", s.name, err)
	}

	result.TranslatedText = postprocess.Clean(resp.Content)
	result.Confidence = 0.7
	model := resp.Model
	if model == "" {
		model = s.client.Model()
	}
	result.Metadata = map[string]string{
		"model":             model,
		"attempts":          fmt.Sprintf("%d", resp.Attempts),
		"prompt_tokens":     fmt.Sprintf("%d", resp.PromptTokens),
		"completion_tokens": fmt.Sprintf("%d", resp.CompletionTokens),
	}
	return result, nil
}

func (s *LLMService) IsAvailable(ctx context.Context) error {
	if s.health == nil {
		_, err := s.client.Models(ctx)
		return err
	}
	return s.health.Check(ctx, s.client)
}
