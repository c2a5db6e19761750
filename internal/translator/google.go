package translator

import (
	"context"
	"fmt"
	"html"
	"sync"
	"time"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"
)

// GoogleService calls Google Cloud Translation v2. The client is created
// on first use and reused.
type GoogleService struct {
	opts []option.ClientOption

	once    sync.Once
	client  *translate.Client
	initErr error
}

// NewGoogleService uses credentialsFile when set, else the ambient
// application-default credentials. Extra options are appended.
func NewGoogleService(credentialsFile string, opts ...option.ClientOption) *GoogleService {
	var all []option.ClientOption
	if credentialsFile != "" {
		all = append(all, option.WithCredentialsFile(credentialsFile))
	}
	return &GoogleService{opts: append(all, opts...)}
}

func (s *GoogleService) Name() string { return "google" }
func (s *GoogleService) Kind() Kind   { return KindMT }

func (s *GoogleService) Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name()}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	target, err := language.Parse(req.TargetLang)
	if err != nil {
		result.Error = fmt.Sprintf("invalid target language: %v", err)
		return result, fmt.Errorf("invalid target language: %w", err)
	}

	opts := &translate.Options{Format: translate.Text}
	if req.SourceLang != "" && req.SourceLang != "auto" {
		source, err := language.Parse(req.SourceLang)
		if err != nil {
			result.Error = fmt.Sprintf("invalid source language: %v", err)
			return result, fmt.Errorf("invalid source language: %w", err)
		}
		opts.Source = source
	}

	client, err := s.getClient(ctx)
	if err != nil {
		result.Error = fmt.Sprintf("failed to create client: %v", err)
		return result, fmt.Errorf("failed to create client: %w", err)
	}

	translations, err := client.Translate(ctx, []string{req.Text}, target, opts)
	if err != nil {
		result.Error = fmt.Sprintf("translation failed: %v", err)
		return result, fmt.Errorf("translation failed: %w", err)
	}
	if len(translations) == 0 {
		result.Error = "no translation returned"
		return result, fmt.Errorf("no translation returned")
	}

	result.TranslatedText = html.UnescapeString(translations[0].Text)
	result.Confidence = 1.0
	result.Metadata = map[string]string{"model": "nmt"}
	if translations[0].Source != language.Und {
		result.Metadata["detected_source"] = translations[0].Source.String()
	}
	return result, nil
}

func (s *GoogleService) getClient(ctx context.Context) (*translate.Client, error) {
	s.once.Do(func() {
		s.client, s.initErr = translate.NewClient(context.WithoutCancel(ctx), s.opts...)
	})
	return s.client, s.initErr
}

func (s *GoogleService) IsAvailable(ctx context.Context) error {
	_, err := s.getClient(ctx)
	return err
}

// Close releases the underlying client.
func (s *GoogleService) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
