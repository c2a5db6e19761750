package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/valpere/interlinear/internal"
	"github.com/valpere/interlinear/internal/fallback"
	"github.com/valpere/interlinear/internal/llm"
	"github.com/valpere/interlinear/internal/translator"
	"github.com/valpere/interlinear/internal/validator"
)

type mockService struct {
	name      string
	kind      translator.Kind
	model     string
	replies   []string
	err       error
	callCount atomic.Int32

	mu        sync.Mutex
	feedbacks []string
}

func (m *mockService) Name() string { return m.name }

func (m *mockService) Kind() translator.Kind {
	if m.kind == "" {
		return translator.KindLLM
	}
	return m.kind
}

func (m *mockService) Model() string { return m.model }

func (m *mockService) next(feedback string) (*translator.ServiceResult, error) {
	n := int(m.callCount.Add(1))
	m.mu.Lock()
	m.feedbacks = append(m.feedbacks, feedback)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	reply := m.replies[len(m.replies)-1]
	if n <= len(m.replies) {
		reply = m.replies[n-1]
	}
	return &translator.ServiceResult{ServiceName: m.name, TranslatedText: reply}, nil
}

func (m *mockService) Translate(_ context.Context, req translator.TranslateRequest) (*translator.ServiceResult, error) {
	return m.next(req.Feedback)
}

func (m *mockService) Transliterate(_ context.Context, req translator.TransliterateRequest) (*translator.ServiceResult, error) {
	return m.next(req.Feedback)
}

func (m *mockService) IsAvailable(context.Context) error { return nil }

func ruRequest() translator.TranslateRequest {
	return translator.TranslateRequest{
		Text:       "The weather is nice today.",
		SourceLang: "en",
		TargetLang: "ru",
	}
}

func TestTranslateSentenceSimple_EmptyThenValid(t *testing.T) {
	primary := &mockService{name: "primary", replies: []string{"", "Сегодня хорошая погода."}}
	o := New(primary, WithPolicy(fallback.Policy{MaxAttempts: 2}))

	res := o.TranslateSentenceSimple(context.Background(), internal.NewJob("job", ""), ruRequest())
	if !res.OK() {
		t.Fatalf("unexpected failure: %s", res.Failure)
	}
	if res.Value != "Сегодня хорошая погода." {
		t.Errorf("Value = %q", res.Value)
	}
	if res.Attempts != 2 || res.Degraded {
		t.Errorf("Attempts = %d, Degraded = %v", res.Attempts, res.Degraded)
	}
	if primary.feedbacks[1] == "" {
		t.Error("second attempt should carry the rejection reason as feedback")
	}
}

func TestTranslateSentenceSimple_LatinScriptRetried(t *testing.T) {
	primary := &mockService{name: "primary", replies: []string{"Segodnya khoroshaya pogoda.", "Сегодня хорошая погода."}}
	o := New(primary, WithPolicy(fallback.Policy{MaxAttempts: 3}))

	res := o.TranslateSentenceSimple(context.Background(), internal.NewJob("job", ""), ruRequest())
	if res.Value != "Сегодня хорошая погода." || res.Attempts != 2 {
		t.Errorf("Value = %q, Attempts = %d", res.Value, res.Attempts)
	}
}

func TestTranslateSentenceSimple_KeepsBestCandidate(t *testing.T) {
	primary := &mockService{name: "primary", replies: []string{"Segodnya khoroshaya pogoda."}}
	o := New(primary, WithPolicy(fallback.Policy{MaxAttempts: 2}))

	res := o.TranslateSentenceSimple(context.Background(), internal.NewJob("job", ""), ruRequest())
	if !res.OK() || !res.Degraded {
		t.Fatalf("want degraded value, got %+v", res)
	}
	if res.Verdict.Reason != validator.ReasonTransliteration {
		t.Errorf("Reason = %s", res.Verdict.Reason)
	}
}

func TestTranslateSentenceSimple_ExhaustedFailure(t *testing.T) {
	primary := &mockService{name: "primary", replies: []string{""}}
	o := New(primary, WithPolicy(fallback.Policy{MaxAttempts: 3}))

	res := o.TranslateSentenceSimple(context.Background(), internal.NewJob("job", ""), ruRequest())
	if res.OK() {
		t.Fatalf("expected failure, got %q", res.Value)
	}
	text := res.Text(KindTranslation)
	if !IsFailure(text) {
		t.Errorf("Text() = %q is not a failure", text)
	}
	if want := FormatFailure(KindTranslation, 3, res.Failure); text != want {
		t.Errorf("Text() = %q, want %q", text, want)
	}
}

func TestTranslateSentenceSimple_FallbackPinsJob(t *testing.T) {
	var reports atomic.Int32
	primary := &mockService{name: "primary", err: &llm.StatusError{StatusCode: 503}}
	fb := &mockService{name: "backup", model: "backup-model", replies: []string{"Сегодня хорошая погода."}}
	o := New(primary,
		WithFallback(fb),
		WithPolicy(fallback.Policy{MaxAttempts: 2}),
		WithReporter(fallback.ReporterFunc(func(context.Context, string, fallback.Decision) { reports.Add(1) })),
	)
	job := internal.NewJob("job", "")

	res := o.TranslateSentenceSimple(context.Background(), job, ruRequest())
	if !res.OK() || res.Provider != "backup" || res.Model != "backup-model" {
		t.Fatalf("result = %+v", res)
	}
	d, ok := job.Fallback().Pinned(fallback.ConcernTranslation)
	if !ok {
		t.Fatal("job should be pinned")
	}
	if d.Trigger != fallback.TriggerTransport || d.Provider != "backup" {
		t.Errorf("decision = %+v", d)
	}

	// pinned jobs skip the primary entirely
	before := primary.callCount.Load()
	o.TranslateSentenceSimple(context.Background(), job, ruRequest())
	if primary.callCount.Load() != before {
		t.Error("primary called after pin")
	}
	if reports.Load() != 1 {
		t.Errorf("reports = %d, want 1", reports.Load())
	}
	if !o.Pinned(job, fallback.ConcernTranslation) || o.Pinned(job, fallback.ConcernTransliteration) {
		t.Error("pin should cover translation only")
	}
}

func TestTranslateSentenceSimple_PinIsPerJob(t *testing.T) {
	primary := &mockService{name: "primary", err: &llm.TransportError{Op: "post", Err: errors.New("refused")}}
	fb := &mockService{name: "backup", replies: []string{"Сегодня хорошая погода."}}
	o := New(primary, WithFallback(fb), WithPolicy(fallback.Policy{MaxAttempts: 1}))

	o.TranslateSentenceSimple(context.Background(), internal.NewJob("a", ""), ruRequest())
	other := internal.NewJob("b", "")
	if o.Pinned(other, fallback.ConcernTranslation) {
		t.Error("pin leaked to another job")
	}
}

func TestTranslateSentenceSimple_MTErrorEscalatesImmediately(t *testing.T) {
	primary := &mockService{name: "google", kind: translator.KindMT, err: errors.New("quota exceeded")}
	fb := &mockService{name: "backup", replies: []string{"Сегодня хорошая погода."}}
	o := New(primary, WithFallback(fb), WithPolicy(fallback.Policy{MaxAttempts: 5}))
	job := internal.NewJob("job", "")

	res := o.TranslateSentenceSimple(context.Background(), job, ruRequest())
	if !res.OK() || primary.callCount.Load() != 1 {
		t.Fatalf("primary calls = %d, result = %+v", primary.callCount.Load(), res)
	}
	if d, _ := job.Fallback().Pinned(fallback.ConcernTranslation); d.Trigger != fallback.TriggerMTError {
		t.Errorf("Trigger = %s", d.Trigger)
	}
}

func TestTranslateSentenceSimple_ConcurrentPinRecordedOnce(t *testing.T) {
	var reports atomic.Int32
	primary := &mockService{name: "primary", err: &llm.StatusError{StatusCode: 500}}
	fb := &mockService{name: "backup", replies: []string{"Сегодня хорошая погода."}}
	o := New(primary,
		WithFallback(fb),
		WithPolicy(fallback.Policy{MaxAttempts: 1}),
		WithReporter(fallback.ReporterFunc(func(context.Context, string, fallback.Decision) { reports.Add(1) })),
	)
	job := internal.NewJob("job", "")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.TranslateSentenceSimple(context.Background(), job, ruRequest())
		}()
	}
	wg.Wait()

	if reports.Load() != 1 {
		t.Errorf("reports = %d, want 1", reports.Load())
	}
	if n := len(job.Fallback().Decisions()); n != 1 {
		t.Errorf("decisions = %d, want 1", n)
	}
}

func TestTranslateSentenceSimple_Cancelled(t *testing.T) {
	primary := &mockService{name: "primary", replies: []string{"Сегодня хорошая погода."}}
	o := New(primary)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := o.TranslateSentenceSimple(ctx, internal.NewJob("job", ""), ruRequest())
	if res.OK() || primary.callCount.Load() != 0 {
		t.Errorf("calls = %d, result = %+v", primary.callCount.Load(), res)
	}
}

func TestTransliterate(t *testing.T) {
	tl := &mockService{name: "primary", replies: []string{"Сегодня", "Segodnya khoroshaya pogoda"}}
	o := New(&mockService{name: "primary", replies: []string{"x"}},
		WithTransliterators(tl, nil),
		WithPolicy(fallback.Policy{MaxAttempts: 3}))

	res := o.Transliterate(context.Background(), internal.NewJob("job", ""), "Сегодня хорошая погода", "ru")
	if !res.OK() || res.Value != "Segodnya khoroshaya pogoda" {
		t.Errorf("result = %+v", res)
	}
}

func TestTransliterate_NotConfigured(t *testing.T) {
	o := New(&mockService{name: "primary", replies: []string{"x"}})
	res := o.Transliterate(context.Background(), internal.NewJob("job", ""), "текст", "ru")
	if res.OK() {
		t.Error("expected failure without a transliterator")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		kind translator.Kind
		err  error
		want fallback.Trigger
	}{
		{translator.KindMT, errors.New("x"), fallback.TriggerMTError},
		{translator.KindLLM, &llm.StatusError{StatusCode: 502}, fallback.TriggerTransport},
		{translator.KindLLM, context.DeadlineExceeded, fallback.TriggerTimeout},
		{translator.KindLLM, llm.ErrEmptyResponse, fallback.TriggerQuality},
	}
	for _, tt := range tests {
		if got := classify(tt.kind, tt.err); got != tt.want {
			t.Errorf("classify(%s, %v) = %s, want %s", tt.kind, tt.err, got, tt.want)
		}
	}
}
