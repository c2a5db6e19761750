package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func noBackoff(int) time.Duration { return 0 }

func chatJSON(content string) string {
	b, _ := json.Marshal(map[string]any{
		"model": "test-model",
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
		"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 3},
	})
	return string(b)
}

func TestClient_Chat(t *testing.T) {
	var got struct {
		Model    string    `json:"model"`
		Messages []Message `json:"messages"`
		Stream   bool      `json:"stream"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(chatJSON("Привет")))
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL + "/", APIKey: "secret", Model: "test-model"})
	resp, err := c.Chat(context.Background(), Request{Messages: []Message{System("sys"), User("Hello")}})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Content != "Привет" || resp.PromptTokens != 12 || resp.Attempts != 1 {
		t.Errorf("unexpected response %+v", resp)
	}
	if got.Model != "test-model" || got.Stream || len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(chatJSON("ok")))
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL, MaxRetries: 3}, WithBackoff(noBackoff))
	resp, err := c.Chat(context.Background(), Request{Messages: []Message{User("x")}})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Attempts != 3 || calls.Load() != 3 {
		t.Errorf("attempts = %d, calls = %d; want 3, 3", resp.Attempts, calls.Load())
	}
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL, MaxRetries: 3}, WithBackoff(noBackoff))
	_, err := c.Chat(context.Background(), Request{Messages: []Message{User("x")}})

	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Fatalf("error = %v, want 401 StatusError", err)
	}
	if !IsTransport(err) {
		t.Error("IsTransport should be true for a StatusError")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestClient_RateLimitedUsesRetryAfter(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(chatJSON("ok")))
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL, MaxRetries: 1})
	start := time.Now()
	if _, err := c.Chat(context.Background(), Request{Messages: []Message{User("x")}}); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Retry-After: 0 should not wait, took %v", elapsed)
	}
}

func TestClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := NewClient(Config{BaseURL: url, MaxRetries: 1}, WithBackoff(noBackoff))
	_, err := c.Chat(context.Background(), Request{Messages: []Message{User("x")}})

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want TransportError", err)
	}
}

func TestClient_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatJSON("   ")))
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL})
	_, err := c.Complete(context.Background(), "sys", "user")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("error = %v, want ErrEmptyResponse", err)
	}
	if IsTransport(err) {
		t.Error("empty content is not a transport error")
	}
}

func TestClient_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(Config{BaseURL: server.URL, MaxRetries: 5}, WithBackoff(func(int) time.Duration {
		cancel()
		return time.Hour
	}))
	_, err := c.Chat(ctx, Request{Messages: []Message{User("x")}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestClient_Models(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/models" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"data":[{"id":"a"},{"id":"b"}]}`))
	}))
	defer server.Close()

	ids, err := NewClient(Config{BaseURL: server.URL}).Models(context.Background())
	if err != nil {
		t.Fatalf("Models() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" {
		t.Errorf("Models() = %v", ids)
	}
}

func TestDecodeResponse_Shapes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{"chat", chatJSON("hi"), "hi", false},
		{"legacy text", `{"choices":[{"text":"hi"}]}`, "hi", false},
		{"content blocks", `{"content":[{"type":"thinking","text":"x"},{"type":"text","text":"hi"}]}`, "hi", false},
		{"response field", `{"response":"hi"}`, "hi", false},
		{"error object", `{"error":{"message":"overloaded"}}`, "", true},
		{"error string", `{"error":"overloaded"}`, "", true},
		{"not json", `<html>`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := decodeResponse([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && resp.Content != tt.want {
				t.Errorf("Content = %q, want %q", resp.Content, tt.want)
			}
		})
	}
}

func TestRetryDelay(t *testing.T) {
	body := []byte(`{"error":{"details":[{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"7s"}]}}`)

	if d := retryDelay("3", nil, time.Minute); d != 3*time.Second {
		t.Errorf("header delay = %v", d)
	}
	if d := retryDelay("", body, time.Minute); d != 7*time.Second {
		t.Errorf("body delay = %v", d)
	}
	if d := retryDelay("soon", []byte("{}"), time.Minute); d != time.Minute {
		t.Errorf("fallback delay = %v", d)
	}
}
