package llm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Text string `json:"text"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	// Some OpenAI-compatible gateways pass through other shapes.
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Response string          `json:"response"`
	Error    json.RawMessage `json:"error"`
}

// decodeResponse pulls the answer text out of a chat-completion body.
func decodeResponse(body []byte) (*Response, error) {
	var raw chatResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}
	if msg := errorMessage(raw.Error); msg != "" {
		return nil, fmt.Errorf("gateway error: %s", msg)
	}

	resp := &Response{
		Model:            raw.Model,
		PromptTokens:     raw.Usage.PromptTokens,
		CompletionTokens: raw.Usage.CompletionTokens,
	}
	switch {
	case len(raw.Choices) > 0 && raw.Choices[0].Message.Content != "":
		resp.Content = raw.Choices[0].Message.Content
	case len(raw.Choices) > 0 && raw.Choices[0].Text != "":
		resp.Content = raw.Choices[0].Text
	case raw.Response != "":
		resp.Content = raw.Response
	default:
		for _, block := range raw.Content {
			if block.Type == "text" && block.Text != "" {
				resp.Content = block.Text
				break
			}
		}
	}
	if strings.TrimSpace(resp.Content) == "" {
		return nil, ErrEmptyResponse
	}
	return resp, nil
}

func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// retryDelay reads how long a 429 asks us to wait: the Retry-After header
// in seconds, else a Google-style RetryInfo detail in the body.
func retryDelay(header string, body []byte, fallback time.Duration) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}

	var payload struct {
		Error struct {
			Details []struct {
				Type       string `json:"@type"`
				RetryDelay string `json:"retryDelay"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, d := range payload.Error.Details {
			if !strings.HasSuffix(d.Type, "RetryInfo") || d.RetryDelay == "" {
				continue
			}
			if delay, err := time.ParseDuration(d.RetryDelay); err == nil {
				return delay
			}
		}
	}
	return fallback
}
