package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	openaioption "github.com/openai/openai-go/v3/option"
)

func TestParseKeywords(t *testing.T) {
	got := ParseKeywords("  rate limiting \n\n stripe webhooks\n   \nretry policy  ")
	want := []string{"rate limiting", "stripe webhooks", "retry policy"}

	if !slices.Equal(got, want) {
		t.Fatalf("unexpected keywords: got %q want %q", got, want)
	}

	if got := ParseKeywords("\n \n"); len(got) != 0 {
		t.Fatalf("expected no keywords, got %q", got)
	}
}

func TestNewFactory(t *testing.T) {
	for _, provider := range []string{"", "anthropic", "OpenAI"} {
		f, err := NewFactory(provider)
		if err != nil {
			t.Fatalf("provider %q: unexpected error: %v", provider, err)
		}
		if _, err = f("key"); err != nil {
			t.Fatalf("provider %q: build completer: %v", provider, err)
		}
	}

	if _, err := NewFactory("mystery"); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestCompletersRejectEmptyKey(t *testing.T) {
	if _, err := NewAnthropic(" "); err == nil {
		t.Fatalf("expected error for empty Anthropic key")
	}
	if _, err := NewOpenAI(""); err == nil {
		t.Fatalf("expected error for empty OpenAI key")
	}
}

func TestAnthropicComplete(t *testing.T) {
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Errorf("unexpected API key header: %q", r.Header.Get("X-Api-Key"))
		}

		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [{"type": "text", "text": "  the answer  "}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 3, "output_tokens": 2}
		}`)
	}))
	defer srv.Close()

	c, err := NewAnthropic("test-key", anthropicoption.WithBaseURL(srv.URL), anthropicoption.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	got, err := c.Complete(context.Background(), Request{
		System:    "be brief",
		Prompt:    "question",
		MaxTokens: 200,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != "the answer" {
		t.Fatalf("unexpected answer: %q", got)
	}

	if gotBody["model"] != "claude-sonnet-4-20250514" {
		t.Fatalf("unexpected model: %v", gotBody["model"])
	}
	if gotBody["max_tokens"] != float64(200) {
		t.Fatalf("unexpected max tokens: %v", gotBody["max_tokens"])
	}
}

func TestAnthropicUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer srv.Close()

	c, err := NewAnthropic("bad-key", anthropicoption.WithBaseURL(srv.URL), anthropicoption.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = c.Complete(context.Background(), Request{Prompt: "q", MaxTokens: 10})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestOpenAIUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`)
	}))
	defer srv.Close()

	c, err := NewOpenAI("bad-key", openaioption.WithBaseURL(srv.URL), openaioption.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = c.Complete(context.Background(), Request{Prompt: "q", MaxTokens: 10})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestCompleteValidatesRequest(t *testing.T) {
	c, err := NewAnthropic("key")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if _, err = c.Complete(context.Background(), Request{Prompt: " ", MaxTokens: 10}); err == nil {
		t.Fatalf("expected error for empty prompt")
	}
	if _, err = c.Complete(context.Background(), Request{Prompt: "q"}); err == nil {
		t.Fatalf("expected error for missing max tokens")
	}
}
