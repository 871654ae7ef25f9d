package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// ErrUnauthorized marks a rejected API key.
var ErrUnauthorized = errors.New("llm: unauthorized")

// Request describes a single-turn prompt.
type Request struct {
	// System is optional guidance sent separately from the prompt.
	System string
	// Prompt is the user message.
	Prompt string
	// MaxTokens caps the response length.
	MaxTokens int64
}

// Completer produces a single text response for a prompt.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Factory builds a Completer for a caller supplied API key.
type Factory func(apiKey string) (Completer, error)

// NewFactory returns a Factory for the named provider.
func NewFactory(provider string) (Factory, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", ProviderAnthropic:
		return func(apiKey string) (Completer, error) {
			return NewAnthropic(apiKey)
		}, nil
	case ProviderOpenAI:
		return func(apiKey string) (Completer, error) {
			return NewOpenAI(apiKey)
		}, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}

// ParseKeywords splits a model response into one keyword or phrase per line.
func ParseKeywords(text string) []string {
	var keywords []string

	for line := range strings.SplitSeq(text, "\n") {
		k := strings.TrimSpace(line)
		if k == "" {
			continue
		}
		keywords = append(keywords, k)
	}

	return keywords
}

func validateRequest(req Request) (string, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", errors.New("prompt is empty")
	}
	if req.MaxTokens <= 0 {
		return "", errors.New("max tokens must be positive")
	}

	return prompt, nil
}
