package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicModel = anthropic.Model("claude-sonnet-4-20250514")

// Anthropic calls the Anthropic Messages API.
type Anthropic struct {
	client anthropic.Client
	model  anthropic.Model
}

func NewAnthropic(apiKey string, opts ...option.RequestOption) (*Anthropic, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("API key is empty")
	}

	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)

	return &Anthropic{
		client: anthropic.NewClient(opts...),
		model:  anthropicModel,
	}, nil
}

func (a *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	prompt, err := validateRequest(req)
	if err != nil {
		return "", err
	}

	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: req.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system := strings.TrimSpace(req.System); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}

		return "", fmt.Errorf("do request: %w", err)
	}

	for _, block := range msg.Content {
		if block.Type != "text" {
			continue
		}

		if text := strings.TrimSpace(block.Text); text != "" {
			return text, nil
		}
	}

	return "", fmt.Errorf("text content is missing (stopReason = %s)", msg.StopReason)
}
