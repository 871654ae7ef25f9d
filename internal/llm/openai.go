package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

const openAILimitMaxOutputTokens int64 = 8192

// OpenAI calls OpenAI's Responses API.
type OpenAI struct {
	client openai.Client
}

func NewOpenAI(apiKey string, opts ...option.RequestOption) (*OpenAI, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("API key is empty")
	}

	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)

	return &OpenAI{client: openai.NewClient(opts...)}, nil
}

// Complete retries with a doubled output budget when the model stops on the
// token limit, up to openAILimitMaxOutputTokens.
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	prompt, err := validateRequest(req)
	if err != nil {
		return "", err
	}

	params := responses.ResponseNewParams{
		Model: openai.ChatModelGPT5Mini2025_08_07,
		Reasoning: responses.ReasoningParam{
			Effort: openai.ReasoningEffortLow,
		},
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String(prompt),
		},
	}
	if system := strings.TrimSpace(req.System); system != "" {
		params.Instructions = openai.String(system)
	}

	maxOutputTokens := req.MaxTokens
	for {
		params.MaxOutputTokens = openai.Int(maxOutputTokens)

		resp, err := o.client.Responses.New(ctx, params)
		if err != nil {
			var apiErr *openai.Error
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
				return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
			}

			return "", fmt.Errorf("do request: %w", err)
		}

		if resp.Status == "incomplete" {
			if resp.IncompleteDetails.Reason == "max_output_tokens" && maxOutputTokens < openAILimitMaxOutputTokens {
				maxOutputTokens = min(maxOutputTokens*2, openAILimitMaxOutputTokens)
				continue
			}

			return "", fmt.Errorf(
				"response is incomplete (reason = %s, maxOutputTokens = %d)",
				resp.IncompleteDetails.Reason,
				maxOutputTokens,
			)
		}

		text := strings.TrimSpace(resp.OutputText())
		if text == "" {
			return "", fmt.Errorf("output text is missing (status = %s)", resp.Status)
		}

		return text, nil
	}
}
