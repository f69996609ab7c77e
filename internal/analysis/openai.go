package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
)

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAIClient analyzes transcripts with a chat completion in JSON mode.
type OpenAIClient struct {
	client openai.Client
	model  string
}

func NewOpenAIClient(cfg OpenAIConfig, opts ...option.RequestOption) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = "gpt-3.5-turbo"
	}
	base := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		base = append(base, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		base = append(base, option.WithRequestTimeout(cfg.Timeout))
	}
	return &OpenAIClient{client: openai.NewClient(append(base, opts...)...), model: cfg.Model}
}

func (c *OpenAIClient) Analyze(ctx context.Context, text string) (Result, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt),
			openai.UserMessage(text),
		},
		Temperature: openai.Float(0.2),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		se := &ServiceError{Provider: "openai", Err: err}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			se.StatusCode = apiErr.StatusCode
		}
		return Result{}, se
	}
	if len(resp.Choices) == 0 {
		return Result{}, &ServiceError{Provider: "openai", Err: errNoContent}
	}
	return Parse(resp.Choices[0].Message.Content)
}
