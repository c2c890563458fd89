package providers

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/coursepilot/gateway/internal/gateway/contextwindow"
)

// openRouterBaseURL is the single HTTP gateway all upstream models are
// reached through.
const openRouterBaseURL = "https://openrouter.ai/api/v1"

// Usage is the token accounting block from an upstream response.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Completion is a normalized upstream chat result.
type Completion struct {
	Content string
	Model   string
	Usage   Usage
}

// Client talks to OpenRouter with a single credential.
type Client struct {
	api *openai.Client
}

// NewClient creates a client bound to one API key. OpenRouter speaks the
// OpenAI wire format, so the OpenAI SDK is pointed at its base URL.
func NewClient(apiKey string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = openRouterBaseURL
	return &Client{api: openai.NewClientWithConfig(cfg)}
}

// ChatCompletion sends the assembled context to the given model and
// returns the first choice with its usage block.
func (c *Client) ChatCompletion(ctx context.Context, model string, messages []contextwindow.Message) (*Completion, error) {
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("OpenRouter API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("OpenRouter returned no choices")
	}

	return &Completion{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// ListModels performs a lightweight authenticated call, used to validate a
// credential without generating a completion.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	resp, err := c.api.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("OpenRouter API error: %w", err)
	}

	ids := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}
