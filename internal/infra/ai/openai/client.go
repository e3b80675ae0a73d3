package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/hs-analyzer/internal/domain/ai"
	domain "github.com/bryanwahyu/hs-analyzer/internal/domain/analysis"
)

const (
	defaultModel     = "gpt-5-mini"
	defaultMaxTokens = 2048
)

type Client struct {
	*openai.Client
	Model     string
	MaxTokens int
}

// NewClient builds a chat client. baseURL may point at any OpenAI-compatible
// endpoint (e.g. a local Ollama at http://localhost:11434/v1).
func NewClient(apiKey, baseURL, model string, httpTimeout time.Duration) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if httpTimeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: httpTimeout}
	}
	return &Client{Client: openai.NewClientWithConfig(cfg), Model: model}
}

func (c *Client) Complete(ctx context.Context, in ai.Request) (string, error) {
	model := c.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: in.System},
			{Role: openai.ChatMessageRoleUser, Content: in.User},
		},
	}
	if in.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens and leave temperature at the default
	if isReasoningModel(model) {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
		req.Temperature = in.Temperature
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", mapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices: %w", domain.ErrMalformed)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("chat completion returned empty content: %w", domain.ErrMalformed)
	}
	return content, nil
}

func isReasoningModel(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(m, p) {
			return true
		}
	}
	return false
}

// mapError translates provider and transport errors into the stage error taxonomy.
func mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("chat completion: %w: %v", domain.ErrTimeout, err)
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", ai.ErrQuotaExceeded, err)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return fmt.Errorf("chat completion: %w: %v", domain.ErrTimeout, err)
	case status >= 500:
		return fmt.Errorf("chat completion: %w: %v", domain.ErrUnreachable, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("chat completion: %w: %v", domain.ErrTimeout, err)
		}
		return fmt.Errorf("chat completion: %w: %v", domain.ErrUnreachable, err)
	}
	return fmt.Errorf("failed to create chat completion: %w", err)
}
