// Package llm wraps the hosted text-generation backend.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lectern/internal/config"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// SystemPrompt steers the model towards structured lecture notes.
const SystemPrompt = `You are an expert class note taker. Your task is to:
1. Identify and structure key concepts and ideas from the lecture
2. Organize information in a clear, hierarchical format
3. Highlight important definitions, theories, and examples
4. Include any mentioned references or resources
5. Note any assignments or important dates mentioned

Format your notes in markdown with:
- Clear headings for main topics
- Bullet points for key details
- Code blocks for technical content
- *Emphasis* for important terms
- > Blockquotes for direct quotes or important statements`

// ErrEmptyResponse is returned when the backend answers without content.
var ErrEmptyResponse = errors.New("llm returned no choices")

// Generator produces text for a prompt within a token budget.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// chatCompleter is the subset of *openai.Client we use.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client is an OpenAI-compatible chat generator.
type Client struct {
	api         chatCompleter
	model       string
	temperature float32
	timeout     time.Duration
	retry       RetryConfig
	logger      *logrus.Logger
}

// New builds a Client from config. For api_type "local" the key may be empty
// and api_base should point at an OpenAI-compatible local server.
func New(cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}
	key := cfg.LLM.APIKey
	if key == "" {
		key = "local"
	}
	oc := openai.DefaultConfig(key)
	if base := strings.TrimSpace(cfg.LLM.APIBase); base != "" {
		oc.BaseURL = strings.TrimRight(base, "/")
	}
	retry := DefaultRetryConfig()
	retry.MaxRetries = cfg.LLM.MaxRetries
	return &Client{
		api:         openai.NewClientWithConfig(oc),
		model:       cfg.LLM.Model,
		temperature: float32(cfg.LLM.Temperature),
		timeout:     cfg.LLMTimeout(),
		retry:       retry,
		logger:      logger,
	}, nil
}

// Generate sends prompt as the user turn. Each attempt is bounded by the
// configured timeout; failed attempts are retried with backoff.
func (c *Client) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: c.temperature,
	}
	var out string
	err := Retry(ctx, c.retry, c.logger, func() error {
		attemptCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		resp, err := c.api.CreateChatCompletion(attemptCtx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return ErrEmptyResponse
		}
		out = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generate (%s): %w", c.model, err)
	}
	return out, nil
}
