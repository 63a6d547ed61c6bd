// Package genai wraps an OpenAI-compatible chat completion endpoint used as
// the fallback ticket responder.
package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"supreme-bot/internal/config"
)

var (
	ErrNotConfigured     = errors.New("genai: api key not configured")
	ErrNoChoicesReturned = errors.New("genai: no choices returned")
	ErrEmptyResponse     = errors.New("genai: empty response")
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role    Role
	Content string
}

type Request struct {
	Query   string
	History []Turn
	// Context is appended to the system prompt, e.g. the collected trade data.
	Context string
}

// chatService is the subset of the completions API the client needs.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

type Client struct {
	chat         chatService
	models       []string
	temperature  float64
	maxTokens    int
	systemPrompt string
	logger       *zap.Logger
}

func NewClient(cfg config.GenAIConfig, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	cli := openai.NewClient(opts...)
	return newClient(&cli.Chat.Completions, cfg, logger), nil
}

func newClient(chat chatService, cfg config.GenAIConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		chat:         chat,
		models:       cfg.Models,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		systemPrompt: cfg.SystemPrompt,
		logger:       logger,
	}
}

// Generate tries each configured model in order and returns the first
// non-empty answer.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	if len(c.models) == 0 {
		return "", fmt.Errorf("genai: no models configured")
	}
	messages := c.messages(req)

	var lastErr error
	for _, model := range c.models {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		params := openai.ChatCompletionNewParams{
			Model:    openai.ChatModel(model),
			Messages: messages,
		}
		if c.temperature > 0 {
			params.Temperature = openai.Float(c.temperature)
		}
		if c.maxTokens > 0 {
			params.MaxTokens = openai.Int(int64(c.maxTokens))
		}

		resp, err := c.chat.New(ctx, params)
		if err != nil {
			c.logger.Warn("model failed, trying next", zap.String("model", model), zap.Error(err))
			lastErr = err
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = ErrNoChoicesReturned
			continue
		}
		content := strings.TrimSpace(resp.Choices[0].Message.Content)
		if content == "" {
			lastErr = ErrEmptyResponse
			continue
		}
		return content, nil
	}
	return "", fmt.Errorf("genai: all models failed: %w", lastErr)
}

func (c *Client) messages(req Request) []openai.ChatCompletionMessageParamUnion {
	system := c.systemPrompt
	if req.Context != "" {
		system += "\n" + req.Context
	}
	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(system)}
	for _, turn := range req.History {
		if turn.Content == "" {
			continue
		}
		if turn.Role == RoleAssistant {
			messages = append(messages, openai.AssistantMessage(turn.Content))
		} else {
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}
	return append(messages, openai.UserMessage(req.Query))
}
