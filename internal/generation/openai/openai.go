// Package openai generates answers with an OpenAI-compatible chat completion API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"groundedrag/internal/domain"
)

const (
	DefaultSystemPrompt = "You are a helpful AI"
	DefaultTemperature  = 0.5
	DefaultMaxTokens    = 4096
)

// Config configures the chat client. APIKey takes precedence over the
// environment variable named by APIKeyEnv. A nil Temperature means
// DefaultTemperature.
type Config struct {
	BaseURL      string
	APIKey       string
	APIKeyEnv    string
	Model        string
	SystemPrompt string
	Temperature  *float32
	MaxTokens    int
	Timeout      time.Duration
}

// Client implements the Generator interface.
type Client struct {
	client       *goopenai.Client
	model        string
	systemPrompt string
	temperature  float32
	maxTokens    int
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("%w: missing API key in env %s", domain.ErrInvalidConfiguration, cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = goopenai.GPT4oMini
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	temperature := float32(DefaultTemperature)
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}
	// go-openai omits a zero temperature, which makes the server fall back
	// to its default of 1.
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	clientCfg := goopenai.DefaultConfig(key)
	clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Client{
		client:       goopenai.NewClientWithConfig(clientCfg),
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		temperature:  temperature,
		maxTokens:    cfg.MaxTokens,
	}, nil
}

func (c *Client) Name() string { return "openai:" + c.model }

// Generate sends the prompt as the single user message after the system prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (*domain.Generation, error) {
	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: c.systemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices returned")
	}
	choice := resp.Choices[0]
	model := resp.Model
	if model == "" {
		model = c.model
	}
	return &domain.Generation{
		Text:       choice.Message.Content,
		Model:      model,
		StopReason: string(choice.FinishReason),
		Usage: domain.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}
