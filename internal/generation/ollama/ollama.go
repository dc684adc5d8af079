// Package ollama generates answers with a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"groundedrag/internal/domain"
	"groundedrag/internal/httpretry"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "llama3.2"
)

// Config configures the Ollama generate client.
type Config struct {
	BaseURL      string
	Model        string
	SystemPrompt string
	Temperature  *float64
	MaxTokens    int
	Timeout      time.Duration
	Retry        *httpretry.Policy
	Logger       *slog.Logger
}

// Client calls the non-streaming /api/generate endpoint.
type Client struct {
	baseURL string
	model   string
	system  string
	options map[string]any
	client  *http.Client
	policy  httpretry.Policy
	logger  *slog.Logger
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	policy := httpretry.DefaultPolicy
	if cfg.Retry != nil {
		policy = *cfg.Retry
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	options := map[string]any{}
	if cfg.Temperature != nil {
		options["temperature"] = *cfg.Temperature
	}
	if cfg.MaxTokens > 0 {
		options["num_predict"] = cfg.MaxTokens
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		system:  cfg.SystemPrompt,
		options: options,
		client:  &http.Client{Timeout: cfg.Timeout},
		policy:  policy,
		logger:  cfg.Logger,
	}
}

func (c *Client) Name() string { return "ollama:" + c.model }

func (c *Client) Generate(ctx context.Context, prompt string) (*domain.Generation, error) {
	data, err := json.Marshal(generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		System:  c.system,
		Stream:  false,
		Options: c.options,
	})
	if err != nil {
		return nil, err
	}
	url := c.baseURL + "/api/generate"
	resp, err := httpretry.Do(ctx, c.client, c.policy, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, c.logger)
	if err != nil {
		return nil, fmt.Errorf("ollama generate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama generate failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}
	if !out.Done {
		return nil, errors.New("ollama returned an incomplete response")
	}
	model := out.Model
	if model == "" {
		model = c.model
	}
	return &domain.Generation{
		Text:       out.Response,
		Model:      model,
		StopReason: out.DoneReason,
		Usage: domain.Usage{
			InputTokens:  out.PromptEvalCount,
			OutputTokens: out.EvalCount,
			TotalTokens:  out.PromptEvalCount + out.EvalCount,
		},
	}, nil
}
