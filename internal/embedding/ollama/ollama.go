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
	"sync/atomic"
	"time"

	"groundedrag/internal/embedding"
	"groundedrag/internal/httpretry"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "nomic-embed-text"
)

// Client talks to the native Ollama embeddings endpoint.
type Client struct {
	baseURL   string
	model     string
	client    *http.Client
	policy    httpretry.Policy
	logger    *slog.Logger
	dimension atomic.Int64
}

// Config configures the Ollama embeddings client.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	Retry   *httpretry.Policy
	Logger  *slog.Logger
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	policy := httpretry.DefaultPolicy
	if cfg.Retry != nil {
		policy = *cfg.Retry
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
		policy:  policy,
		logger:  cfg.Logger,
	}
}

func (c *Client) Name() string { return "ollama:" + c.model }

// Prepare is not required for remote embedding.
func (c *Client) Prepare(context.Context, []string) error { return nil }

func (c *Client) Dimension() int { return int(c.dimension.Load()) }

// Embed returns an L2-normalized embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	data, err := json.Marshal(embeddingRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, err
	}
	url := c.baseURL + "/api/embeddings"
	resp, err := httpretry.Do(ctx, c.client, c.policy, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, c.logger)
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama embeddings failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode ollama embeddings: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, errors.New("no embedding returned")
	}
	v := embedding.Normalize(out.Embedding)
	c.dimension.CompareAndSwap(0, int64(len(v)))
	return v, nil
}
