package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"groundedrag/internal/embedding"
)

// Client is an OpenAI-compatible embeddings client implementing the Embedder interface.
type Client struct {
	client    *goopenai.Client
	model     string
	dimension atomic.Int64
}

// Config configures the OpenAI-compatible embeddings client.
// APIKey takes precedence over the environment variable named by APIKeyEnv.
type Config struct {
	BaseURL   string
	APIKey    string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = string(goopenai.SmallEmbedding3)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	clientCfg := goopenai.DefaultConfig(key)
	clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Client{
		client: goopenai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai:" + c.model }

// Prepare is not required for remote embedding. Dimension is set on first embed.
func (c *Client) Prepare(context.Context, []string) error { return nil }

// Dimension returns the dimensionality of the produced embedding vectors,
// or 0 before the first successful call.
func (c *Client) Dimension() int { return int(c.dimension.Load()) }

// Embed returns an L2-normalized embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, errors.New("cannot embed empty text")
	}
	resp, err := c.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Model: goopenai.EmbeddingModel(c.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("no embedding returned")
	}
	v := embedding.Normalize(embedding.FromFloat32(resp.Data[0].Embedding))
	c.dimension.CompareAndSwap(0, int64(len(v)))
	return v, nil
}
