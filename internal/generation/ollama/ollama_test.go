package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundedrag/internal/domain"
	"groundedrag/internal/httpretry"
)

func TestGenerate(t *testing.T) {
	ctx := context.Background()
	policy := &httpretry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	t.Run("Non-streaming request and usage", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/generate", r.URL.Path)
			var req generateRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "llama3.2", req.Model)
			assert.Equal(t, "You are a helpful AI", req.System)
			assert.False(t, req.Stream)
			assert.Equal(t, 0.5, req.Options["temperature"])
			assert.Equal(t, float64(64), req.Options["num_predict"])
			_ = json.NewEncoder(w).Encode(generateResponse{
				Model: "llama3.2:latest", Response: "Blue.", Done: true, DoneReason: "stop",
				PromptEvalCount: 20, EvalCount: 3,
			})
		}))
		defer srv.Close()

		temp := 0.5
		c := NewClient(Config{BaseURL: srv.URL, SystemPrompt: "You are a helpful AI", Temperature: &temp, MaxTokens: 64, Retry: policy})
		gen, err := c.Generate(ctx, "prompt")
		require.NoError(t, err)
		assert.Equal(t, "Blue.", gen.Text)
		assert.Equal(t, "llama3.2:latest", gen.Model)
		assert.Equal(t, "stop", gen.StopReason)
		assert.Equal(t, domain.Usage{InputTokens: 20, OutputTokens: 3, TotalTokens: 23}, gen.Usage)
		assert.Equal(t, "ollama:llama3.2", c.Name())
	})

	t.Run("Retries rate limiting", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			_ = json.NewEncoder(w).Encode(generateResponse{Response: "ok", Done: true})
		}))
		defer srv.Close()

		gen, err := NewClient(Config{BaseURL: srv.URL, Retry: policy}).Generate(ctx, "prompt")
		require.NoError(t, err)
		assert.Equal(t, "ok", gen.Text)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("Incomplete response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"response":"partial","done":false}`))
		}))
		defer srv.Close()

		_, err := NewClient(Config{BaseURL: srv.URL, Retry: policy}).Generate(ctx, "prompt")
		assert.Error(t, err)
	})

	t.Run("Model missing", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
		}))
		defer srv.Close()

		_, err := NewClient(Config{BaseURL: srv.URL, Retry: policy}).Generate(ctx, "prompt")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "model not found")
	})
}
