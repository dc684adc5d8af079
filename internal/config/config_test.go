package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundedrag/internal/domain"
)

func TestLoad(t *testing.T) {
	t.Run("Missing file returns defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Sections get their defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
embedder:
  type: openai
generator:
  type: ollama
  temperature: 0
vector_store:
  type: qdrant
retrieval:
  top_k: 2
`), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		require.NotNil(t, cfg.Embedder.OpenAI)
		assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
		assert.Equal(t, "text-embedding-3-small", cfg.Embedder.OpenAI.Model)
		require.NotNil(t, cfg.Generator.Ollama)
		assert.Equal(t, "llama3.2", cfg.Generator.Ollama.Model)
		require.NotNil(t, cfg.Generator.Temperature)
		assert.Zero(t, *cfg.Generator.Temperature)
		require.NotNil(t, cfg.VectorStore.Qdrant)
		assert.Equal(t, "http://localhost:6333", cfg.VectorStore.Qdrant.URL)
		assert.Equal(t, 2, cfg.Retrieval.TopK)
		assert.Equal(t, "fixed", cfg.Chunker.Type)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Overlap default follows a small chunk size", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("chunker:\n  max_chunk_size: 10\n"), 0o644))
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.Chunker.Overlap)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("chunker: [oops"), 0o644))
		_, err := Load(path)
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.VectorStore.IndexPath = "index.db"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadDefault(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	cfg, path, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "rag", "config.yaml"), path)
	assert.Equal(t, Default(), cfg)
	assert.FileExists(t, path)

	require.NoError(t, os.WriteFile("config.yaml", []byte("retrieval:\n  top_k: 7\n"), 0o644))
	cfg, path, err = LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, "config.yaml", path)
	assert.Equal(t, 7, cfg.Retrieval.TopK)
}

func TestValidate(t *testing.T) {
	tests := map[string]func(*AppConfig){
		"equal overlap and size":   func(c *AppConfig) { c.Chunker.MaxChunkSize, c.Chunker.Overlap = 10, 10 },
		"negative overlap":         func(c *AppConfig) { c.Chunker.Overlap = -1 },
		"unknown chunker":          func(c *AppConfig) { c.Chunker.Type = "paragraph" },
		"unknown embedder":         func(c *AppConfig) { c.Embedder.Type = "bedrock" },
		"unknown generator":        func(c *AppConfig) { c.Generator.Type = "bedrock" },
		"unknown store":            func(c *AppConfig) { c.VectorStore.Type = "faiss" },
		"unknown similarity":       func(c *AppConfig) { c.VectorStore.Similarity = "l2" },
		"unknown log format":       func(c *AppConfig) { c.Log.Format = "xml" },
		"sentence overlap too big": func(c *AppConfig) { c.Chunker.Type, c.Chunker.OverlapSentences = "sentence", 5 },
		"negative top k":           func(c *AppConfig) { c.Retrieval.TopK = -1 },
		"index path on qdrant":     func(c *AppConfig) { c.VectorStore.Type, c.VectorStore.IndexPath = "qdrant", "x.db" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), domain.ErrInvalidConfiguration)
		})
	}
}
