package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"groundedrag/internal/domain"
)

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ChunkerConfig configures how documents are split into chunks.
// Fixed and recursive chunkers use MaxChunkSize and Overlap (in runes);
// the sentence chunker uses the sentence counts.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	MaxChunkSize      int    `yaml:"max_chunk_size"`
	Overlap           int    `yaml:"overlap"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
}

// OpenAIConfig holds configuration for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// OllamaConfig holds configuration for a local Ollama server.
type OllamaConfig struct {
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// LocalEmbedderConfig configures the in-process ONNX embedder.
type LocalEmbedderConfig struct {
	Model    string `yaml:"model"`
	ModelDir string `yaml:"model_dir"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string               `yaml:"type"`
	OpenAI *OpenAIConfig        `yaml:"openai,omitempty"`
	Ollama *OllamaConfig        `yaml:"ollama,omitempty"`
	Local  *LocalEmbedderConfig `yaml:"local,omitempty"`
}

// GeneratorConfig selects and configures the generation provider.
type GeneratorConfig struct {
	Type         string        `yaml:"type"`
	SystemPrompt string        `yaml:"system_prompt"`
	Temperature  *float64      `yaml:"temperature,omitempty"`
	MaxTokens    int           `yaml:"max_tokens"`
	OpenAI       *OpenAIConfig `yaml:"openai,omitempty"`
	Ollama       *OllamaConfig `yaml:"ollama,omitempty"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type       string          `yaml:"type"`
	Similarity string          `yaml:"similarity"`
	IndexPath  string          `yaml:"index_path"`
	Qdrant     *QdrantConfig   `yaml:"qdrant,omitempty"`
	PGVector   *PGVectorConfig `yaml:"pgvector,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// PGVectorConfig contains connection details for a Postgres vector store.
// The DSN is read from the environment variable named by DSNEnv.
type PGVectorConfig struct {
	DSNEnv string `yaml:"dsn_env"`
	Table  string `yaml:"table"`
}

// RetrievalConfig configures query-time retrieval and prompting.
type RetrievalConfig struct {
	TopK        int    `yaml:"top_k"`
	Instruction string `yaml:"instruction"`
	Separator   string `yaml:"separator"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Log         LogConfig         `yaml:"log"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Generator   GeneratorConfig   `yaml:"generator"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", domain.ErrInvalidConfiguration, path, err)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/rag/config.yaml.
// If neither exists, it writes defaults to ~/.config/rag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "rag", "config.yaml"), nil
}

// Default returns the offline configuration: fixed chunks, TF-IDF
// embeddings, an in-memory index and the echo generator.
func Default() *AppConfig {
	cfg := &AppConfig{
		Log:         LogConfig{Level: "info", Format: "pretty"},
		Chunker:     ChunkerConfig{Type: "fixed", MaxChunkSize: 1000, Overlap: 20, SentencesPerChunk: 5, OverlapSentences: 1},
		Embedder:    EmbedderConfig{Type: "tfidf"},
		Generator:   GeneratorConfig{Type: "echo"},
		VectorStore: VectorStoreConfig{Type: "memory", Similarity: "cosine"},
		Retrieval:   RetrievalConfig{TopK: 4},
		Summarizer:  SummarizerConfig{Type: "frequency", MaxSentences: 5},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "pretty"
	}

	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "fixed"
	}
	if cfg.Chunker.MaxChunkSize == 0 {
		cfg.Chunker.MaxChunkSize = 1000
	}
	if cfg.Chunker.Overlap == 0 {
		// 20 runes for the default size, scaled down for small chunks.
		cfg.Chunker.Overlap = max(1, min(20, cfg.Chunker.MaxChunkSize/5))
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "tfidf"
	}
	switch cfg.Embedder.Type {
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIConfig{}
		}
		openAIDefaults(cfg.Embedder.OpenAI, "text-embedding-3-small", 30)
	case "ollama":
		if cfg.Embedder.Ollama == nil {
			cfg.Embedder.Ollama = &OllamaConfig{}
		}
		ollamaDefaults(cfg.Embedder.Ollama, "nomic-embed-text", 30)
	case "local":
		if cfg.Embedder.Local == nil {
			cfg.Embedder.Local = &LocalEmbedderConfig{}
		}
		if cfg.Embedder.Local.Model == "" {
			cfg.Embedder.Local.Model = "sentence-transformers/all-MiniLM-L6-v2"
		}
		if cfg.Embedder.Local.ModelDir == "" {
			cfg.Embedder.Local.ModelDir = "./models"
		}
	}

	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "echo"
	}
	if cfg.Generator.SystemPrompt == "" {
		cfg.Generator.SystemPrompt = "You are a helpful AI"
	}
	if cfg.Generator.Temperature == nil {
		t := 0.5
		cfg.Generator.Temperature = &t
	}
	if cfg.Generator.MaxTokens == 0 {
		cfg.Generator.MaxTokens = 4096
	}
	switch cfg.Generator.Type {
	case "openai":
		if cfg.Generator.OpenAI == nil {
			cfg.Generator.OpenAI = &OpenAIConfig{}
		}
		openAIDefaults(cfg.Generator.OpenAI, "gpt-4o-mini", 120)
	case "ollama":
		if cfg.Generator.Ollama == nil {
			cfg.Generator.Ollama = &OllamaConfig{}
		}
		ollamaDefaults(cfg.Generator.Ollama, "llama3.2", 300)
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.Similarity == "" {
		cfg.VectorStore.Similarity = "cosine"
	}
	switch cfg.VectorStore.Type {
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "chunks"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	case "pgvector":
		if cfg.VectorStore.PGVector == nil {
			cfg.VectorStore.PGVector = &PGVectorConfig{}
		}
		if cfg.VectorStore.PGVector.DSNEnv == "" {
			cfg.VectorStore.PGVector.DSNEnv = "RAG_DATABASE_URL"
		}
		if cfg.VectorStore.PGVector.Table == "" {
			cfg.VectorStore.PGVector.Table = "rag_chunks"
		}
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 4
	}

	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "frequency"
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 5
	}
}

func openAIDefaults(c *OpenAIConfig, model string, timeoutSecs int) {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = timeoutSecs
	}
}

func ollamaDefaults(c *OllamaConfig, model string, timeoutSecs int) {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:11434"
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = timeoutSecs
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
}

// Validate reports the first invalid setting as ErrInvalidConfiguration.
func (c *AppConfig) Validate() error {
	check := func(field, value string, allowed ...string) error {
		if !slices.Contains(allowed, value) {
			return fmt.Errorf("%w: %s %q must be one of %v", domain.ErrInvalidConfiguration, field, value, allowed)
		}
		return nil
	}
	checks := []error{
		check("log.format", c.Log.Format, "pretty", "text", "json"),
		check("chunker.type", c.Chunker.Type, "fixed", "sentence", "recursive"),
		check("embedder.type", c.Embedder.Type, "tfidf", "openai", "ollama", "local"),
		check("generator.type", c.Generator.Type, "echo", "openai", "ollama"),
		check("vector_store.type", c.VectorStore.Type, "memory", "qdrant", "pgvector"),
		check("vector_store.similarity", c.VectorStore.Similarity, "cosine", "dot"),
		check("summarizer.type", c.Summarizer.Type, "frequency"),
	}
	if err := errors.Join(checks...); err != nil {
		return err
	}

	switch c.Chunker.Type {
	case "fixed", "recursive":
		if c.Chunker.MaxChunkSize <= 0 || c.Chunker.Overlap <= 0 || c.Chunker.Overlap >= c.Chunker.MaxChunkSize {
			return fmt.Errorf("%w: chunker needs 0 < overlap (%d) < max_chunk_size (%d)",
				domain.ErrInvalidConfiguration, c.Chunker.Overlap, c.Chunker.MaxChunkSize)
		}
	case "sentence":
		if c.Chunker.SentencesPerChunk <= 0 || c.Chunker.OverlapSentences < 0 || c.Chunker.OverlapSentences >= c.Chunker.SentencesPerChunk {
			return fmt.Errorf("%w: chunker needs 0 <= overlap_sentences (%d) < sentences_per_chunk (%d)",
				domain.ErrInvalidConfiguration, c.Chunker.OverlapSentences, c.Chunker.SentencesPerChunk)
		}
	}
	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("%w: retrieval.top_k must be at least 1, got %d", domain.ErrInvalidConfiguration, c.Retrieval.TopK)
	}
	if c.VectorStore.IndexPath != "" && c.VectorStore.Type != "memory" {
		return fmt.Errorf("%w: vector_store.index_path only applies to the memory store", domain.ErrInvalidConfiguration)
	}
	return nil
}
