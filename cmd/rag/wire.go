package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"

	"groundedrag/internal/chunker"
	"groundedrag/internal/config"
	"groundedrag/internal/domain"
	"groundedrag/internal/embedding/local"
	embedollama "groundedrag/internal/embedding/ollama"
	embedopenai "groundedrag/internal/embedding/openai"
	"groundedrag/internal/embedding/tfidf"
	"groundedrag/internal/generation/echo"
	genollama "groundedrag/internal/generation/ollama"
	genopenai "groundedrag/internal/generation/openai"
	"groundedrag/internal/httpretry"
	"groundedrag/internal/prompt"
	"groundedrag/internal/service"
	"groundedrag/internal/summarizer"
	"groundedrag/internal/vectorstore"
	"groundedrag/internal/vectorstore/memory"
	"groundedrag/internal/vectorstore/pgvector"
	"groundedrag/internal/vectorstore/qdrant"
)

// pipeline is a wired service plus the resources it holds open.
type pipeline struct {
	service *service.RAGServiceImpl
	closers []func() error
}

func (p *pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		errs = append(errs, p.closers[i]())
	}
	return errors.Join(errs...)
}

func buildPipeline(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*pipeline, error) {
	p := &pipeline{}
	fail := func(err error) (*pipeline, error) {
		p.Close()
		return nil, err
	}

	ch, err := newChunker(cfg.Chunker)
	if err != nil {
		return fail(err)
	}
	emb, closeEmb, err := newEmbedder(cfg.Embedder, logger)
	if err != nil {
		return fail(err)
	}
	if closeEmb != nil {
		p.closers = append(p.closers, closeEmb)
	}
	gen, err := newGenerator(cfg.Generator, logger)
	if err != nil {
		return fail(err)
	}
	idx, closeIdx, err := newIndex(ctx, cfg.VectorStore, logger)
	if err != nil {
		return fail(err)
	}
	if closeIdx != nil {
		p.closers = append(p.closers, closeIdx)
	}
	sum, err := newSummarizer(cfg.Summarizer)
	if err != nil {
		return fail(err)
	}

	svc, err := service.NewRAGService(service.Deps{
		Chunker:    ch,
		Embedder:   emb,
		Index:      idx,
		Generator:  gen,
		Assembler:  prompt.New(prompt.WithInstruction(cfg.Retrieval.Instruction), separator(cfg.Retrieval.Separator)),
		Summarizer: sum,
		Logger:     logger,
	}, service.Options{
		TopK:             cfg.Retrieval.TopK,
		SummarySentences: cfg.Summarizer.MaxSentences,
	})
	if err != nil {
		return fail(err)
	}
	p.service = svc
	logger.Debug("pipeline ready",
		slog.String("chunker", cfg.Chunker.Type),
		slog.String("embedder", emb.Name()),
		slog.String("generator", gen.Name()),
		slog.String("vector_store", cfg.VectorStore.Type),
	)
	return p, nil
}

func separator(s string) prompt.Option {
	if s == "" {
		return func(*prompt.Assembler) {}
	}
	return prompt.WithSeparator(s)
}

func newChunker(cfg config.ChunkerConfig) (domain.Chunker, error) {
	switch cfg.Type {
	case "fixed", "":
		return chunker.NewFixedChunker(cfg.MaxChunkSize, cfg.Overlap)
	case "sentence":
		return chunker.NewSentenceChunker(cfg.SentencesPerChunk, cfg.OverlapSentences)
	case "recursive":
		return chunker.NewRecursiveChunker(cfg.MaxChunkSize, cfg.Overlap)
	default:
		return nil, fmt.Errorf("%w: unknown chunker %q", domain.ErrInvalidConfiguration, cfg.Type)
	}
}

func newEmbedder(cfg config.EmbedderConfig, logger *slog.Logger) (domain.Embedder, func() error, error) {
	switch cfg.Type {
	case "tfidf", "":
		return tfidf.NewEmbedder(), nil, nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, nil, fmt.Errorf("%w: openai embedder config missing", domain.ErrInvalidConfiguration)
		}
		client, err := embedopenai.NewClient(embedopenai.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
			Timeout:   seconds(cfg.OpenAI.TimeoutSecs),
		})
		if err != nil {
			return nil, nil, err
		}
		return client, nil, nil
	case "ollama":
		if cfg.Ollama == nil {
			return nil, nil, fmt.Errorf("%w: ollama embedder config missing", domain.ErrInvalidConfiguration)
		}
		return embedollama.NewClient(embedollama.Config{
			BaseURL: cfg.Ollama.BaseURL,
			Model:   cfg.Ollama.Model,
			Timeout: seconds(cfg.Ollama.TimeoutSecs),
			Retry:   retryPolicy(cfg.Ollama.MaxRetries),
			Logger:  logger,
		}), nil, nil
	case "local":
		if cfg.Local == nil {
			return nil, nil, fmt.Errorf("%w: local embedder config missing", domain.ErrInvalidConfiguration)
		}
		logger.Info("loading local embedding model", slog.String("model", cfg.Local.Model))
		e, err := local.New(local.Config{Model: cfg.Local.Model, ModelDir: cfg.Local.ModelDir})
		if err != nil {
			return nil, nil, err
		}
		return e, e.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown embedder %q", domain.ErrInvalidConfiguration, cfg.Type)
	}
}

func newGenerator(cfg config.GeneratorConfig, logger *slog.Logger) (domain.Generator, error) {
	switch cfg.Type {
	case "echo", "":
		return echo.New(), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("%w: openai generator config missing", domain.ErrInvalidConfiguration)
		}
		var temperature *float32
		if cfg.Temperature != nil {
			t := float32(*cfg.Temperature)
			temperature = &t
		}
		return genopenai.NewClient(genopenai.Config{
			BaseURL:      cfg.OpenAI.BaseURL,
			APIKeyEnv:    cfg.OpenAI.APIKeyEnv,
			Model:        cfg.OpenAI.Model,
			SystemPrompt: cfg.SystemPrompt,
			Temperature:  temperature,
			MaxTokens:    cfg.MaxTokens,
			Timeout:      seconds(cfg.OpenAI.TimeoutSecs),
		})
	case "ollama":
		if cfg.Ollama == nil {
			return nil, fmt.Errorf("%w: ollama generator config missing", domain.ErrInvalidConfiguration)
		}
		return genollama.NewClient(genollama.Config{
			BaseURL:      cfg.Ollama.BaseURL,
			Model:        cfg.Ollama.Model,
			SystemPrompt: cfg.SystemPrompt,
			Temperature:  cfg.Temperature,
			MaxTokens:    cfg.MaxTokens,
			Timeout:      seconds(cfg.Ollama.TimeoutSecs),
			Retry:        retryPolicy(cfg.Ollama.MaxRetries),
			Logger:       logger,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown generator %q", domain.ErrInvalidConfiguration, cfg.Type)
	}
}

func newIndex(ctx context.Context, cfg config.VectorStoreConfig, logger *slog.Logger) (domain.VectorIndex, func() error, error) {
	switch cfg.Type {
	case "memory", "":
		sim, err := vectorstore.SimilarityByName(cfg.Similarity)
		if err != nil {
			return nil, nil, err
		}
		return memory.New(memory.WithSimilarity(sim)), nil, nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, nil, fmt.Errorf("%w: qdrant config missing", domain.ErrInvalidConfiguration)
		}
		distance := "Cosine"
		if cfg.Similarity == "dot" {
			distance = "Dot"
		}
		return qdrant.New(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Distance:   distance,
			Timeout:    seconds(cfg.Qdrant.TimeoutSecs),
		}), nil, nil
	case "pgvector":
		if cfg.PGVector == nil {
			return nil, nil, fmt.Errorf("%w: pgvector config missing", domain.ErrInvalidConfiguration)
		}
		dsn := os.Getenv(cfg.PGVector.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("%w: environment variable %s is not set", domain.ErrInvalidConfiguration, cfg.PGVector.DSNEnv)
		}
		db, err := pgvector.Open(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		idx, err := pgvector.New(db, pgvector.Config{Table: cfg.PGVector.Table, Similarity: cfg.Similarity, Logger: logger})
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return idx, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown vector store %q", domain.ErrInvalidConfiguration, cfg.Type)
	}
}

func newSummarizer(cfg config.SummarizerConfig) (domain.Summarizer, error) {
	switch cfg.Type {
	case "frequency", "":
		return summarizer.NewFrequencySummarizer(), nil
	default:
		return nil, fmt.Errorf("%w: unknown summarizer %q", domain.ErrInvalidConfiguration, cfg.Type)
	}
}

func retryPolicy(maxRetries int) *httpretry.Policy {
	p := httpretry.DefaultPolicy
	p.MaxRetries = maxRetries
	return &p
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func printSources(w io.Writer, results []domain.SearchResult) {
	title := color.New(color.FgCyan, color.Bold)
	faint := color.New(color.Faint)
	for i, r := range results {
		title.Fprintf(w, "[%d] %s #%d", i+1, r.Chunk.Source, r.Chunk.Index)
		faint.Fprintf(w, "  score=%.3f\n", r.Score)
		fmt.Fprintln(w, r.Chunk.Text)
		if i < len(results)-1 {
			fmt.Fprintln(w)
		}
	}
}
