// Package service composes the pipeline stages into the application core:
// ingest documents into an index, then answer questions grounded on it.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"groundedrag/internal/domain"
	"groundedrag/internal/embedding"
	"groundedrag/internal/loader"
	"groundedrag/internal/prompt"
	"groundedrag/internal/retriever"
	"groundedrag/internal/summarizer"
	"groundedrag/internal/vectorstore"
	"groundedrag/internal/vectorstore/memory"
	"groundedrag/internal/vectorstore/snapshot"
)

const DefaultSummarySentences = 5

// Deps are the collaborators of a RAGServiceImpl. Chunker, Embedder, Index
// and Generator are required.
type Deps struct {
	Chunker    domain.Chunker
	Embedder   domain.Embedder
	Index      domain.VectorIndex
	Generator  domain.Generator
	Assembler  *prompt.Assembler
	Summarizer domain.Summarizer
	Logger     *slog.Logger
}

type Options struct {
	TopK             int
	SummarySentences int
}

// OpenOptions controls how Open brings the index up at startup.
type OpenOptions struct {
	Paths     []string
	IndexPath string
	// Rebuild allows building from Paths when IndexPath does not exist yet.
	Rebuild bool
}

type RAGServiceImpl struct {
	chunker          domain.Chunker
	embedder         domain.Embedder
	index            domain.VectorIndex
	generator        domain.Generator
	assembler        *prompt.Assembler
	summarizer       domain.Summarizer
	retriever        *retriever.Retriever
	log              *slog.Logger
	topK             int
	summarySentences int

	// mu guards indexed and corpus and serialises builds against queries.
	mu      sync.RWMutex
	indexed bool
	// corpus holds the chunk texts the embedder was last prepared on for the
	// current index.
	corpus []string
}

var _ domain.RAGService = (*RAGServiceImpl)(nil)

func NewRAGService(deps Deps, opts Options) (*RAGServiceImpl, error) {
	var missing []string
	if deps.Chunker == nil {
		missing = append(missing, "chunker")
	}
	if deps.Embedder == nil {
		missing = append(missing, "embedder")
	}
	if deps.Index == nil {
		missing = append(missing, "index")
	}
	if deps.Generator == nil {
		missing = append(missing, "generator")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", domain.ErrInvalidConfiguration, strings.Join(missing, ", "))
	}
	if opts.TopK < 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrInvalidConfiguration, opts.TopK)
	}

	s := &RAGServiceImpl{
		chunker:          deps.Chunker,
		embedder:         deps.Embedder,
		index:            deps.Index,
		generator:        deps.Generator,
		assembler:        deps.Assembler,
		summarizer:       deps.Summarizer,
		log:              deps.Logger,
		topK:             opts.TopK,
		summarySentences: opts.SummarySentences,
	}
	if s.assembler == nil {
		s.assembler = prompt.New()
	}
	if s.summarizer == nil {
		s.summarizer = summarizer.NewFrequencySummarizer()
	}
	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}
	if s.topK == 0 {
		s.topK = retriever.DefaultK
	}
	if s.summarySentences <= 0 {
		s.summarySentences = DefaultSummarySentences
	}
	s.log = s.log.With(slog.String("component", "service"))
	s.retriever = retriever.New(s.index, embedding.FuncOf(s.embedder))
	return s, nil
}

// Indexed reports whether an index has been built or loaded.
func (s *RAGServiceImpl) Indexed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexed
}

// IngestDocuments loads the documents at paths, replaces the index with
// their chunks and returns a short summary of the corpus.
func (s *RAGServiceImpl) IngestDocuments(ctx context.Context, paths []string) (string, error) {
	docs, err := loader.Load(ctx, paths)
	if err != nil {
		return "", domain.NewStageError(domain.StageLoad, err)
	}

	var chunks []domain.Chunk
	var corpus strings.Builder
	for _, d := range docs {
		cs, err := s.chunker.Chunk(d)
		if err != nil {
			return "", domain.NewStageError(domain.StageChunk, fmt.Errorf("%s: %w", d.Source, err))
		}
		chunks = append(chunks, cs...)
		corpus.WriteString(d.Content)
		corpus.WriteString("\n")
	}
	s.log.Debug("chunked documents", slog.Int("documents", len(docs)), slog.Int("chunks", len(chunks)))

	if err := s.IndexChunks(ctx, chunks); err != nil {
		return "", err
	}
	return s.summarize(corpus.String()), nil
}

// IndexChunks replaces the index with chunks. The previous index is kept if
// preparing or embedding fails.
func (s *RAGServiceImpl) IndexChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return domain.NewStageError(domain.StageBuild, fmt.Errorf("%w: no chunks to index", domain.ErrInvalidConfiguration))
	}
	chunks, err := vectorstore.AssignIDs(chunks)
	if err != nil {
		return domain.NewStageError(domain.StageBuild, err)
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	if err := s.embedder.Prepare(ctx, texts); err != nil {
		s.restoreEmbedder(ctx)
		return domain.NewStageError(domain.StageEmbed, domain.EmbeddingError(err))
	}
	err = vectorstore.Build(ctx, s.index, chunks, embedding.FuncOf(s.embedder))
	switch {
	case errors.Is(err, domain.ErrEmbeddingFailure), errors.Is(err, domain.ErrDimensionMismatch):
		s.restoreEmbedder(ctx)
		return domain.NewStageError(domain.StageEmbed, err)
	case err != nil:
		// The index may have been reset before the failure.
		s.indexed = false
		s.corpus = nil
		return domain.NewStageError(domain.StageBuild, err)
	}
	s.indexed = true
	s.corpus = texts
	s.log.Info("index built",
		slog.Int("chunks", len(chunks)),
		slog.String("embedder", s.embedder.Name()),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

// SaveIndex writes the in-memory index to path.
func (s *RAGServiceImpl) SaveIndex(ctx context.Context, path string) error {
	mem, err := s.memoryIndex()
	if err != nil {
		return domain.NewStageError(domain.StageSave, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.indexed {
		return domain.NewStageError(domain.StageSave, domain.ErrEmptyIndex)
	}
	if err := mem.Save(ctx, path, s.embedder.Name()); err != nil {
		return domain.NewStageError(domain.StageSave, err)
	}
	s.log.Info("index saved", slog.String("path", path))
	return nil
}

// LoadIndex replaces the in-memory index with the snapshot at path. The
// snapshot must have been written with the same embedder, which is prepared
// again from the stored chunk texts.
func (s *RAGServiceImpl) LoadIndex(ctx context.Context, path string) (string, error) {
	mem, err := s.memoryIndex()
	if err != nil {
		return "", domain.NewStageError(domain.StageLoad, err)
	}
	snap, err := snapshot.Load(ctx, path)
	if err != nil {
		return "", domain.NewStageError(domain.StageLoad, err)
	}
	if snap.Meta.Embedder != s.embedder.Name() {
		return "", domain.NewStageError(domain.StageLoad, fmt.Errorf(
			"%w: index %s was built with embedder %q, configured embedder is %q",
			domain.ErrInvalidConfiguration, path, snap.Meta.Embedder, s.embedder.Name()))
	}

	texts := make([]string, len(snap.Entries))
	for i, e := range snap.Entries {
		texts[i] = e.Chunk.Text
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.embedder.Prepare(ctx, texts); err != nil {
		s.restoreEmbedder(ctx)
		return "", domain.NewStageError(domain.StageEmbed, domain.EmbeddingError(err))
	}
	if dim := s.embedder.Dimension(); dim > 0 && dim != snap.Meta.Dimension {
		s.restoreEmbedder(ctx)
		return "", domain.NewStageError(domain.StageLoad, fmt.Errorf(
			"%w: index %s has %d dimensions, embedder produces %d",
			domain.ErrDimensionMismatch, path, snap.Meta.Dimension, dim))
	}
	mem.Restore(snap)
	s.indexed = true
	s.corpus = texts
	s.log.Info("index loaded",
		slog.String("path", path),
		slog.Int("chunks", len(snap.Entries)),
		slog.Time("created_at", snap.Meta.CreatedAt),
	)
	return s.summarize(strings.Join(texts, "\n")), nil
}

// Open brings the index up. With an IndexPath the snapshot is loaded; a
// missing snapshot is an ErrIndexNotFound unless opts.Rebuild is set, in
// which case the index is built from opts.Paths and saved. Without an
// IndexPath the index is built from opts.Paths, or adopted as is when the
// configured store already holds entries.
func (s *RAGServiceImpl) Open(ctx context.Context, opts OpenOptions) (string, error) {
	if opts.IndexPath == "" {
		if len(opts.Paths) > 0 {
			return s.IngestDocuments(ctx, opts.Paths)
		}
		n, err := s.index.Len(ctx)
		if err != nil {
			return "", domain.NewStageError(domain.StageLoad, err)
		}
		s.mu.Lock()
		s.indexed = n > 0
		s.mu.Unlock()
		return "", nil
	}

	summary, err := s.LoadIndex(ctx, opts.IndexPath)
	if err == nil || !errors.Is(err, domain.ErrIndexNotFound) {
		return summary, err
	}
	if !opts.Rebuild {
		return "", err
	}

	s.log.Info("index not found, building", slog.String("path", opts.IndexPath))
	summary, err = s.IngestDocuments(ctx, opts.Paths)
	if err != nil {
		return "", err
	}
	if err := s.SaveIndex(ctx, opts.IndexPath); err != nil {
		return "", err
	}
	return summary, nil
}

// Retrieve returns the k chunks most similar to query. A k of zero uses the
// configured top-k.
func (s *RAGServiceImpl) Retrieve(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.NewStageError(domain.StageRetrieve, fmt.Errorf("%w: empty query", domain.ErrInvalidConfiguration))
	}
	if k == 0 {
		k = s.topK
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.indexed {
		return nil, domain.NewStageError(domain.StageRetrieve, domain.ErrEmptyIndex)
	}
	results, err := s.retriever.Retrieve(ctx, query, k)
	if err != nil {
		return nil, domain.NewStageError(domain.StageRetrieve, err)
	}
	return results, nil
}

// Ask retrieves context for query, assembles the grounded prompt and
// generates an answer. A failed generation leaves the index untouched.
func (s *RAGServiceImpl) Ask(ctx context.Context, query string) (*domain.Answer, error) {
	results, err := s.Retrieve(ctx, query, s.topK)
	if err != nil {
		return nil, err
	}
	p := s.assembler.Assemble(results, query)

	start := time.Now()
	gen, err := s.generator.Generate(ctx, p)
	if err != nil {
		return nil, domain.NewStageError(domain.StageGenerate, domain.GenerationError(err))
	}
	s.log.Info("answer generated",
		slog.String("generator", s.generator.Name()),
		slog.String("model", gen.Model),
		slog.String("stop_reason", gen.StopReason),
		slog.Int("sources", len(results)),
		slog.Group("usage",
			slog.Int("input_tokens", gen.Usage.InputTokens),
			slog.Int("output_tokens", gen.Usage.OutputTokens),
			slog.Int("total_tokens", gen.Usage.TotalTokens),
		),
		slog.Duration("took", time.Since(start)),
	)
	return &domain.Answer{
		Query:   query,
		Text:    gen.Text,
		Prompt:  p,
		Sources: results,
		Usage:   gen.Usage,
	}, nil
}

// Answer is Ask reduced to the generated text.
func (s *RAGServiceImpl) Answer(ctx context.Context, query string) (string, error) {
	a, err := s.Ask(ctx, query)
	if err != nil {
		return "", err
	}
	return a.Text, nil
}

// restoreEmbedder prepares the embedder again for the index that is still in
// place after a failed build or load. Callers hold mu.
func (s *RAGServiceImpl) restoreEmbedder(ctx context.Context) {
	if !s.indexed || len(s.corpus) == 0 {
		return
	}
	if err := s.embedder.Prepare(ctx, s.corpus); err != nil {
		s.log.Error("embedder restore failed", slog.Any("error", err))
	}
}

func (s *RAGServiceImpl) memoryIndex() (*memory.Index, error) {
	mem, ok := s.index.(*memory.Index)
	if !ok {
		return nil, fmt.Errorf("%w: index snapshots need the memory vector store", domain.ErrInvalidConfiguration)
	}
	return mem, nil
}

func (s *RAGServiceImpl) summarize(text string) string {
	summary, err := s.summarizer.Summarize(text, s.summarySentences)
	if err != nil {
		s.log.Warn("summary failed", slog.Any("error", err))
		return ""
	}
	return summary
}
