package domain

import "context"

// Document represents a single text file loaded into the system.
type Document struct {
	ID      string
	Source  string
	Content string
}

// Chunk is a contiguous part of a document used for indexing.
// Offset is the rune offset inside the source document, or -1 when unknown.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Source     string
	Text       string
	Index      int
	Offset     int
}

// IndexEntry pairs an embedding vector with the chunk it was computed from.
type IndexEntry struct {
	ID     string
	Vector []float64
	Chunk  Chunk
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Usage reports token accounting returned by a generation provider.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Generation is the provider-neutral result of a single completion call.
type Generation struct {
	Text       string
	Model      string
	StopReason string
	Usage      Usage
}

// Answer is a grounded answer together with the material used to produce it.
type Answer struct {
	Query   string
	Text    string
	Prompt  string
	Sources []SearchResult
	Usage   Usage
}

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(ctx context.Context, corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Generator turns a fully formed prompt into generated text.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (*Generation, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// VectorIndex stores index entries and answers nearest-neighbour queries.
// Query must fail with ErrEmptyIndex when no entries are stored.
type VectorIndex interface {
	Add(ctx context.Context, entries []IndexEntry) error
	Query(ctx context.Context, vector []float64, topK int) ([]SearchResult, error)
	Len(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// RAGService defines the operations exposed by the application core.
type RAGService interface {
	IngestDocuments(ctx context.Context, paths []string) (summary string, err error)
	Retrieve(ctx context.Context, query string, topK int) ([]SearchResult, error)
	Ask(ctx context.Context, query string) (*Answer, error)
	Answer(ctx context.Context, query string) (string, error)
}
