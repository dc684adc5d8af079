package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"groundedrag/internal/domain"
	"groundedrag/internal/vectorstore"
	"groundedrag/internal/vectorstore/snapshot"
)

// Index is an in-memory vector index answering queries with a full scan.
type Index struct {
	mu         sync.RWMutex
	similarity vectorstore.SimilarityFunc
	dimension  int
	entries    []domain.IndexEntry
}

// Option configures an Index.
type Option func(*Index)

// WithSimilarity replaces the default cosine similarity.
func WithSimilarity(fn vectorstore.SimilarityFunc) Option {
	return func(i *Index) {
		if fn != nil {
			i.similarity = fn
		}
	}
}

func New(opts ...Option) *Index {
	i := &Index{similarity: vectorstore.Cosine}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Add appends entries in order. The whole batch is rejected if any vector's
// dimensionality differs from the index.
func (i *Index) Add(_ context.Context, entries []domain.IndexEntry) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	dim := i.dimension
	for n, e := range entries {
		if len(e.Vector) == 0 {
			return fmt.Errorf("%w: entry %d has an empty vector", domain.ErrInvalidConfiguration, n)
		}
		if dim == 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) != dim {
			return fmt.Errorf("%w: entry %d has %d dimensions, index has %d", domain.ErrDimensionMismatch, n, len(e.Vector), dim)
		}
	}
	i.dimension = dim
	i.entries = append(i.entries, entries...)
	return nil
}

// Query returns the min(k, Len) entries most similar to vector, highest score
// first; equal scores keep insertion order.
func (i *Index) Query(_ context.Context, vector []float64, k int) ([]domain.SearchResult, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", domain.ErrInvalidConfiguration, k)
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if len(i.entries) == 0 {
		return nil, domain.ErrEmptyIndex
	}
	if len(vector) != i.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", domain.ErrDimensionMismatch, len(vector), i.dimension)
	}

	results := make([]domain.SearchResult, len(i.entries))
	for n, e := range i.entries {
		results[n] = domain.SearchResult{Chunk: e.Chunk, Score: i.similarity(vector, e.Vector)}
	}
	slices.SortStableFunc(results, func(a, b domain.SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	return results[:min(k, len(results))], nil
}

func (i *Index) Len(context.Context) (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries), nil
}

func (i *Index) Reset(context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.dimension = 0
	i.entries = nil
	return nil
}

// Dimension is zero until the first entry is added.
func (i *Index) Dimension() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.dimension
}

// Entries returns a copy of the stored entries in insertion order.
func (i *Index) Entries() []domain.IndexEntry {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return slices.Clone(i.entries)
}

// Save writes the index to path, recording the embedder that produced it.
func (i *Index) Save(ctx context.Context, path, embedder string) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return snapshot.Save(ctx, path, &snapshot.Snapshot{
		Meta:    snapshot.Meta{Embedder: embedder, Dimension: i.dimension},
		Entries: i.entries,
	})
}

// Load reads a snapshot written by Save into a new Index.
func Load(ctx context.Context, path string, opts ...Option) (*Index, snapshot.Meta, error) {
	s, err := snapshot.Load(ctx, path)
	if err != nil {
		return nil, snapshot.Meta{}, err
	}
	i := New(opts...)
	i.Restore(s)
	return i, s.Meta, nil
}

// Restore replaces the contents of i with a loaded snapshot.
func (i *Index) Restore(s *snapshot.Snapshot) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.dimension = s.Meta.Dimension
	i.entries = s.Entries
}
