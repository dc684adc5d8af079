// Package retriever finds the indexed chunks most relevant to a query.
package retriever

import (
	"context"
	"fmt"

	"groundedrag/internal/domain"
	"groundedrag/internal/embedding"
)

// DefaultK is the number of chunks returned when the caller does not choose.
const DefaultK = 4

type Retriever struct {
	index domain.VectorIndex
	embed embedding.Func
}

func New(index domain.VectorIndex, embed embedding.Func) *Retriever {
	return &Retriever{index: index, embed: embed}
}

// Retrieve embeds query and returns the k nearest chunks. A k of zero means
// DefaultK. Embedding errors are reported as ErrEmbeddingFailure; index
// errors such as ErrEmptyIndex are returned unchanged.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	if k == 0 {
		k = DefaultK
	}
	if k < 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidConfiguration, k)
	}
	vec, err := r.embed(ctx, query)
	if err != nil {
		return nil, domain.EmbeddingError(err)
	}
	return r.index.Query(ctx, vec, k)
}
