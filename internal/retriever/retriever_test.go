package retriever

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundedrag/internal/domain"
	"groundedrag/internal/vectorstore/memory"
)

func axisEmbed(_ context.Context, text string) ([]float64, error) {
	switch text {
	case "x":
		return []float64{1, 0}, nil
	case "y":
		return []float64{0, 1}, nil
	}
	return []float64{1, 1}, nil
}

func TestRetrieve(t *testing.T) {
	ctx := context.Background()

	idx := memory.New()
	for i := range 6 {
		text := fmt.Sprintf("chunk %d", i)
		vec := []float64{float64(i), float64(6 - i)}
		require.NoError(t, idx.Add(ctx, []domain.IndexEntry{{ID: text, Vector: vec, Chunk: domain.Chunk{Text: text}}}))
	}

	t.Run("Default k", func(t *testing.T) {
		results, err := New(idx, axisEmbed).Retrieve(ctx, "x", 0)
		require.NoError(t, err)
		require.Len(t, results, DefaultK)
		assert.Equal(t, "chunk 5", results[0].Chunk.Text)
	})

	t.Run("Explicit k", func(t *testing.T) {
		results, err := New(idx, axisEmbed).Retrieve(ctx, "y", 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "chunk 0", results[0].Chunk.Text)
	})

	t.Run("Negative k", func(t *testing.T) {
		_, err := New(idx, axisEmbed).Retrieve(ctx, "y", -1)
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})

	t.Run("Embedding failure", func(t *testing.T) {
		boom := errors.New("provider down")
		failing := func(context.Context, string) ([]float64, error) { return nil, boom }
		_, err := New(idx, failing).Retrieve(ctx, "x", 1)
		assert.ErrorIs(t, err, domain.ErrEmbeddingFailure)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("Empty index propagates", func(t *testing.T) {
		_, err := New(memory.New(), axisEmbed).Retrieve(ctx, "x", 1)
		assert.ErrorIs(t, err, domain.ErrEmptyIndex)
	})
}
