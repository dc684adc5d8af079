package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundedrag/internal/domain"
)

type recordingIndex struct {
	added  [][]domain.IndexEntry
	resets int
}

func (r *recordingIndex) Add(_ context.Context, entries []domain.IndexEntry) error {
	r.added = append(r.added, entries)
	return nil
}

func (r *recordingIndex) Query(context.Context, []float64, int) ([]domain.SearchResult, error) {
	return nil, nil
}

func (r *recordingIndex) Len(context.Context) (int, error) { return 0, nil }

func (r *recordingIndex) Reset(context.Context) error {
	r.resets++
	r.added = nil
	return nil
}

func chunks(texts ...string) []domain.Chunk {
	out := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		out[i] = domain.Chunk{ChunkID: text, Text: text, Index: i}
	}
	return out
}

func TestSimilarity(t *testing.T) {
	t.Run("Cosine", func(t *testing.T) {
		assert.InDelta(t, 1.0, Cosine([]float64{1, 1}, []float64{2, 2}), 1e-12)
		assert.InDelta(t, 0.0, Cosine([]float64{1, 0}, []float64{0, 1}), 1e-12)
		assert.InDelta(t, -1.0, Cosine([]float64{1, 0}, []float64{-3, 0}), 1e-12)
		assert.Zero(t, Cosine([]float64{0, 0}, []float64{1, 0}))
	})

	t.Run("Dot", func(t *testing.T) {
		assert.Equal(t, 11.0, Dot([]float64{1, 2}, []float64{3, 4}))
	})

	t.Run("By name", func(t *testing.T) {
		_, err := SimilarityByName("cosine")
		assert.NoError(t, err)
		_, err = SimilarityByName("")
		assert.NoError(t, err)
		_, err = SimilarityByName("dot")
		assert.NoError(t, err)
		_, err = SimilarityByName("manhattan")
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})
}

func TestEntryID(t *testing.T) {
	a := EntryID(domain.Chunk{ChunkID: "doc:1"})
	b := EntryID(domain.Chunk{ChunkID: "doc:1"})
	c := EntryID(domain.Chunk{ChunkID: "doc:2"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 36)
}

func TestBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("Replaces the contents in one batch", func(t *testing.T) {
		idx := &recordingIndex{added: [][]domain.IndexEntry{{{ID: "old"}}}}
		embed := func(_ context.Context, text string) ([]float64, error) {
			return []float64{float64(len(text)), 1}, nil
		}

		err := Build(ctx, idx, chunks("a", "bb", "ccc"), embed)
		require.NoError(t, err)
		assert.Equal(t, 1, idx.resets)
		require.Len(t, idx.added, 1)
		require.Len(t, idx.added[0], 3)
		assert.Equal(t, []float64{2, 1}, idx.added[0][1].Vector)
		assert.Equal(t, "bb", idx.added[0][1].Chunk.Text)
		assert.NotEmpty(t, idx.added[0][1].ID)
	})

	t.Run("Embedding failure discards partial work", func(t *testing.T) {
		idx := &recordingIndex{}
		boom := errors.New("timeout")
		embed := func(_ context.Context, text string) ([]float64, error) {
			if text == "ccc" {
				return nil, boom
			}
			return []float64{1}, nil
		}

		err := Build(ctx, idx, chunks("a", "bb", "ccc"), embed)
		assert.ErrorIs(t, err, domain.ErrEmbeddingFailure)
		assert.ErrorIs(t, err, boom)
		assert.Empty(t, idx.added)
		assert.Zero(t, idx.resets)
	})

	t.Run("Varying dimensionality is rejected", func(t *testing.T) {
		idx := &recordingIndex{}
		embed := func(_ context.Context, text string) ([]float64, error) {
			return make([]float64, len(text)), nil
		}

		err := Build(ctx, idx, chunks("a", "bb"), embed)
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
		assert.Empty(t, idx.added)
	})

	t.Run("No chunks empties the index", func(t *testing.T) {
		idx := &recordingIndex{}
		require.NoError(t, Build(ctx, idx, nil, nil))
		assert.Equal(t, 1, idx.resets)
		assert.Empty(t, idx.added)
	})
}

func TestAssignIDs(t *testing.T) {
	t.Run("Unnamed chunks get positional ids", func(t *testing.T) {
		got, err := AssignIDs([]domain.Chunk{
			{Text: "The sky is blue."},
			{Text: "The grass is green."},
			{Text: "Water is wet."},
		})
		require.NoError(t, err)
		assert.Equal(t, "chunk:0", got[0].ChunkID)
		assert.Equal(t, "chunk:2", got[2].ChunkID)
		assert.Equal(t, 1, got[1].Index)

		ids := map[string]struct{}{}
		for _, ch := range got {
			ids[EntryID(ch)] = struct{}{}
		}
		assert.Len(t, ids, 3)
	})

	t.Run("Named chunks are kept", func(t *testing.T) {
		in := chunks("a", "b")
		got, err := AssignIDs(in)
		require.NoError(t, err)
		assert.Equal(t, in, got)
	})

	t.Run("Document id prefixes", func(t *testing.T) {
		got, err := AssignIDs([]domain.Chunk{{DocumentID: "doc", Text: "x"}})
		require.NoError(t, err)
		assert.Equal(t, "doc:0", got[0].ChunkID)
	})

	t.Run("Duplicate ids", func(t *testing.T) {
		_, err := AssignIDs([]domain.Chunk{{ChunkID: "a"}, {ChunkID: "a"}})
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})
}
