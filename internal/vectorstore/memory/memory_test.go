package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundedrag/internal/domain"
	"groundedrag/internal/vectorstore"
	"groundedrag/internal/vectorstore/snapshot"
)

func entry(text string, vec ...float64) domain.IndexEntry {
	return domain.IndexEntry{ID: text, Vector: vec, Chunk: domain.Chunk{ChunkID: text, Text: text}}
}

func texts(results []domain.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Chunk.Text
	}
	return out
}

func TestQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("Never built index is empty", func(t *testing.T) {
		_, err := New().Query(ctx, []float64{1, 0}, 1)
		assert.ErrorIs(t, err, domain.ErrEmptyIndex)
	})

	t.Run("Orders by descending score", func(t *testing.T) {
		idx := New()
		require.NoError(t, idx.Add(ctx, []domain.IndexEntry{
			entry("x", 1, 0),
			entry("y", 0, 1),
			entry("xy", 1, 1),
		}))
		results, err := idx.Query(ctx, []float64{1, 0.1}, 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"x", "xy", "y"}, texts(results))
		assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
		assert.GreaterOrEqual(t, results[1].Score, results[2].Score)
	})

	t.Run("Ties keep insertion order", func(t *testing.T) {
		idx := New()
		require.NoError(t, idx.Add(ctx, []domain.IndexEntry{
			entry("first", 1, 0),
			entry("second", 2, 0),
			entry("third", 3, 0),
		}))
		results, err := idx.Query(ctx, []float64{1, 0}, 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "second", "third"}, texts(results))
	})

	t.Run("Top-k bound", func(t *testing.T) {
		idx := New()
		for n := range 5 {
			require.NoError(t, idx.Add(ctx, []domain.IndexEntry{entry(fmt.Sprint(n), float64(n+1), 1)}))
		}
		for k := 1; k <= 8; k++ {
			results, err := idx.Query(ctx, []float64{1, 1}, k)
			require.NoError(t, err)
			assert.Len(t, results, min(k, 5))
		}
	})

	t.Run("Invalid k", func(t *testing.T) {
		idx := New()
		require.NoError(t, idx.Add(ctx, []domain.IndexEntry{entry("a", 1)}))
		_, err := idx.Query(ctx, []float64{1}, 0)
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})

	t.Run("Dimension mismatch", func(t *testing.T) {
		idx := New()
		require.NoError(t, idx.Add(ctx, []domain.IndexEntry{entry("a", 1, 0)}))
		_, err := idx.Query(ctx, []float64{1, 0, 0}, 1)
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})

	t.Run("Dot similarity", func(t *testing.T) {
		idx := New(WithSimilarity(vectorstore.Dot))
		require.NoError(t, idx.Add(ctx, []domain.IndexEntry{entry("short", 1, 0), entry("long", 3, 0)}))
		results, err := idx.Query(ctx, []float64{1, 0}, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"long", "short"}, texts(results))
		assert.Equal(t, 3.0, results[0].Score)
	})

	t.Run("Deterministic across runs", func(t *testing.T) {
		build := func() []domain.SearchResult {
			idx := New()
			require.NoError(t, idx.Add(ctx, []domain.IndexEntry{
				entry("a", 0.3, 0.7), entry("b", 0.7, 0.3), entry("c", 0.5, 0.5),
			}))
			results, err := idx.Query(ctx, []float64{0.6, 0.4}, 3)
			require.NoError(t, err)
			return results
		}
		assert.Equal(t, build(), build())
	})
}

func TestAdd(t *testing.T) {
	ctx := context.Background()

	t.Run("Mismatched batch is rejected whole", func(t *testing.T) {
		idx := New()
		err := idx.Add(ctx, []domain.IndexEntry{entry("a", 1, 0), entry("b", 1)})
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
		n, _ := idx.Len(ctx)
		assert.Zero(t, n)
		assert.Zero(t, idx.Dimension())
	})

	t.Run("Reset clears entries and dimension", func(t *testing.T) {
		idx := New()
		require.NoError(t, idx.Add(ctx, []domain.IndexEntry{entry("a", 1, 0)}))
		require.NoError(t, idx.Reset(ctx))
		n, _ := idx.Len(ctx)
		assert.Zero(t, n)
		require.NoError(t, idx.Add(ctx, []domain.IndexEntry{entry("b", 1, 0, 0)}))
		assert.Equal(t, 3, idx.Dimension())
	})
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()

	for _, name := range []string{"index.gob", "index.sqlite"} {
		t.Run(name, func(t *testing.T) {
			idx := New()
			require.NoError(t, idx.Add(ctx, []domain.IndexEntry{
				entry("The sky is blue.", 0.9, 0.1, 0.0),
				entry("The grass is green.", 0.1, 0.9, 0.0),
				entry("Water is wet.", 0.1, 0.1, 0.8),
			}))
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, idx.Save(ctx, path, "test-embedder"))

			loaded, meta, err := Load(ctx, path)
			require.NoError(t, err)
			assert.Equal(t, "test-embedder", meta.Embedder)
			assert.Equal(t, 3, loaded.Dimension())

			query := []float64{0.5, 0.4, 0.2}
			want, err := idx.Query(ctx, query, 3)
			require.NoError(t, err)
			got, err := loaded.Query(ctx, query, 3)
			require.NoError(t, err)
			require.Equal(t, texts(want), texts(got))
			for i := range want {
				assert.InDelta(t, want[i].Score, got[i].Score, 1e-6)
			}
		})
	}

	t.Run("Missing snapshot", func(t *testing.T) {
		_, _, err := Load(ctx, filepath.Join(t.TempDir(), "nope.gob"))
		assert.ErrorIs(t, err, domain.ErrIndexNotFound)
	})

	t.Run("Restore replaces contents", func(t *testing.T) {
		idx := New()
		require.NoError(t, idx.Add(ctx, []domain.IndexEntry{entry("a", 1, 0), entry("b", 0, 1)}))
		idx.Restore(&snapshot.Snapshot{
			Meta:    snapshot.Meta{Dimension: 3},
			Entries: []domain.IndexEntry{entry("c", 0, 0, 1)},
		})
		assert.Equal(t, 3, idx.Dimension())
		got, err := idx.Query(ctx, []float64{0, 0, 1}, 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"c"}, texts(got))
	})
}

func TestConcurrentQueries(t *testing.T) {
	ctx := context.Background()
	idx := New()
	require.NoError(t, idx.Add(ctx, []domain.IndexEntry{entry("a", 1, 0), entry("b", 0, 1)}))

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := idx.Query(ctx, []float64{1, 0}, 1)
			assert.NoError(t, err)
			assert.Equal(t, "a", results[0].Chunk.Text)
		}()
	}
	wg.Wait()
}
