package pgvector

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"groundedrag/internal/domain"
	"groundedrag/internal/vectorstore"
)

func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	pgContainer, err := postgres.Run(
		ctx,
		"pgvector/pgvector:pg17",
		postgres.WithDatabase("database"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "error starting postgres container")
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := Open(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func entry(text string, vec ...float64) domain.IndexEntry {
	c := domain.Chunk{DocumentID: "doc", ChunkID: text, Source: "test.txt", Text: text}
	return domain.IndexEntry{ID: vectorstore.EntryID(c), Vector: vec, Chunk: c}
}

func TestNew(t *testing.T) {
	t.Run("Nil database", func(t *testing.T) {
		_, err := New(nil, Config{})
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})

	t.Run("Unknown similarity", func(t *testing.T) {
		_, err := New(&sql.DB{}, Config{Similarity: "l2"})
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})
}

func TestIndex(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	idx, err := New(db, Config{Table: "test_chunks"})
	require.NoError(t, err)

	t.Run("Missing table is empty", func(t *testing.T) {
		n, err := idx.Len(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		_, err = idx.Query(ctx, []float64{1, 0, 0}, 1)
		assert.ErrorIs(t, err, domain.ErrEmptyIndex)
	})

	t.Run("Add and query", func(t *testing.T) {
		require.NoError(t, idx.Add(ctx, []domain.IndexEntry{
			entry("The sky is blue.", 0.9, 0.1, 0),
			entry("The grass is green.", 0.1, 0.9, 0),
			entry("Water is wet.", 0, 0.1, 0.9),
		}))
		n, err := idx.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		results, err := idx.Query(ctx, []float64{1, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "The sky is blue.", results[0].Chunk.Text)
		assert.Equal(t, "test.txt", results[0].Chunk.Source)
		assert.Greater(t, results[0].Score, results[1].Score)
	})

	t.Run("Ties keep insertion order", func(t *testing.T) {
		require.NoError(t, idx.Reset(ctx))
		require.NoError(t, idx.Add(ctx, []domain.IndexEntry{
			entry("first", 1, 0, 0),
			entry("second", 2, 0, 0),
		}))
		results, err := idx.Query(ctx, []float64{1, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "first", results[0].Chunk.Text)
		assert.Equal(t, "second", results[1].Chunk.Text)
	})

	t.Run("Dimension mismatch", func(t *testing.T) {
		err := idx.Add(ctx, []domain.IndexEntry{entry("wide", 1, 0, 0, 0)})
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
		_, err = idx.Query(ctx, []float64{1, 0}, 1)
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	})

	t.Run("Reset drops the table", func(t *testing.T) {
		require.NoError(t, idx.Reset(ctx))
		n, err := idx.Len(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
