// Package pgvector stores index entries in Postgres using the pgvector extension.
package pgvector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"groundedrag/internal/domain"
)

const (
	codeUndefinedTable = "42P01"
	codeDataException  = "22000"
)

// Config selects the table and similarity metric.
type Config struct {
	Table string
	// Similarity is "cosine" (default) or "dot".
	Similarity string
	Logger     *slog.Logger
}

// Index is a VectorIndex backed by a Postgres table. The table is created on
// the first Add with the dimension of that batch.
type Index struct {
	db     *sql.DB
	table  string
	dot    bool
	logger *slog.Logger

	mu        sync.Mutex
	dimension int
}

// Open connects to dsn with lib/pq and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func New(db *sql.DB, cfg Config) (*Index, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database connection is nil", domain.ErrInvalidConfiguration)
	}
	if cfg.Table == "" {
		cfg.Table = "rag_chunks"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	var dot bool
	switch cfg.Similarity {
	case "", "cosine":
	case "dot":
		dot = true
	default:
		return nil, fmt.Errorf("%w: unknown similarity %q", domain.ErrInvalidConfiguration, cfg.Similarity)
	}
	return &Index{db: db, table: pq.QuoteIdentifier(cfg.Table), dot: dot, logger: cfg.Logger}, nil
}

// ensureTable creates the extension and table if missing and loads the
// stored vector dimension.
func (s *Index) ensureTable(ctx context.Context, dimension int) error {
	if _, err := s.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create extension: %w", err)
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		seq BIGSERIAL PRIMARY KEY,
		id UUID NOT NULL UNIQUE,
		document_id TEXT NOT NULL,
		chunk_id TEXT NOT NULL,
		source TEXT NOT NULL,
		text TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		chunk_offset INTEGER NOT NULL,
		embedding vector(%d) NOT NULL
	)`, s.table, dimension))
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT atttypmod FROM pg_attribute WHERE attrelid = $1::regclass AND attname = 'embedding'`, s.table)
	if err := row.Scan(&s.dimension); err != nil {
		return fmt.Errorf("read dimension: %w", err)
	}
	s.logger.Info("Checked/created table", slog.String("table", s.table), slog.Int("dimension", s.dimension))
	return nil
}

func (s *Index) Add(ctx context.Context, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		if err := s.ensureTable(ctx, len(entries[0].Vector)); err != nil {
			return err
		}
	}
	for n, e := range entries {
		if len(e.Vector) != s.dimension {
			return fmt.Errorf("%w: entry %d has %d dimensions, table has %d", domain.ErrDimensionMismatch, n, len(e.Vector), s.dimension)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s
		(id, document_id, chunk_id, source, text, chunk_index, chunk_offset, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`, s.table))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for n, e := range entries {
		c := e.Chunk
		if _, err := stmt.ExecContext(ctx, e.ID, c.DocumentID, c.ChunkID, c.Source, c.Text, c.Index, c.Offset, toVector(e.Vector)); err != nil {
			return fmt.Errorf("failed to insert entry %d: %w", n, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Query orders rows by distance with seq breaking ties, so equal scores come
// back in insertion order.
func (s *Index) Query(ctx context.Context, vector []float64, k int) ([]domain.SearchResult, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", domain.ErrInvalidConfiguration, k)
	}
	n, err := s.Len(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, domain.ErrEmptyIndex
	}

	score, order := `1 - (embedding <=> $1)`, `embedding <=> $1`
	if s.dot {
		score, order = `(embedding <#> $1) * -1`, `embedding <#> $1`
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT document_id, chunk_id, source, text, chunk_index, chunk_offset, %s
		FROM %s ORDER BY %s, seq LIMIT $2`, score, s.table, order), toVector(vector), k)
	if err != nil {
		return nil, queryError(err)
	}
	defer rows.Close()

	var results []domain.SearchResult
	for rows.Next() {
		var r domain.SearchResult
		c := &r.Chunk
		if err := rows.Scan(&c.DocumentID, &c.ChunkID, &c.Source, &c.Text, &c.Index, &c.Offset, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError(err)
	}
	return results, nil
}

// Len counts the stored rows; a missing table counts as empty.
func (s *Index) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table)).Scan(&n)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == codeUndefinedTable {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// Reset drops the table; the next Add recreates it.
func (s *Index) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.table)); err != nil {
		return fmt.Errorf("drop table: %w", err)
	}
	s.dimension = 0
	return nil
}

// queryError marks pgvector's "different vector dimensions" data exception
// as a dimension mismatch.
func queryError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == codeDataException {
		return fmt.Errorf("%w: %w", domain.ErrDimensionMismatch, err)
	}
	return fmt.Errorf("failed to query chunks: %w", err)
}

func toVector(v []float64) pgvector.Vector {
	f := make([]float32, len(v))
	for i, x := range v {
		f[i] = float32(x)
	}
	return pgvector.NewVector(f)
}
