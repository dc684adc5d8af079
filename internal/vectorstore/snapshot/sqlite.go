package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"groundedrag/internal/domain"
)

type sqliteCodec struct{}

func (sqliteCodec) Name() string { return "sqlite" }

var schema = []string{
	`CREATE TABLE meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE entries (
		seq INTEGER PRIMARY KEY,
		id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		chunk_id TEXT NOT NULL,
		source TEXT NOT NULL,
		text TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		chunk_offset INTEGER NOT NULL,
		embedding TEXT NOT NULL
	)`,
}

func (sqliteCodec) Write(ctx context.Context, path string, s *Snapshot) error {
	return writeAtomic(path, func(tmp string) error {
		conn, err := sql.Open("sqlite3", tmp)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer conn.Close()

		for _, query := range schema {
			if _, err := conn.ExecContext(ctx, query); err != nil {
				return fmt.Errorf("failed to execute query: %s, error: %w", query, err)
			}
		}

		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		meta := map[string]string{
			"version":    strconv.Itoa(s.Meta.Version),
			"embedder":   s.Meta.Embedder,
			"dimension":  strconv.Itoa(s.Meta.Dimension),
			"created_at": s.Meta.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		for k, v := range meta {
			if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
				return fmt.Errorf("failed to insert meta %s: %w", k, err)
			}
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO entries
			(seq, id, document_id, chunk_id, source, text, chunk_index, chunk_offset, embedding)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for i, e := range s.Entries {
			embeddingJSON, err := json.Marshal(e.Vector)
			if err != nil {
				return fmt.Errorf("failed to marshal embedding: %w", err)
			}
			c := e.Chunk
			if _, err := stmt.ExecContext(ctx, i, e.ID, c.DocumentID, c.ChunkID, c.Source, c.Text, c.Index, c.Offset, string(embeddingJSON)); err != nil {
				return fmt.Errorf("failed to insert entry %d: %w", i, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

func (sqliteCodec) Read(ctx context.Context, path string) (*Snapshot, error) {
	conn, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer conn.Close()

	s := &Snapshot{}
	rows, err := conn.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("failed to query meta: %w", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := s.Meta.set(k, v); err != nil {
			rows.Close()
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	rows.Close()

	rows, err = conn.QueryContext(ctx, `SELECT id, document_id, chunk_id, source, text, chunk_index, chunk_offset, embedding
		FROM entries ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e domain.IndexEntry
		var embeddingJSON string
		c := &e.Chunk
		if err := rows.Scan(&e.ID, &c.DocumentID, &c.ChunkID, &c.Source, &c.Text, &c.Index, &c.Offset, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(embeddingJSON), &e.Vector); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding for entry %s: %w", e.ID, err)
		}
		s.Entries = append(s.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return s, nil
}

func (m *Meta) set(key, value string) error {
	var err error
	switch key {
	case "version":
		m.Version, err = strconv.Atoi(value)
	case "embedder":
		m.Embedder = value
	case "dimension":
		m.Dimension, err = strconv.Atoi(value)
	case "created_at":
		m.CreatedAt, err = time.Parse(time.RFC3339Nano, value)
	}
	if err != nil {
		return fmt.Errorf("invalid meta %s: %w", key, err)
	}
	return nil
}
