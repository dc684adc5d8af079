// Package vectorstore builds vector indexes and holds the similarity
// functions shared by the index backends.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"

	"groundedrag/internal/domain"
	"groundedrag/internal/embedding"
)

// Storage is the index contract every backend implements.
type Storage = domain.VectorIndex

// SimilarityFunc scores two vectors of equal length; higher is more similar.
type SimilarityFunc func(a, b []float64) float64

// Cosine returns the cosine similarity of a and b, or 0 if either is a zero vector.
func Cosine(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Dot returns the inner product of a and b. It equals Cosine for unit vectors.
func Dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// SimilarityByName resolves a configured similarity metric.
func SimilarityByName(name string) (SimilarityFunc, error) {
	switch name {
	case "", "cosine":
		return Cosine, nil
	case "dot":
		return Dot, nil
	default:
		return nil, fmt.Errorf("%w: unknown similarity %q", domain.ErrInvalidConfiguration, name)
	}
}

// EntryID derives a stable UUID for a chunk so re-indexing the same chunk
// produces the same point id in remote stores.
func EntryID(chunk domain.Chunk) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunk.ChunkID)).String()
}

// AssignIDs returns a copy of chunks in which every chunk without a ChunkID
// is named after its position, and its Index set to that position when
// unset. Two chunks sharing a ChunkID would share an entry id, which remote
// stores upsert into one point, so duplicates are rejected.
func AssignIDs(chunks []domain.Chunk) ([]domain.Chunk, error) {
	out := make([]domain.Chunk, len(chunks))
	seen := make(map[string]int, len(chunks))
	for i, ch := range chunks {
		if ch.ChunkID == "" {
			prefix := ch.DocumentID
			if prefix == "" {
				prefix = "chunk"
			}
			ch.ChunkID = prefix + ":" + strconv.Itoa(i)
			if ch.Index == 0 {
				ch.Index = i
			}
		}
		if j, ok := seen[ch.ChunkID]; ok {
			return nil, fmt.Errorf("%w: chunks %d and %d share id %q", domain.ErrInvalidConfiguration, j, i, ch.ChunkID)
		}
		seen[ch.ChunkID] = i
		out[i] = ch
	}
	return out, nil
}

// Embed computes an entry for every chunk. It fails with ErrEmbeddingFailure
// on the first provider error and with ErrDimensionMismatch if the provider
// returns vectors of different sizes; nothing is returned on failure.
func Embed(ctx context.Context, chunks []domain.Chunk, embed embedding.Func) ([]domain.IndexEntry, error) {
	entries := make([]domain.IndexEntry, 0, len(chunks))
	dimension := 0
	for i, ch := range chunks {
		vec, err := embed(ctx, ch.Text)
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %d (%s): %w", domain.ErrEmbeddingFailure, i, ch.ChunkID, err)
		}
		if len(vec) == 0 {
			return nil, fmt.Errorf("%w: chunk %d (%s): empty vector", domain.ErrEmbeddingFailure, i, ch.ChunkID)
		}
		if dimension == 0 {
			dimension = len(vec)
		} else if len(vec) != dimension {
			return nil, fmt.Errorf("%w: chunk %d has %d dimensions, expected %d", domain.ErrDimensionMismatch, i, len(vec), dimension)
		}
		entries = append(entries, domain.IndexEntry{ID: EntryID(ch), Vector: vec, Chunk: ch})
	}
	return entries, nil
}

// Build embeds all chunks and replaces the contents of index with them in a
// single batch. The index is only reset once every chunk has been embedded, so
// an embedding failure leaves it untouched.
func Build(ctx context.Context, index domain.VectorIndex, chunks []domain.Chunk, embed embedding.Func) error {
	entries, err := Embed(ctx, chunks, embed)
	if err != nil {
		return err
	}
	if err := index.Reset(ctx); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	return index.Add(ctx, entries)
}
