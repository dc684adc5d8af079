package chunker

import (
	"fmt"
	"iter"
	"slices"

	"groundedrag/internal/domain"
)

// FixedChunker splits text into windows of at most maxChunkSize runes where
// consecutive windows share exactly overlap runes.
type FixedChunker struct {
	maxChunkSize int
	overlap      int
}

// NewFixedChunker validates the window parameters before any document is read.
func NewFixedChunker(maxChunkSize, overlap int) (*FixedChunker, error) {
	if err := validateWindow(maxChunkSize, overlap); err != nil {
		return nil, err
	}
	return &FixedChunker{maxChunkSize: maxChunkSize, overlap: overlap}, nil
}

func validateWindow(maxChunkSize, overlap int) error {
	if maxChunkSize <= 0 {
		return fmt.Errorf("%w: max chunk size must be positive, got %d", domain.ErrInvalidConfiguration, maxChunkSize)
	}
	if overlap <= 0 {
		return fmt.Errorf("%w: overlap must be positive, got %d", domain.ErrInvalidConfiguration, overlap)
	}
	if overlap >= maxChunkSize {
		return fmt.Errorf("%w: overlap %d must be smaller than max chunk size %d", domain.ErrInvalidConfiguration, overlap, maxChunkSize)
	}
	return nil
}

// Chunks returns a lazy sequence over the windows of document. The sequence
// can be ranged over any number of times.
func (c *FixedChunker) Chunks(document domain.Document) iter.Seq[domain.Chunk] {
	return func(yield func(domain.Chunk) bool) {
		runes := []rune(document.Content)
		n := len(runes)
		step := c.maxChunkSize - c.overlap
		for idx, start := 0, 0; start < n; idx, start = idx+1, start+step {
			end := min(start+c.maxChunkSize, n)
			chunk := newChunk(document, idx, string(runes[start:end]), start)
			if !yield(chunk) || end == n {
				return
			}
		}
	}
}

// Chunk collects every window of document.
func (c *FixedChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	return slices.Collect(c.Chunks(document)), nil
}
