package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"groundedrag/internal/domain"
)

// RecursiveChunker splits on paragraph, line and word boundaries before
// falling back to characters, keeping every chunk within maxChunkSize runes.
type RecursiveChunker struct {
	splitter textsplitter.RecursiveCharacter
}

func NewRecursiveChunker(maxChunkSize, overlap int) (*RecursiveChunker, error) {
	if err := validateWindow(maxChunkSize, overlap); err != nil {
		return nil, err
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(maxChunkSize),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithLenFunc(utf8.RuneCountInString),
	)
	return &RecursiveChunker{splitter: splitter}, nil
}

func (c *RecursiveChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	if strings.TrimSpace(document.Content) == "" {
		return nil, nil
	}
	pieces, err := c.splitter.SplitText(document.Content)
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", document.Source, err)
	}
	chunks := make([]domain.Chunk, 0, len(pieces))
	searchFrom := 0
	for idx, piece := range pieces {
		offset := -1
		if pos := strings.Index(document.Content[searchFrom:], piece); pos >= 0 {
			offset = utf8.RuneCountInString(document.Content[:searchFrom+pos])
			searchFrom += pos + 1
		}
		chunks = append(chunks, newChunk(document, idx, piece, offset))
	}
	return chunks, nil
}
