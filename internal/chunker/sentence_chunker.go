package chunker

import (
	"fmt"
	"strings"

	"groundedrag/internal/domain"
	"groundedrag/internal/textutil"
)

// SentenceChunker splits text into sentence-based chunks with overlap.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
}

// NewSentenceChunker fails when the overlap would keep the window from advancing.
func NewSentenceChunker(sentencesPerChunk, overlapSentences int) (*SentenceChunker, error) {
	if sentencesPerChunk <= 0 {
		return nil, fmt.Errorf("%w: sentences per chunk must be positive, got %d", domain.ErrInvalidConfiguration, sentencesPerChunk)
	}
	if overlapSentences < 0 || overlapSentences >= sentencesPerChunk {
		return nil, fmt.Errorf("%w: sentence overlap must be in [0, %d), got %d", domain.ErrInvalidConfiguration, sentencesPerChunk, overlapSentences)
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
	}, nil
}

func (c *SentenceChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	sentences := textutil.Sentences(document.Content)
	if len(sentences) == 0 {
		return nil, nil
	}
	var chunks []domain.Chunk
	searchFrom := 0
	for i, idx := 0, 0; i < len(sentences); idx++ {
		end := min(i+c.sentencesPerChunk, len(sentences))
		offset := -1
		if pos := strings.Index(document.Content[searchFrom:], sentences[i]); pos >= 0 {
			offset = len([]rune(document.Content[:searchFrom+pos]))
			searchFrom += pos
		}
		chunks = append(chunks, newChunk(document, idx, strings.Join(sentences[i:end], " "), offset))
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return chunks, nil
}
