// Package chunker splits documents into chunks for embedding.
package chunker

import (
	"strconv"

	"groundedrag/internal/domain"
)

func newChunk(document domain.Document, idx int, text string, offset int) domain.Chunk {
	return domain.Chunk{
		DocumentID: document.ID,
		ChunkID:    document.ID + ":" + strconv.Itoa(idx),
		Source:     document.Source,
		Text:       text,
		Index:      idx,
		Offset:     offset,
	}
}
