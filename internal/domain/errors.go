package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration marks caller errors detected before any I/O.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrEmbeddingFailure marks a failed call to the embedding provider.
	ErrEmbeddingFailure = errors.New("embedding failure")
	// ErrIndexNotFound is returned when a persisted index does not exist.
	ErrIndexNotFound = errors.New("index not found")
	// ErrCorruptIndex is returned when a persisted index cannot be decoded.
	ErrCorruptIndex = errors.New("corrupt index")
	// ErrEmptyIndex is returned when querying an index with no entries.
	ErrEmptyIndex = errors.New("index is empty")
	// ErrGenerationFailure marks a failed call to the generation provider.
	ErrGenerationFailure = errors.New("generation failure")
	// ErrDimensionMismatch is returned when vector sizes disagree.
	ErrDimensionMismatch = fmt.Errorf("%w: vector dimension mismatch", ErrInvalidConfiguration)
)

// Stage names a step of the RAG pipeline.
type Stage string

const (
	StageLoad     Stage = "load"
	StageChunk    Stage = "chunk"
	StageEmbed    Stage = "embed"
	StageBuild    Stage = "build"
	StageSave     Stage = "save"
	StageRetrieve Stage = "retrieve"
	StageGenerate Stage = "generate"
)

// StageError records which pipeline stage produced an error.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err with stage information. A nil err stays nil.
func NewStageError(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

// EmbeddingError classifies err as an embedding failure unless it already is one.
func EmbeddingError(err error) error {
	if err == nil || errors.Is(err, ErrEmbeddingFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrEmbeddingFailure, err)
}

// GenerationError classifies err as a generation failure unless it already is one.
func GenerationError(err error) error {
	if err == nil || errors.Is(err, ErrGenerationFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrGenerationFailure, err)
}
