// Package local embeds text in-process with a sentence-transformer ONNX model.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"

	"groundedrag/internal/embedding"
)

const DefaultModel = "sentence-transformers/all-MiniLM-L6-v2"

// Config selects the model and the directory it is downloaded into.
type Config struct {
	Model    string
	ModelDir string
}

// Embedder runs a hugot feature-extraction pipeline.
type Embedder struct {
	model    string
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline

	mu        sync.Mutex
	dimension int
}

// New prepares the model (downloading it if needed) and creates the pipeline.
// Callers must Close the embedder to release the session.
func New(cfg Config) (*Embedder, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.ModelDir == "" {
		cfg.ModelDir = "./models"
	}
	modelPath, err := PrepareModel(cfg.Model, cfg.ModelDir)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}
	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}
	return &Embedder{model: cfg.Model, session: session, pipeline: pipeline}, nil
}

// PrepareModel downloads the model if it doesn't exist and returns the model path.
func PrepareModel(modelName, modelDir string) (string, error) {
	modelPath := filepath.Join(modelDir, strings.ReplaceAll(modelName, "/", "_"))
	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	} else if !os.IsNotExist(err) {
		return "", err
	}
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}
	downloadOptions := hugot.NewDownloadOptions()
	downloadOptions.OnnxFilePath = "onnx/model.onnx"
	downloadedPath, err := hugot.DownloadModel(modelName, modelDir, downloadOptions)
	if err != nil {
		return "", fmt.Errorf("failed to download model: %w", err)
	}
	return downloadedPath, nil
}

func (e *Embedder) Name() string { return "local:" + e.model }

func (e *Embedder) Prepare(context.Context, []string) error { return nil }

func (e *Embedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimension
}

// Embed runs the pipeline on a single text. The pipeline is not re-entrant,
// so calls are serialised.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	result, err := e.pipeline.RunPipeline([]string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, errors.New("no embedding generated")
	}
	v := embedding.Normalize(embedding.FromFloat32(result.Embeddings[0]))
	if e.dimension == 0 {
		e.dimension = len(v)
	}
	return v, nil
}

// Close destroys the hugot session.
func (e *Embedder) Close() error {
	return e.session.Destroy()
}
