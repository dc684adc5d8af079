package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"groundedrag/internal/domain"
)

// Index is a minimal REST client to a Qdrant collection.
// The collection is created on the first Add, sized to the first batch.
type Index struct {
	url        string
	apiKey     string
	collection string
	distance   string
	client     *http.Client

	mu        sync.Mutex
	dimension int
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	// Distance is "Cosine" (default) or "Dot".
	Distance string
	Timeout  time.Duration
}

type point struct {
	ID      string    `json:"id"`
	Vector  []float64 `json:"vector"`
	Payload payload   `json:"payload"`
}

type payload struct {
	DocumentID string `json:"document_id"`
	ChunkID    string `json:"chunk_id"`
	Source     string `json:"source"`
	Index      int    `json:"index"`
	Offset     int    `json:"offset"`
	Text       string `json:"text"`
	Seq        int    `json:"seq"`
}

type hit struct {
	Score   float64 `json:"score"`
	Payload payload `json:"payload"`
}

type statusError struct {
	method string
	url    string
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %d %s", e.method, e.url, e.status, e.body)
}

func New(cfg Config) *Index {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	distance := cfg.Distance
	switch strings.ToLower(distance) {
	case "", "cosine":
		distance = "Cosine"
	case "dot":
		distance = "Dot"
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "chunks"
	}
	return &Index{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: collection,
		distance:   distance,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *Index) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", s.url, s.collection)
}

// ensureCollection creates the collection if it does not exist yet and
// records its vector size.
func (s *Index) ensureCollection(ctx context.Context, dimension int) error {
	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := s.doJSON(ctx, http.MethodGet, s.collectionURL(), nil, &info)
	switch {
	case err == nil:
		s.dimension = info.Result.Config.Params.Vectors.Size
		return nil
	case !isNotFound(err):
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": s.distance,
		},
	}
	if err := s.doJSON(ctx, http.MethodPut, s.collectionURL(), body, nil); err != nil {
		return err
	}
	s.dimension = dimension
	return nil
}

func (s *Index) Add(ctx context.Context, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		if err := s.ensureCollection(ctx, len(entries[0].Vector)); err != nil {
			return err
		}
	}
	for n, e := range entries {
		if len(e.Vector) != s.dimension {
			return fmt.Errorf("%w: entry %d has %d dimensions, collection has %d", domain.ErrDimensionMismatch, n, len(e.Vector), s.dimension)
		}
	}
	base, err := s.count(ctx)
	if err != nil {
		return err
	}

	points := make([]point, len(entries))
	for i, e := range entries {
		c := e.Chunk
		points[i] = point{
			ID:     e.ID,
			Vector: e.Vector,
			Payload: payload{
				DocumentID: c.DocumentID,
				ChunkID:    c.ChunkID,
				Source:     c.Source,
				Index:      c.Index,
				Offset:     c.Offset,
				Text:       c.Text,
				Seq:        base + i,
			},
		}
	}
	body := map[string]any{"points": points}
	return s.doJSON(ctx, http.MethodPut, s.collectionURL()+"/points?wait=true", body, nil)
}

// tieMargin is how many hits beyond k are requested so that entries tied at
// the k-th score can be re-ranked by seq. Ties wider than the margin are
// still cut by the server.
const tieMargin = 16

// Query searches the collection. Equal scores are ordered by insertion seq.
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

	req := map[string]any{
		"vector":       vector,
		"limit":        min(k+tieMargin, n),
		"with_payload": true,
	}
	var resp struct {
		Result []hit `json:"result"`
	}
	if err := s.doJSON(ctx, http.MethodPost, s.collectionURL()+"/points/search", req, &resp); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.status == http.StatusBadRequest && strings.Contains(se.body, "dimension") {
			return nil, fmt.Errorf("%w: %w", domain.ErrDimensionMismatch, err)
		}
		return nil, err
	}
	hits := resp.Result
	slices.SortStableFunc(hits, func(a, b hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return a.Payload.Seq - b.Payload.Seq
		}
	})

	if len(hits) > k {
		hits = hits[:k]
	}

	results := make([]domain.SearchResult, 0, len(hits))
	for _, r := range hits {
		p := r.Payload
		chunk := domain.Chunk{
			DocumentID: p.DocumentID,
			ChunkID:    p.ChunkID,
			Source:     p.Source,
			Index:      p.Index,
			Offset:     p.Offset,
			Text:       p.Text,
		}
		results = append(results, domain.SearchResult{Chunk: chunk, Score: r.Score})
	}
	return results, nil
}

// Len reports the number of points; a missing collection counts as empty.
func (s *Index) Len(ctx context.Context) (int, error) {
	n, err := s.count(ctx)
	if isNotFound(err) {
		return 0, nil
	}
	return n, err
}

func (s *Index) count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := s.doJSON(ctx, http.MethodPost, s.collectionURL()+"/points/count", map[string]any{"exact": true}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Reset drops the collection.
func (s *Index) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.doJSON(ctx, http.MethodDelete, s.collectionURL(), nil, nil)
	if err != nil && !isNotFound(err) {
		return err
	}
	s.dimension = 0
	return nil
}

func (s *Index) doJSON(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{method: method, url: url, status: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.status == http.StatusNotFound
}
