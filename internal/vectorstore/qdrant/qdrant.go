package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"supportrag/internal/domain"
)

const defaultTopK = 5

// Storage is a minimal REST client to Qdrant. Point ids are the chunk UUIDs and
// the payload carries the chunk text and metadata.
type Storage struct {
	url        string
	apiKey     string
	collection string
	distance   string
	client     *http.Client

	mu        sync.RWMutex
	dimension int
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Distance   string
	Timeout    time.Duration
}

type payload struct {
	Text     string          `json:"text"`
	Metadata domain.Metadata `json:"metadata"`
}

type point struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload payload   `json:"payload"`
}

type searchHit struct {
	ID      any     `json:"id"`
	Score   float64 `json:"score"`
	Payload payload `json:"payload"`
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	distance := cfg.Distance
	if distance == "" {
		distance = "Cosine"
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		distance:   distance,
		client:     &http.Client{Timeout: timeout},
	}
}

// Init creates the collection unless it already exists.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidDimension, dimension)
	}
	status, err := s.do(ctx, http.MethodGet, s.collectionPath(), nil, nil)
	if err != nil && status != http.StatusNotFound {
		return err
	}
	if status == http.StatusNotFound {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     dimension,
				"distance": s.distance,
			},
		}
		if _, err := s.do(ctx, http.MethodPut, s.collectionPath(), body, nil); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.dimension = dimension
	s.mu.Unlock()
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return domain.ErrLengthMismatch
	}
	if len(chunks) == 0 {
		return nil
	}
	dim := s.dim()
	if dim == 0 {
		return domain.ErrNotInitialized
	}
	points := make([]point, len(chunks))
	for i, c := range chunks {
		if len(vectors[i]) != dim {
			return fmt.Errorf("%w: chunk %s has %d, want %d", domain.ErrDimensionMismatch, c.ID, len(vectors[i]), dim)
		}
		points[i] = point{
			ID:      c.ID,
			Vector:  vectors[i],
			Payload: payload{Text: c.Text, Metadata: c.Metadata},
		}
	}
	_, err := s.do(ctx, http.MethodPut, s.collectionPath()+"/points?wait=true", map[string]any{"points": points}, nil)
	return err
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.Match, error) {
	if dim := s.dim(); dim != 0 && len(vector) != dim {
		return nil, fmt.Errorf("%w: want %d, got %d", domain.ErrDimensionMismatch, dim, len(vector))
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []searchHit `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionPath()+"/points/search", req, &resp); err != nil {
		return nil, err
	}
	matches := make([]domain.Match, 0, len(resp.Result))
	for _, hit := range resp.Result {
		matches = append(matches, domain.Match{
			Chunk: domain.Chunk{
				ID:       fmt.Sprint(hit.ID),
				Text:     hit.Payload.Text,
				Metadata: hit.Payload.Metadata,
			},
			Score: hit.Score,
		})
	}
	return matches, nil
}

// Clear drops the collection; a missing collection is not an error.
func (s *Storage) Clear(ctx context.Context) error {
	status, err := s.do(ctx, http.MethodDelete, s.collectionPath(), nil, nil)
	if err != nil && status != http.StatusNotFound {
		return err
	}
	s.mu.Lock()
	s.dimension = 0
	s.mu.Unlock()
	return nil
}

func (s *Storage) Close() error { return nil }

func (s *Storage) dim() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

func (s *Storage) collectionPath() string {
	return "/collections/" + s.collection
}

// do sends a JSON request and decodes the response into out. The HTTP status is
// returned alongside any error so callers can treat 404 specially.
func (s *Storage) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("qdrant: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return 0, fmt.Errorf("qdrant: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("qdrant: request failed: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("qdrant: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Status struct {
				Error string `json:"error"`
			} `json:"status"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Status.Error != "" {
			return resp.StatusCode, fmt.Errorf("qdrant %s %s: %s (%d)", method, path, apiErr.Status.Error, resp.StatusCode)
		}
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s", method, path, resp.Status)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("qdrant: decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

