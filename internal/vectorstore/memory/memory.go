package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"supportrag/internal/domain"
)

type entry struct {
	chunk  domain.Chunk
	vector []float32
	norm   float64
}

// Storage is an in-memory vector store using brute-force cosine similarity.
// Upserting an existing chunk id replaces it in place.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	entries   []entry
	byID      map[string]int
}

func NewStorage() *Storage { return &Storage{byID: make(map[string]int)} }

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidDimension, dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != dimension {
		s.entries = nil
		s.byID = make(map[string]int)
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(_ context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return domain.ErrLengthMismatch
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		return domain.ErrNotInitialized
	}
	for _, v := range vectors {
		if len(v) != s.dimension {
			return fmt.Errorf("%w: want %d, got %d", domain.ErrDimensionMismatch, s.dimension, len(v))
		}
	}
	for i, c := range chunks {
		e := entry{chunk: c, vector: append([]float32(nil), vectors[i]...), norm: norm(vectors[i])}
		if j, ok := s.byID[c.ID]; ok {
			s.entries[j] = e
			continue
		}
		s.byID[c.ID] = len(s.entries)
		s.entries = append(s.entries, e)
	}
	return nil
}

// Search returns up to topK chunks by descending cosine similarity. Ties keep
// insertion order.
func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dimension != 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: want %d, got %d", domain.ErrDimensionMismatch, s.dimension, len(vector))
	}
	if topK <= 0 {
		topK = 5
	}
	qn := norm(vector)
	matches := make([]domain.Match, len(s.entries))
	for i, e := range s.entries {
		score := 0.0
		if qn > 0 && e.norm > 0 {
			score = dot(e.vector, vector) / (qn * e.norm)
		}
		matches[i] = domain.Match{Chunk: e.chunk, Score: score}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *Storage) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.byID = make(map[string]int)
	return nil
}

// Len reports how many chunks are stored.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func dot(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}

func (s *Storage) Close() error { return nil }
