package retrieval

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportrag/internal/domain"
)

type stubEmbedder struct {
	err error
}

func (stubEmbedder) Name() string { return "stub" }
func (stubEmbedder) Prepare([]string) error { return nil }
func (stubEmbedder) Dimension() int { return 2 }

func (e stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{1, 0}, nil
}

// flakyStore returns err for its first failures searches.
type flakyStore struct {
	failures int32
	err      error
	block    bool
	calls    atomic.Int32
	matches  []domain.Match
	gotK     int
}

func (s *flakyStore) Init(context.Context, int) error { return nil }
func (s *flakyStore) Upsert(context.Context, []domain.Chunk, [][]float32) error { return nil }
func (s *flakyStore) Clear(context.Context) error { return nil }

func (s *flakyStore) Search(ctx context.Context, _ []float32, k int) ([]domain.Match, error) {
	n := s.calls.Add(1)
	s.gotK = k
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if n <= s.failures {
		return nil, s.err
	}
	return s.matches, nil
}

func fastRetries(n int) Option {
	return WithRetries(n, time.Millisecond)
}

func TestSemanticSourceFetch(t *testing.T) {
	ctx := context.Background()
	matches := []domain.Match{
		{Chunk: domain.Chunk{ID: "a"}, Score: 0.9},
		{Chunk: domain.Chunk{ID: "b"}, Score: 0.4},
	}

	t.Run("ShouldReturnChunksInStoreOrder", func(t *testing.T) {
		store := &flakyStore{matches: matches}
		src := NewSemanticSource(stubEmbedder{}, store)
		got, err := src.Fetch(ctx, "sync", 20)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "a", got[0].ID)
		assert.Equal(t, "b", got[1].ID)
		assert.Equal(t, 20, store.gotK)
	})

	t.Run("ShouldRetryTransientFailures", func(t *testing.T) {
		store := &flakyStore{failures: 2, err: errors.New("connection reset"), matches: matches}
		src := NewSemanticSource(stubEmbedder{}, store, fastRetries(3))
		got, err := src.Fetch(ctx, "sync", 5)
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.Equal(t, int32(3), store.calls.Load())
	})

	t.Run("ShouldFailAfterRetriesExhausted", func(t *testing.T) {
		boom := errors.New("503 unavailable")
		store := &flakyStore{failures: 100, err: boom}
		src := NewSemanticSource(stubEmbedder{}, store, fastRetries(2))
		_, err := src.Fetch(ctx, "sync", 5)
		assert.ErrorIs(t, err, ErrRetrievalFailed)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, int32(3), store.calls.Load())
	})

	t.Run("ShouldNotRetryPermanentErrors", func(t *testing.T) {
		store := &flakyStore{failures: 100, err: domain.ErrDimensionMismatch}
		src := NewSemanticSource(stubEmbedder{}, store, fastRetries(5))
		_, err := src.Fetch(ctx, "sync", 5)
		assert.ErrorIs(t, err, ErrRetrievalFailed)
		assert.Equal(t, int32(1), store.calls.Load())
	})

	t.Run("ShouldBoundEachAttempt", func(t *testing.T) {
		store := &flakyStore{block: true}
		src := NewSemanticSource(stubEmbedder{}, store, WithTimeout(5*time.Millisecond), fastRetries(1))
		_, err := src.Fetch(ctx, "sync", 5)
		assert.ErrorIs(t, err, ErrRetrievalFailed)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, int32(2), store.calls.Load())
	})

	t.Run("ShouldStopOnCallerCancel", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		store := &flakyStore{matches: matches}
		src := NewSemanticSource(stubEmbedder{}, store, fastRetries(3))
		_, err := src.Fetch(cctx, "sync", 5)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrRetrievalFailed)
	})

	t.Run("ShouldWrapEmbedFailures", func(t *testing.T) {
		boom := errors.New("model offline")
		src := NewSemanticSource(stubEmbedder{err: boom}, &flakyStore{}, fastRetries(1))
		_, err := src.Fetch(ctx, "sync", 5)
		assert.ErrorIs(t, err, boom)
		assert.ErrorIs(t, err, ErrRetrievalFailed)
	})
}
