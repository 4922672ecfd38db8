package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"supportrag/internal/domain"
	"supportrag/internal/logger"
)

var (
	// ErrRetrievalFailed is returned once every fetch attempt has failed.
	ErrRetrievalFailed = errors.New("semantic retrieval failed")
	// ErrNoSignal is returned when the query embeds to a zero vector or every
	// match scores zero, so similarity order carries no information.
	ErrNoSignal = errors.New("query has no semantic signal")
)

const (
	defaultTimeout     = 10 * time.Second
	defaultBaseBackoff = 200 * time.Millisecond
	defaultMaxRetries  = 3
)

// SemanticSource serves ranking candidates by embedding the query and running a
// nearest-neighbour search against the vector store.
type SemanticSource struct {
	embedder    domain.Embedder
	store       domain.VectorStore
	timeout     time.Duration
	maxRetries  uint64
	baseBackoff time.Duration
	logger      *slog.Logger
}

// Option customizes a SemanticSource.
type Option func(*SemanticSource)

// WithTimeout bounds each attempt; zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(s *SemanticSource) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRetries sets how many times a failed attempt is retried and the first backoff.
func WithRetries(maxRetries int, base time.Duration) Option {
	return func(s *SemanticSource) {
		if maxRetries >= 0 {
			s.maxRetries = uint64(maxRetries)
		}
		if base > 0 {
			s.baseBackoff = base
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *SemanticSource) { s.logger = l }
}

func NewSemanticSource(embedder domain.Embedder, store domain.VectorStore, opts ...Option) *SemanticSource {
	s := &SemanticSource{
		embedder:    embedder,
		store:       store,
		timeout:     defaultTimeout,
		maxRetries:  defaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
		logger:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch returns up to k chunks ordered by descending similarity to query.
func (s *SemanticSource) Fetch(ctx context.Context, query string, k int) ([]domain.Chunk, error) {
	backoff := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(s.baseBackoff))

	var (
		chunks  []domain.Chunk
		attempt int
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		var err error
		chunks, err = s.fetchOnce(ctx, query, k)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, ErrNoSignal) || !retryable(err) {
			return err
		}
		s.logger.Warn("retrieval_attempt_failed",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
		return retry.RetryableError(err)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, ErrNoSignal) {
			return nil, err
		}
		s.logger.Error("retrieval_failed",
			slog.Int("attempts", attempt),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetrievalFailed, attempt, err)
	}
	return chunks, nil
}

func (s *SemanticSource) fetchOnce(ctx context.Context, query string, k int) ([]domain.Chunk, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if isZero(vec) {
		return nil, ErrNoSignal
	}
	matches, err := s.store.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	signal := false
	chunks := make([]domain.Chunk, len(matches))
	for i, m := range matches {
		chunks[i] = m.Chunk
		signal = signal || m.Score > 1e-9
	}
	if len(matches) > 0 && !signal {
		return nil, ErrNoSignal
	}
	return chunks, nil
}

func isZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	switch {
	case errors.Is(err, domain.ErrDimensionMismatch),
		errors.Is(err, domain.ErrInvalidDimension),
		errors.Is(err, domain.ErrNotInitialized):
		return false
	}
	return true
}
