package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"supportrag/internal/domain"
	"supportrag/internal/logger"
	"supportrag/internal/metrics"
	"supportrag/internal/ranking"
	"supportrag/internal/retrieval"
)

// ErrNoChunks is returned when ingestion produced nothing to index.
var ErrNoChunks = errors.New("no chunks produced from documents")

const upsertBatchSize = 64

// IngestStats summarizes one ingestion run.
type IngestStats struct {
	Documents int           `json:"documents"`
	Chunks    int           `json:"chunks"`
	Dimension int           `json:"dimension"`
	Duration  time.Duration `json:"duration"`
}

// SearchRequest is a ranked search over the indexed corpus.
type SearchRequest struct {
	Query   string
	Version string
	K       int
}

// Service ties chunking, embedding and the vector store to the ranking engine.
type Service struct {
	chunker  domain.Chunker
	embedder domain.Embedder
	store    domain.VectorStore
	engine   *ranking.Engine
	lexical  *retrieval.LexicalSource
	source   domain.CandidateSource

	workers int
	limiter *rate.Limiter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithWorkers bounds concurrent embed calls during ingestion.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithRateLimit caps embed calls per second during ingestion; zero disables it.
func WithRateLimit(perSecond float64) Option {
	return func(s *Service) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New wires a service. retrievalOpts configure the semantic candidate fetch.
func New(
	chunker domain.Chunker,
	embedder domain.Embedder,
	store domain.VectorStore,
	engine *ranking.Engine,
	retrievalOpts []retrieval.Option,
	opts ...Option,
) *Service {
	s := &Service{
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		engine:   engine,
		lexical:  retrieval.NewLexicalSource(),
		workers:  4,
		metrics:  metrics.New(),
		logger:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	semantic := retrieval.NewSemanticSource(embedder, store,
		append([]retrieval.Option{retrieval.WithLogger(s.logger)}, retrievalOpts...)...)
	s.source = retrieval.Fallback{Primary: semantic, Secondary: s.lexical}
	return s
}

// Metrics returns the collectors the service reports to.
func (s *Service) Metrics() *metrics.Metrics { return s.metrics }

// Ingest chunks docs, embeds every chunk and replaces the store contents.
func (s *Service) Ingest(ctx context.Context, docs []domain.Document) (IngestStats, error) {
	start := time.Now()
	stats := IngestStats{Documents: len(docs)}

	var chunks []domain.Chunk
	for _, d := range docs {
		cs, err := s.chunker.Split(d)
		if err != nil {
			s.metrics.RecordError("chunk")
			return stats, fmt.Errorf("chunk document %s: %w", d.Metadata.ID, err)
		}
		chunks = append(chunks, cs...)
	}
	if len(chunks) == 0 {
		return stats, ErrNoChunks
	}
	stats.Chunks = len(chunks)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	if err := s.embedder.Prepare(texts); err != nil {
		s.metrics.RecordError("prepare")
		return stats, fmt.Errorf("prepare embedder: %w", err)
	}

	vectors, err := s.embedAll(ctx, texts)
	if err != nil {
		s.metrics.RecordError("embed")
		return stats, err
	}
	stats.Dimension = len(vectors[0])

	if err := s.store.Clear(ctx); err != nil {
		s.metrics.RecordError("store")
		return stats, fmt.Errorf("clear store: %w", err)
	}
	if err := s.store.Init(ctx, stats.Dimension); err != nil {
		s.metrics.RecordError("store")
		return stats, fmt.Errorf("init store: %w", err)
	}
	for lo := 0; lo < len(chunks); lo += upsertBatchSize {
		hi := min(lo+upsertBatchSize, len(chunks))
		if err := s.store.Upsert(ctx, chunks[lo:hi], vectors[lo:hi]); err != nil {
			s.metrics.RecordError("store")
			return stats, fmt.Errorf("upsert chunks: %w", err)
		}
	}
	s.lexical.Index(chunks)

	stats.Duration = time.Since(start)
	s.metrics.RecordIngest(stats.Documents, stats.Chunks)
	s.logger.Info("ingest_completed",
		slog.String("embedder", s.embedder.Name()),
		slog.Int("documents", stats.Documents),
		slog.Int("chunks", stats.Chunks),
		slog.Int("dimension", stats.Dimension),
		slog.Int64("duration_ms", stats.Duration.Milliseconds()))
	return stats, nil
}

// embedAll embeds texts with bounded concurrency. Embedders that support
// batching get one call per batch of upsertBatchSize texts.
func (s *Service) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	if batcher, ok := s.embedder.(domain.BatchEmbedder); ok {
		for lo := 0; lo < len(texts); lo += upsertBatchSize {
			hi := min(lo+upsertBatchSize, len(texts))
			g.Go(func() error {
				if err := s.wait(gctx); err != nil {
					return err
				}
				t0 := time.Now()
				batch, err := batcher.EmbedBatch(gctx, texts[lo:hi])
				if err != nil {
					return fmt.Errorf("embed chunks %d-%d: %w", lo, hi-1, err)
				}
				if len(batch) != hi-lo {
					return fmt.Errorf("embed chunks %d-%d: got %d vectors", lo, hi-1, len(batch))
				}
				s.metrics.EmbedDuration.Observe(time.Since(t0).Seconds())
				copy(vectors[lo:hi], batch)
				return nil
			})
		}
	} else {
		for i, text := range texts {
			g.Go(func() error {
				if err := s.wait(gctx); err != nil {
					return err
				}
				t0 := time.Now()
				vec, err := s.embedder.Embed(gctx, text)
				if err != nil {
					return fmt.Errorf("embed chunk %d: %w", i, err)
				}
				s.metrics.EmbedDuration.Observe(time.Since(t0).Seconds())
				vectors[i] = vec
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("embedder %s returned empty vectors", s.embedder.Name())
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: chunk %d has %d, want %d", domain.ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return vectors, nil
}

func (s *Service) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

// Search ranks the indexed corpus for req.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*ranking.Report, error) {
	start := time.Now()
	report, err := s.engine.Search(ctx, req.Query, s.source, ranking.SearchOptions{
		Version: req.Version,
		K:       req.K,
	})
	elapsed := time.Since(start)
	if err != nil {
		status := "error"
		if errors.Is(err, ranking.ErrEmptyQuery) {
			status = "invalid"
		}
		s.metrics.RecordSearch(status, elapsed.Seconds(), 0, false, false)
		s.logger.Warn("search_failed",
			slog.String("query", req.Query),
			slog.String("status", status),
			slog.String("error", err.Error()))
		return nil, err
	}
	s.metrics.RecordSearch("ok", elapsed.Seconds(), report.Candidates, report.Negated, report.VersionFallback)
	s.logger.Info("search_completed",
		slog.String("query", req.Query),
		slog.String("version", req.Version),
		slog.Int("candidates", report.Candidates),
		slog.Int("results", len(report.Results)),
		slog.Bool("negated", report.Negated),
		slog.Bool("version_fallback", report.VersionFallback),
		slog.Int64("duration_ms", elapsed.Milliseconds()))
	return report, nil
}
