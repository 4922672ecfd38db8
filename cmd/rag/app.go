package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"supportrag/internal/chunker"
	"supportrag/internal/config"
	"supportrag/internal/domain"
	"supportrag/internal/embedding/openai"
	"supportrag/internal/embedding/tfidf"
	"supportrag/internal/ranking"
	"supportrag/internal/retrieval"
	"supportrag/internal/service"
	"supportrag/internal/vectorstore"
)

type app struct {
	cfg   *config.AppConfig
	svc   *service.Service
	store vectorstore.Storage
	stats service.IngestStats
	log   *slog.Logger
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("close vector store", "error", err)
	}
}

func newApp(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) (*app, error) {
	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "tfidf", "":
		emb = tfidf.NewEmbedder()
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
			BatchSize: cfg.Embedder.OpenAI.BatchSize,
			CacheSize: cfg.Embedder.OpenAI.CacheSize,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		emb = client
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}

	ch, err := chunker.NewStructuralChunker(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	engine, err := ranking.NewEngine(cfg.Ranking, ranking.WithLogger(log))
	if err != nil {
		return nil, err
	}

	st, err := vectorstore.Open(ctx, cfg.VectorStore)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	retrievalOpts := []retrieval.Option{
		retrieval.WithTimeout(time.Duration(cfg.Retrieval.TimeoutSecs) * time.Second),
		retrieval.WithRetries(cfg.Retrieval.MaxRetries, time.Duration(cfg.Retrieval.BaseBackoffMillis)*time.Millisecond),
	}
	svc := service.New(ch, emb, st, engine, retrievalOpts,
		service.WithWorkers(cfg.Ingest.Workers),
		service.WithRateLimit(cfg.Ingest.RatePerSecond),
		service.WithLogger(log),
	)
	return &app{cfg: cfg, svc: svc, store: st, log: log}, nil
}
