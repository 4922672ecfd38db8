package vectorstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"supportrag/internal/config"
	"supportrag/internal/domain"
	"supportrag/internal/vectorstore/memory"
	"supportrag/internal/vectorstore/pgvector"
	"supportrag/internal/vectorstore/qdrant"
)

// Storage is a vector store that may hold external resources.
type Storage interface {
	domain.VectorStore
	io.Closer
}

// Open builds the store selected by cfg.Type.
func Open(ctx context.Context, cfg config.VectorStoreConfig) (Storage, error) {
	switch cfg.Type {
	case "memory", "":
		return memory.NewStorage(), nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Distance:   cfg.Qdrant.Distance,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		}), nil
	case "pgvector":
		if cfg.PGVector == nil || cfg.PGVector.DSN == "" {
			return nil, fmt.Errorf("pgvector dsn missing")
		}
		st, err := pgvector.New(ctx, pgvector.Config{
			DSN:      cfg.PGVector.DSN,
			Table:    cfg.PGVector.Table,
			MaxConns: cfg.PGVector.MaxConns,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}
