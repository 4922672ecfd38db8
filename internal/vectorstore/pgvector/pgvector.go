package pgvector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"supportrag/internal/domain"
)

const defaultTopK = 5

type Config struct {
	DSN      string
	Table    string
	MaxConns int32
}

// Storage keeps chunks in a Postgres table with a pgvector column and ranks
// them by cosine distance.
type Storage struct {
	pool       *pgxpool.Pool
	tableIdent string

	mu        sync.RWMutex
	dimension int
}

// New creates the vector extension if needed and opens a pool whose
// connections know the vector type.
func New(ctx context.Context, cfg Config) (*Storage, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgvector: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	if err := ensureExtension(ctx, poolCfg.ConnConfig); err != nil {
		return nil, err
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pgvector: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector: ping: %w", err)
	}
	return &Storage{pool: pool, tableIdent: tableIdent(cfg.Table)}, nil
}

func ensureExtension(ctx context.Context, connCfg *pgx.ConnConfig) error {
	conn, err := pgx.ConnectConfig(ctx, connCfg.Copy())
	if err != nil {
		return fmt.Errorf("pgvector: connect: %w", err)
	}
	defer conn.Close(ctx)
	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("pgvector: enable extension: %w", err)
	}
	return nil
}

func tableIdent(table string) string {
	if table == "" {
		table = "support_chunks"
	}
	return pgx.Identifier{table}.Sanitize()
}

func createTableSQL(ident string, dimension int) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	seq BIGSERIAL,
	embedding vector(%d) NOT NULL,
	content TEXT NOT NULL,
	metadata JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, ident, dimension)
}

func upsertSQL(ident string) string {
	return fmt.Sprintf(`INSERT INTO %s (id, embedding, content, metadata, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
	embedding = excluded.embedding,
	content = excluded.content,
	metadata = excluded.metadata,
	updated_at = excluded.updated_at`, ident)
}

func searchSQL(ident string) string {
	return fmt.Sprintf(`SELECT id, content, metadata, 1 - (embedding <=> $1) AS score
FROM %s
ORDER BY embedding <=> $1 ASC, seq ASC
LIMIT $2`, ident)
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidDimension, dimension)
	}
	if _, err := s.pool.Exec(ctx, createTableSQL(s.tableIdent, dimension)); err != nil {
		return fmt.Errorf("pgvector: create table: %w", err)
	}
	s.mu.Lock()
	s.dimension = dimension
	s.mu.Unlock()
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) (err error) {
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
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("pgvector: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("pgvector: rollback failed: %w; original error: %v", rbErr, err)
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("pgvector: commit: %w", commitErr)
		}
	}()

	stmt := upsertSQL(s.tableIdent)
	now := time.Now().UTC()
	for i, c := range chunks {
		if len(vectors[i]) != dim {
			return fmt.Errorf("%w: chunk %s has %d, want %d", domain.ErrDimensionMismatch, c.ID, len(vectors[i]), dim)
		}
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("pgvector: marshal metadata for %s: %w", c.ID, err)
		}
		if _, err := tx.Exec(ctx, stmt, c.ID, pgv.NewVector(vectors[i]), c.Text, meta, now); err != nil {
			return fmt.Errorf("pgvector: upsert %s: %w", c.ID, err)
		}
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.Match, error) {
	if dim := s.dim(); dim != 0 && len(vector) != dim {
		return nil, fmt.Errorf("%w: want %d, got %d", domain.ErrDimensionMismatch, dim, len(vector))
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	rows, err := s.pool.Query(ctx, searchSQL(s.tableIdent), pgv.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search: %w", err)
	}
	defer rows.Close()

	matches := make([]domain.Match, 0, topK)
	for rows.Next() {
		var (
			m       domain.Match
			metaRaw []byte
		)
		if err := rows.Scan(&m.Chunk.ID, &m.Chunk.Text, &metaRaw, &m.Score); err != nil {
			return nil, fmt.Errorf("pgvector: scan: %w", err)
		}
		if err := json.Unmarshal(metaRaw, &m.Chunk.Metadata); err != nil {
			return nil, fmt.Errorf("pgvector: decode metadata: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: search rows: %w", err)
	}
	return matches, nil
}

// Clear drops the table so the next Init can use a new dimension.
func (s *Storage) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "DROP TABLE IF EXISTS "+s.tableIdent); err != nil {
		return fmt.Errorf("pgvector: drop table: %w", err)
	}
	s.mu.Lock()
	s.dimension = 0
	s.mu.Unlock()
	return nil
}

func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

func (s *Storage) dim() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}
