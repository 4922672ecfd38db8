package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"supportrag/internal/domain"
	"supportrag/internal/ranking"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
	CacheSize   int    `yaml:"cache_size"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type     string          `yaml:"type"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
	PGVector *PGVectorConfig `yaml:"pgvector,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	Distance    string `yaml:"distance"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// PGVectorConfig contains connection details for a Postgres pgvector store.
type PGVectorConfig struct {
	DSN      string `yaml:"dsn"`
	Table    string `yaml:"table"`
	MaxConns int32  `yaml:"max_conns"`
}

// RetrievalConfig bounds the semantic candidate fetch.
type RetrievalConfig struct {
	TimeoutSecs       int `yaml:"timeout_secs"`
	MaxRetries        int `yaml:"max_retries"`
	BaseBackoffMillis int `yaml:"base_backoff_millis"`
}

// IngestConfig controls embedding parallelism during ingestion.
type IngestConfig struct {
	Workers int `yaml:"workers"`
	// RatePerSecond caps embed calls; zero disables the limiter.
	RatePerSecond float64 `yaml:"rate_per_second"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DataConfig points at the corpus files.
type DataConfig struct {
	ProductDocs    string `yaml:"product_docs"`
	SupportTickets string `yaml:"support_tickets"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Ranking     ranking.Config    `yaml:"ranking"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Server      ServerConfig      `yaml:"server"`
	Data        DataConfig        `yaml:"data"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Keys absent from the file keep their default values. Environment overrides are
// applied last.
func Load(path string) (*AppConfig, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	} else if err := decode(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg, nil
}

// fileOverrides captures keys whose presence in the file changes how they merge
// with the defaults.
type fileOverrides struct {
	Chunker struct {
		ChunkOverlap *int `yaml:"chunk_overlap"`
	} `yaml:"chunker"`
	Ranking struct {
		DocTypePriorities map[domain.EffectiveType]float64 `yaml:"doc_type_priorities"`
		QueryPatterns     map[string][]string              `yaml:"query_patterns"`
	} `yaml:"ranking"`
}

// decode unmarshals data on top of cfg. Tables given in the file replace the
// default tables instead of being merged into them.
func decode(data []byte, cfg *AppConfig) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	var o fileOverrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return err
	}
	if o.Ranking.DocTypePriorities != nil {
		cfg.Ranking.DocTypePriorities = o.Ranking.DocTypePriorities
	}
	if o.Ranking.QueryPatterns != nil {
		cfg.Ranking.QueryPatterns = o.Ranking.QueryPatterns
	}
	if o.Chunker.ChunkOverlap == nil {
		cfg.Chunker.ChunkOverlap = defaultOverlap(cfg.Chunker.ChunkSize)
	}
	return nil
}

// defaultOverlap keeps the default overlap when it fits size and scales it
// down otherwise.
func defaultOverlap(size int) int {
	if size > defaultChunkOverlap {
		return defaultChunkOverlap
	}
	return size * defaultChunkOverlap / defaultChunkSize
}

// LoadDefault tries ./config.yaml first, then ~/.config/supportrag/config.yaml.
// If neither exists, it writes defaults to the user path and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyConfigDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate fails fast on settings no component could run with.
func (c *AppConfig) Validate() error {
	if c.Chunker.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ranking.ErrInvalidConfig, c.Chunker.ChunkSize)
	}
	if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got %d", ranking.ErrInvalidConfig, c.Chunker.ChunkOverlap)
	}
	if c.Retrieval.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be non-negative, got %d", ranking.ErrInvalidConfig, c.Retrieval.MaxRetries)
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("%w: ingest workers must be positive, got %d", ranking.ErrInvalidConfig, c.Ingest.Workers)
	}
	return c.Ranking.Validate()
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "supportrag", "config.yaml"), nil
}

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

func defaultConfig() *AppConfig {
	return &AppConfig{
		Chunker:     ChunkerConfig{ChunkSize: defaultChunkSize, ChunkOverlap: defaultChunkOverlap},
		Ranking:     ranking.DefaultConfig(),
		Embedder:    EmbedderConfig{Type: "tfidf"},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Retrieval:   RetrievalConfig{TimeoutSecs: 10, MaxRetries: 3, BaseBackoffMillis: 200},
		Ingest:      IngestConfig{Workers: 4},
		Server:      ServerConfig{Addr: ":8080"},
		Data: DataConfig{
			ProductDocs:    "data/product_docs.json",
			SupportTickets: "data/support_tickets.json",
		},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = defaultChunkSize
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 4
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
		if o.BatchSize == 0 {
			o.BatchSize = 32
		}
		if o.CacheSize == 0 {
			o.CacheSize = 1024
		}
	}
	switch cfg.VectorStore.Type {
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		q := cfg.VectorStore.Qdrant
		if q.URL == "" {
			q.URL = "http://localhost:6333"
		}
		if q.Collection == "" {
			q.Collection = "support_chunks"
		}
		if q.Distance == "" {
			q.Distance = "Cosine"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 10
		}
	case "pgvector":
		if cfg.VectorStore.PGVector == nil {
			cfg.VectorStore.PGVector = &PGVectorConfig{}
		}
		p := cfg.VectorStore.PGVector
		if p.Table == "" {
			p.Table = "support_chunks"
		}
		if p.MaxConns == 0 {
			p.MaxConns = 4
		}
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if size := getEnvInt("RAG_CHUNK_SIZE", cfg.Chunker.ChunkSize); size != cfg.Chunker.ChunkSize {
		cfg.Chunker.ChunkSize = size
		if cfg.Chunker.ChunkOverlap >= size {
			cfg.Chunker.ChunkOverlap = defaultOverlap(size)
		}
	}
	cfg.Chunker.ChunkOverlap = getEnvInt("RAG_CHUNK_OVERLAP", cfg.Chunker.ChunkOverlap)
	cfg.Ranking.RerankTopK = getEnvInt("RAG_RERANK_TOP_K", cfg.Ranking.RerankTopK)
	cfg.Ranking.FinalResultsK = getEnvInt("RAG_FINAL_RESULTS_K", cfg.Ranking.FinalResultsK)
	cfg.Retrieval.MaxRetries = getEnvInt("RAG_RETRIEVAL_MAX_RETRIES", cfg.Retrieval.MaxRetries)
	cfg.Ingest.Workers = getEnvInt("RAG_INGEST_WORKERS", cfg.Ingest.Workers)
	cfg.Server.Addr = getEnv("RAG_SERVER_ADDR", cfg.Server.Addr)

	if v := getEnv("RAG_EMBEDDER", ""); v != "" && v != cfg.Embedder.Type {
		cfg.Embedder.Type = v
		applyConfigDefaults(cfg)
	}
	if v := getEnv("RAG_VECTOR_STORE", ""); v != "" && v != cfg.VectorStore.Type {
		cfg.VectorStore.Type = v
		applyConfigDefaults(cfg)
	}
	if dsn := getEnv("RAG_PGVECTOR_DSN", ""); dsn != "" {
		if cfg.VectorStore.PGVector == nil {
			cfg.VectorStore.PGVector = &PGVectorConfig{Table: "support_chunks", MaxConns: 4}
		}
		cfg.VectorStore.PGVector.DSN = dsn
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
