package openai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"supportrag/internal/domain"
)

// ErrMissingAPIKey is returned when the configured key variable is unset.
var ErrMissingAPIKey = errors.New("missing API key")

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	BatchSize int
	// CacheSize bounds the query embedding cache; zero disables it.
	CacheSize int
}

// Client embeds text through any OpenAI-compatible endpoint.
type Client struct {
	model string
	impl  embeddings.Embedder
	cache *lru.Cache[string, []float32]

	mu        sync.RWMutex
	dimension int
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w in env %s", ErrMissingAPIKey, cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	opts := []openai.Option{
		openai.WithToken(key),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init openai client: %w", err)
	}
	var embOpts []embeddings.Option
	if cfg.BatchSize > 0 {
		embOpts = append(embOpts, embeddings.WithBatchSize(cfg.BatchSize))
	}
	impl, err := embeddings.NewEmbedder(llm, embOpts...)
	if err != nil {
		return nil, fmt.Errorf("construct openai embedder: %w", err)
	}
	return Wrap(cfg.Model, impl, cfg.CacheSize)
}

// Wrap builds a Client around an existing langchaingo embedder.
func Wrap(model string, impl embeddings.Embedder, cacheSize int) (*Client, error) {
	if impl == nil {
		return nil, errors.New("embedder implementation is required")
	}
	c := &Client{model: model, impl: impl}
	if cacheSize > 0 {
		cache, err := lru.New[string, []float32](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("init embedding cache: %w", err)
		}
		c.cache = cache
	}
	return c, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// Prepare is not required for remote embedding.
func (c *Client) Prepare([]string) error { return nil }

// Dimension is learned from the first successful embedding and is 0 before it.
func (c *Client) Dimension() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dimension
}

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(c.model, text)
	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			return cloneVector(v), nil
		}
	}
	v, err := c.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(v) == 0 {
		return nil, errors.New("openai embed: no embedding returned")
	}
	c.mu.Lock()
	if c.dimension == 0 {
		c.dimension = len(v)
	}
	c.mu.Unlock()
	if c.cache != nil {
		c.cache.Add(key, cloneVector(v))
	}
	return v, nil
}

var _ domain.BatchEmbedder = (*Client)(nil)

// EmbedBatch embeds texts in provider-sized batches, bypassing the cache.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := c.impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("openai embed batch: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("openai embed batch: received %d embeddings for %d texts", len(vectors), len(texts))
	}
	if len(vectors) > 0 {
		c.mu.Lock()
		if c.dimension == 0 {
			c.dimension = len(vectors[0])
		}
		c.mu.Unlock()
	}
	return vectors, nil
}

func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func cloneVector(src []float32) []float32 {
	dst := make([]float32, len(src))
	copy(dst, src)
	return dst
}
