package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportrag/internal/config"
	"supportrag/internal/vectorstore/memory"
	"supportrag/internal/vectorstore/qdrant"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.VectorStoreConfig{})
	require.NoError(t, err)
	assert.IsType(t, &memory.Storage{}, s)

	s, err = Open(ctx, config.VectorStoreConfig{Type: "qdrant", Qdrant: &config.QdrantConfig{URL: "http://localhost:6333", Collection: "c"}})
	require.NoError(t, err)
	assert.IsType(t, &qdrant.Storage{}, s)

	_, err = Open(ctx, config.VectorStoreConfig{Type: "qdrant"})
	assert.Error(t, err)

	_, err = Open(ctx, config.VectorStoreConfig{Type: "pgvector", PGVector: &config.PGVectorConfig{}})
	assert.Error(t, err)

	_, err = Open(ctx, config.VectorStoreConfig{Type: "faiss"})
	assert.Error(t, err)
}
