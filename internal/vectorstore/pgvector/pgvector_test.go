package pgvector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableIdent(t *testing.T) {
	assert.Equal(t, `"support_chunks"`, tableIdent(""))
	assert.Equal(t, `"chunks ""v2"""`, tableIdent(`chunks "v2"`))
}

func TestSQL(t *testing.T) {
	ident := tableIdent("kb")

	create := createTableSQL(ident, 384)
	assert.Contains(t, create, `CREATE TABLE IF NOT EXISTS "kb"`)
	assert.Contains(t, create, "vector(384)")

	assert.Contains(t, upsertSQL(ident), "ON CONFLICT (id) DO UPDATE")

	search := searchSQL(ident)
	assert.Contains(t, search, "1 - (embedding <=> $1) AS score")
	assert.Contains(t, search, "ORDER BY embedding <=> $1 ASC, seq ASC")
}

func TestNewRejectsInvalidDSN(t *testing.T) {
	_, err := New(context.Background(), Config{DSN: "postgres://%zz"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse dsn")
}
