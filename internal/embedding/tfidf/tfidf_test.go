package tfidf

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func norm(v []float32) float64 {
	s := 0.0
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func dot(a, b []float32) float64 {
	s := 0.0
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestEmbedder(t *testing.T) {
	ctx := context.Background()
	corpus := []string{
		"Reset your password from the login page.",
		"Sync fails with error 500 after upgrading to version 2.1",
		"Billing invoices are emailed monthly.",
	}

	t.Run("ShouldFailBeforePrepare", func(t *testing.T) {
		e := NewEmbedder()
		_, err := e.Embed(ctx, "password")
		assert.ErrorIs(t, err, ErrNotPrepared)
		assert.Zero(t, e.Dimension())
	})

	t.Run("ShouldRejectEmptyCorpus", func(t *testing.T) {
		e := NewEmbedder()
		assert.ErrorIs(t, e.Prepare(nil), ErrEmptyCorpus)
		assert.ErrorIs(t, e.Prepare([]string{"the and of"}), ErrEmptyCorpus)
	})

	t.Run("ShouldProduceNormalizedVectors", func(t *testing.T) {
		e := NewEmbedder()
		require.NoError(t, e.Prepare(corpus))
		assert.Positive(t, e.Dimension())

		vec, err := e.Embed(ctx, "login password reset")
		require.NoError(t, err)
		assert.Len(t, vec, e.Dimension())
		assert.InDelta(t, 1.0, norm(vec), 1e-5)
	})

	t.Run("ShouldReturnZeroVectorForUnknownTerms", func(t *testing.T) {
		e := NewEmbedder()
		require.NoError(t, e.Prepare(corpus))
		vec, err := e.Embed(ctx, "kubernetes")
		require.NoError(t, err)
		assert.Zero(t, norm(vec))
	})

	t.Run("ShouldRankRelatedTextCloser", func(t *testing.T) {
		e := NewEmbedder()
		require.NoError(t, e.Prepare(corpus))
		vecs := make([][]float32, len(corpus))
		for i, text := range corpus {
			v, err := e.Embed(ctx, text)
			require.NoError(t, err)
			vecs[i] = v
		}
		q, err := e.Embed(ctx, "sync error")
		require.NoError(t, err)
		assert.Greater(t, dot(q, vecs[1]), dot(q, vecs[0]))
		assert.Greater(t, dot(q, vecs[1]), dot(q, vecs[2]))
	})

	t.Run("ShouldBeDeterministic", func(t *testing.T) {
		a, b := NewEmbedder(), NewEmbedder()
		require.NoError(t, a.Prepare(corpus))
		require.NoError(t, b.Prepare(corpus))
		va, err := a.Embed(ctx, corpus[1])
		require.NoError(t, err)
		vb, err := b.Embed(ctx, corpus[1])
		require.NoError(t, err)
		assert.Equal(t, va, vb)
	})

	t.Run("ShouldHonorCanceledContext", func(t *testing.T) {
		e := NewEmbedder()
		require.NoError(t, e.Prepare(corpus))
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := e.Embed(cctx, "sync")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestTokenize(t *testing.T) {
	e := NewEmbedder()
	assert.Equal(t, []string{"sync", "fails", "version", "2.1", "can't", "login"},
		e.tokenize("The sync fails on version 2.1. I can't login."))
}
