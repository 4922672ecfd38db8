package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportrag/internal/domain"
)

// fakeQdrant keeps just enough state to exercise the REST calls.
type fakeQdrant struct {
	mu         sync.Mutex
	exists     bool
	created    int
	points     []point
	lastSearch map[string]any
	apiKey     string
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKey = r.Header.Get("api-key")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/collections/chunks":
		if !f.exists {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":{"error":"Not found: Collection chunks doesn't exist!"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"result":{},"status":"ok"}`))
	case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks":
		f.exists = true
		f.created++
		_, _ = w.Write([]byte(`{"result":true,"status":"ok"}`))
	case r.Method == http.MethodDelete && r.URL.Path == "/collections/chunks":
		if !f.exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.exists = false
		f.points = nil
		_, _ = w.Write([]byte(`{"result":true,"status":"ok"}`))
	case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks/points":
		var body struct {
			Points []point `json:"points"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.points = append(f.points, body.Points...)
		_, _ = w.Write([]byte(`{"result":{"status":"completed"},"status":"ok"}`))
	case r.Method == http.MethodPost && r.URL.Path == "/collections/chunks/points/search":
		_ = json.NewDecoder(r.Body).Decode(&f.lastSearch)
		hits := make([]map[string]any, 0, len(f.points))
		for i, p := range f.points {
			hits = append(hits, map[string]any{"id": p.ID, "score": 1.0 - float64(i)*0.1, "payload": p.Payload})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": hits, "status": "ok"})
	default:
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":{"error":"unexpected call"}}`))
	}
}

func newTestStorage(t *testing.T) (*Storage, *fakeQdrant) {
	t.Helper()
	fake := &fakeQdrant{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewStorage(Config{URL: srv.URL + "/", APIKey: "secret", Collection: "chunks"}), fake
}

func TestStorage(t *testing.T) {
	ctx := context.Background()

	t.Run("ShouldCreateCollectionOnce", func(t *testing.T) {
		s, fake := newTestStorage(t)
		require.NoError(t, s.Init(ctx, 3))
		require.NoError(t, s.Init(ctx, 3))
		assert.Equal(t, 1, fake.created)
		assert.Equal(t, "secret", fake.apiKey)
	})

	t.Run("ShouldRoundTripChunks", func(t *testing.T) {
		s, fake := newTestStorage(t)
		require.NoError(t, s.Init(ctx, 2))
		chunk := domain.Chunk{
			ID:   domain.ChunkID(domain.KindSupportTicket, "TICKET-7", 0),
			Text: "Sync fails after upgrade",
			Metadata: domain.Metadata{
				Source: domain.KindSupportTicket,
				ID:     "TICKET-7",
				Ticket: &domain.TicketFields{Status: "resolved", Category: "synchronization", UserVersion: "2.1"},
			},
		}
		require.NoError(t, s.Upsert(ctx, []domain.Chunk{chunk}, [][]float32{{0.6, 0.8}}))

		got, err := s.Search(ctx, []float32{0.6, 0.8}, 3)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, chunk, got[0].Chunk)
		assert.Equal(t, float64(3), fake.lastSearch["limit"])
	})

	t.Run("ShouldValidateBeforeCalling", func(t *testing.T) {
		s, _ := newTestStorage(t)
		assert.ErrorIs(t, s.Init(ctx, 0), domain.ErrInvalidDimension)
		assert.ErrorIs(t, s.Upsert(ctx, []domain.Chunk{{ID: "a"}}, [][]float32{{1}}), domain.ErrNotInitialized)

		require.NoError(t, s.Init(ctx, 2))
		assert.ErrorIs(t, s.Upsert(ctx, []domain.Chunk{{ID: "a"}}, nil), domain.ErrLengthMismatch)
		assert.ErrorIs(t, s.Upsert(ctx, []domain.Chunk{{ID: "a"}}, [][]float32{{1}}), domain.ErrDimensionMismatch)
		_, err := s.Search(ctx, []float32{1}, 1)
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	})

	t.Run("ShouldClearIdempotently", func(t *testing.T) {
		s, fake := newTestStorage(t)
		require.NoError(t, s.Clear(ctx))
		require.NoError(t, s.Init(ctx, 2))
		require.NoError(t, s.Clear(ctx))
		assert.False(t, fake.exists)
	})

	t.Run("ShouldSurfaceServerErrors", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()
		s := NewStorage(Config{URL: srv.URL, Collection: "chunks"})
		_, err := s.Search(ctx, []float32{1, 0}, 1)
		assert.Error(t, err)
	})
}
