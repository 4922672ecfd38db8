package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportrag/internal/domain"
	"supportrag/internal/httpapi"
	"supportrag/internal/logger"
	"supportrag/internal/metrics"
	"supportrag/internal/ranking"
	"supportrag/internal/retrieval"
	"supportrag/internal/service"
)

type stubSearcher struct {
	report   *ranking.Report
	err      error
	captured service.SearchRequest
}

func (s *stubSearcher) Search(_ context.Context, req service.SearchRequest) (*ranking.Report, error) {
	s.captured = req
	return s.report, s.err
}

func doSearch(t *testing.T, searcher httpapi.Searcher, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	handler := httpapi.NewHandler(searcher, logger.Discard())

	req := httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, handler.Search(c))
	return rec
}

func TestHandler_Search(t *testing.T) {
	t.Run("ShouldReturnRankedResults", func(t *testing.T) {
		searcher := &stubSearcher{report: &ranking.Report{
			Query:      "login error",
			Categories: []string{"authentication", "error"},
			Results: []ranking.Result{{
				Chunk: domain.Chunk{
					ID:   "chunk-1",
					Text: "Reset the password to fix login errors.",
					Metadata: domain.Metadata{
						Source:  domain.KindProductDoc,
						ID:      "KB-001",
						Product: &domain.ProductDocFields{Version: "2.1"},
					},
				},
				Score:      0.8,
				Components: ranking.Components{Semantic: 1, Keyword: 0.5, Priority: 1, Recency: 0.2, Boost: 1},
			}},
		}}

		rec := doSearch(t, searcher, `{"query":"login error","version":"2.1","k":3}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, service.SearchRequest{Query: "login error", Version: "2.1", K: 3}, searcher.captured)

		var resp httpapi.SearchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, []string{"authentication", "error"}, resp.Categories)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "chunk-1", resp.Results[0].ID)
		assert.Equal(t, 0.8, resp.Results[0].Score)
		assert.Equal(t, 0.5, resp.Results[0].Components.Keyword)
		assert.Equal(t, "KB-001", resp.Results[0].Metadata.ID)
		assert.Equal(t, "2.1", resp.Results[0].Metadata.Product.Version)
	})

	t.Run("ShouldEncodeEmptyListsAsArrays", func(t *testing.T) {
		rec := doSearch(t, &stubSearcher{report: &ranking.Report{}}, `{"query":"anything"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"categories":[]`)
		assert.Contains(t, rec.Body.String(), `"results":[]`)
	})

	t.Run("ShouldRejectMalformedBody", func(t *testing.T) {
		rec := doSearch(t, &stubSearcher{}, `{"query":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("ShouldRejectNegativeK", func(t *testing.T) {
		rec := doSearch(t, &stubSearcher{}, `{"query":"sync","k":-1}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("ShouldMapErrorsToStatus", func(t *testing.T) {
		tests := []struct {
			name string
			err  error
			want int
		}{
			{"EmptyQuery", ranking.ErrEmptyQuery, http.StatusBadRequest},
			{"RetrievalFailed", fmt.Errorf("%w after 3 attempts: timeout", retrieval.ErrRetrievalFailed), http.StatusBadGateway},
			{"Unexpected", errors.New("boom"), http.StatusInternalServerError},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := doSearch(t, &stubSearcher{err: tt.err}, `{"query":"sync"}`)
				assert.Equal(t, tt.want, rec.Code)
				assert.Contains(t, rec.Body.String(), `"error"`)
			})
		}
	})
}

func TestNewServer(t *testing.T) {
	m := metrics.New()
	m.RecordSearch("ok", 0.01, 4, false, false)
	e := httpapi.NewServer(httpapi.NewHandler(&stubSearcher{report: &ranking.Report{}}, logger.Discard()), m.Registry)

	t.Run("ShouldServeHealth", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("ShouldServeMetrics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `supportrag_search_total{status="ok"} 1`)
	})

	t.Run("ShouldRouteSearch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewBufferString(`{"query":"sync"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
