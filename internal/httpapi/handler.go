package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"supportrag/internal/domain"
	"supportrag/internal/ranking"
	"supportrag/internal/retrieval"
	"supportrag/internal/service"
)

// Searcher runs a ranked search.
type Searcher interface {
	Search(ctx context.Context, req service.SearchRequest) (*ranking.Report, error)
}

// SearchRequest is the body of POST /v1/search.
type SearchRequest struct {
	Query   string `json:"query"`
	Version string `json:"version,omitempty"`
	K       int    `json:"k,omitempty"`
}

// SearchResult is one ranked chunk in a search response.
type SearchResult struct {
	ID         string             `json:"id"`
	Text       string             `json:"text"`
	Score      float64            `json:"score"`
	Components ranking.Components `json:"components"`
	Metadata   domain.Metadata    `json:"metadata"`
}

// SearchResponse is the body returned by POST /v1/search.
type SearchResponse struct {
	Categories      []string       `json:"categories"`
	Negated         bool           `json:"negated"`
	VersionFallback bool           `json:"version_fallback"`
	Results         []SearchResult `json:"results"`
}

type Handler struct {
	searcher Searcher
	logger   *slog.Logger
}

func NewHandler(searcher Searcher, logger *slog.Logger) *Handler {
	return &Handler{searcher: searcher, logger: logger}
}

// Search ranks the corpus for a query.
// (POST /v1/search)
func (h *Handler) Search(ctx echo.Context) error {
	var req SearchRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if req.K < 0 {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "k must be non-negative"})
	}

	report, err := h.searcher.Search(ctx.Request().Context(), service.SearchRequest{
		Query:   req.Query,
		Version: req.Version,
		K:       req.K,
	})
	if err != nil {
		switch {
		case errors.Is(err, ranking.ErrEmptyQuery):
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, retrieval.ErrRetrievalFailed):
			h.logger.Error("search retrieval failed", "error", err)
			return ctx.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
		default:
			h.logger.Error("search failed", "error", err)
			return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
	}

	categories := report.Categories
	if categories == nil {
		categories = []string{}
	}
	results := make([]SearchResult, 0, len(report.Results))
	for _, r := range report.Results {
		results = append(results, SearchResult{
			ID:         r.Chunk.ID,
			Text:       r.Chunk.Text,
			Score:      r.Score,
			Components: r.Components,
			Metadata:   r.Chunk.Metadata,
		})
	}
	return ctx.JSON(http.StatusOK, SearchResponse{
		Categories:      categories,
		Negated:         report.Negated,
		VersionFallback: report.VersionFallback,
		Results:         results,
	})
}

// Health reports liveness.
// (GET /healthz)
func (h *Handler) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// NewServer registers the API routes on a fresh echo instance. Metrics are
// served from reg when it is non-nil.
func NewServer(handler *Handler, reg *prometheus.Registry) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	e.POST("/v1/search", handler.Search)
	e.GET("/healthz", handler.Health)
	if reg != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}
	return e
}
