package ranking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"supportrag/internal/domain"
)

// ErrEmptyQuery is returned when the query has no non-whitespace text.
var ErrEmptyQuery = errors.New("query is required")

// Components are the per-candidate signals behind a final score. Semantic and
// Keyword are reported after negation handling and the category boost.
type Components struct {
	Semantic float64 `json:"semantic"`
	Keyword  float64 `json:"keyword"`
	Priority float64 `json:"priority"`
	Recency  float64 `json:"recency"`
	Boost    float64 `json:"boost"`
}

// Result is one ranked chunk.
type Result struct {
	Chunk      domain.Chunk `json:"chunk"`
	Score      float64      `json:"score"`
	Components Components   `json:"components"`
}

// Report is the outcome of one search.
type Report struct {
	Query      string   `json:"query"`
	Categories []string `json:"categories"`
	Negated    bool     `json:"negated"`
	// Candidates is how many chunks the source returned.
	Candidates int `json:"candidates"`
	// VersionFallback is set when no candidate matched the requested version.
	VersionFallback bool     `json:"version_fallback"`
	Results         []Result `json:"results"`
}

// SearchOptions narrows a single search.
type SearchOptions struct {
	// Version keeps only candidates of this version when any match.
	Version string
	// K is the number of results; zero means Config.FinalResultsK.
	K int
}

// Engine re-ranks semantically retrieved candidates. It holds no per-query
// state and is safe for concurrent use.
type Engine struct {
	cfg         Config
	analyzer    *queryAnalyzer
	strategy    NegationStrategy
	maxPriority float64
	now         func() time.Time
	logger      *slog.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock sets the time source used for recency scoring.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithNegationStrategy overrides the strategy named in the config.
func WithNegationStrategy(s NegationStrategy) Option {
	return func(e *Engine) { e.strategy = s }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine validates cfg and compiles its pattern tables.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	analyzer, err := newQueryAnalyzer(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	strategy, err := StrategyByName(cfg.NegationStrategy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	e := &Engine{
		cfg:         cfg,
		analyzer:    analyzer,
		strategy:    strategy,
		maxPriority: cfg.maxPriority(),
		now:         time.Now,
		logger:      slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search fetches RerankTopK candidates for query from source and re-ranks them.
// An empty candidate set yields an empty report, not an error.
func (e *Engine) Search(ctx context.Context, query string, source domain.CandidateSource, opts SearchOptions) (*Report, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	candidates, err := source.Fetch(ctx, query, e.cfg.RerankTopK)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.Rerank(query, candidates, opts), nil
}

// Rerank scores an already retrieved, similarity-ordered candidate list.
func (e *Engine) Rerank(query string, candidates []domain.Chunk, opts SearchOptions) *Report {
	start := time.Now()
	profile := e.analyzer.analyze(query)
	report := &Report{
		Query:      query,
		Categories: profile.sortedCategories(),
		Negated:    profile.negated,
		Candidates: len(candidates),
		Results:    []Result{},
	}

	pool := candidates
	if opts.Version != "" {
		pool = filterByVersion(candidates, opts.Version)
		if len(pool) == 0 {
			pool = candidates
			report.VersionFallback = len(candidates) > 0
		}
	}

	// Boosts live in a side table parallel to pool and never touch the chunk.
	boosts := make([]float64, len(pool))
	for i, c := range pool {
		boosts[i] = categoryBoost(e.cfg.CategoryBoostStep, profile.categories, c.Metadata)
	}

	now := e.now()
	results := make([]Result, 0, len(pool))
	for rank, c := range pool {
		semantic := semanticScore(rank, len(pool))
		keyword := keywordScore(profile.ngrams, c.Text)
		if profile.negated {
			semantic, keyword = e.strategy.Apply(semantic, keyword)
		}
		boost := boosts[rank]
		comp := Components{
			Semantic: semantic * boost,
			Keyword:  keyword * boost,
			Priority: priorityScore(e.cfg.DocTypePriorities, e.maxPriority, c.Metadata),
			Recency:  recencyScore(e.cfg.Recency, now, c.Metadata),
			Boost:    boost,
		}
		results = append(results, Result{Chunk: c, Score: e.finalScore(comp), Components: comp})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	k := opts.K
	if k <= 0 {
		k = e.cfg.FinalResultsK
	}
	if k < len(results) {
		results = results[:k]
	}
	report.Results = results

	e.logger.Debug("rerank_completed",
		slog.Int("candidate_count", len(candidates)),
		slog.Int("scored_count", len(pool)),
		slog.Int("result_count", len(results)),
		slog.Any("categories", report.Categories),
		slog.Bool("negated", report.Negated),
		slog.Bool("version_fallback", report.VersionFallback),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return report
}

func (e *Engine) finalScore(c Components) float64 {
	w := e.cfg.Weights
	return c.Semantic*w.Semantic + c.Keyword*w.Keyword + c.Priority*w.Priority + c.Recency*w.Recency
}

func filterByVersion(candidates []domain.Chunk, version string) []domain.Chunk {
	var out []domain.Chunk
	for _, c := range candidates {
		if v := domain.EffectiveVersion(c.Metadata); v != "" && v == version {
			out = append(out, c)
		}
	}
	return out
}
