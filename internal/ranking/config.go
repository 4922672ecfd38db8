package ranking

import (
	"errors"
	"fmt"
	"math"
	"regexp"

	"supportrag/internal/domain"
)

// ErrInvalidConfig is returned when ranking configuration is structurally invalid.
var ErrInvalidConfig = errors.New("invalid ranking config")

// Weights blends the four component scores into the final score.
type Weights struct {
	Semantic float64 `yaml:"semantic"`
	Keyword  float64 `yaml:"keyword"`
	Priority float64 `yaml:"priority"`
	Recency  float64 `yaml:"recency"`
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Semantic + w.Keyword + w.Priority + w.Recency
}

// RecencyConfig sets the linear decay window, in days.
type RecencyConfig struct {
	// RecentDays is the age at or below which a document scores 1.0.
	RecentDays int `yaml:"recent_days"`
	// MaxAgeDays is the age at or above which a document scores 0.0.
	MaxAgeDays int `yaml:"max_age_days"`
}

// KeywordConfig sets the query n-gram range used for keyword overlap.
type KeywordConfig struct {
	MinNGram int `yaml:"min_ngram"`
	MaxNGram int `yaml:"max_ngram"`
}

// Config holds every tunable of the ranking engine. It is treated as immutable
// once passed to NewEngine.
type Config struct {
	// RerankTopK is how many candidates are fetched from semantic search.
	RerankTopK int `yaml:"rerank_top_k"`
	// FinalResultsK is the default number of results returned.
	FinalResultsK int `yaml:"final_results_k"`

	Weights Weights       `yaml:"weights"`
	Recency RecencyConfig `yaml:"recency"`
	Keyword KeywordConfig `yaml:"keyword"`

	DocTypePriorities map[domain.EffectiveType]float64 `yaml:"doc_type_priorities"`
	QueryPatterns     map[string][]string              `yaml:"query_patterns"`
	NegationPatterns  []string                         `yaml:"negation_patterns"`

	// CategoryBoostStep is added to the boost multiplier per overlapping category.
	CategoryBoostStep float64 `yaml:"category_boost_step"`
	// NegationStrategy selects how negated queries adjust scores ("invert" or "none").
	NegationStrategy string `yaml:"negation_strategy"`
}

// DefaultConfig returns the tuning used for the CloudSync support corpus.
func DefaultConfig() Config {
	return Config{
		RerankTopK:    20,
		FinalResultsK: 5,
		Weights: Weights{
			Semantic: 0.4,
			Keyword:  0.3,
			Priority: 0.2,
			Recency:  0.1,
		},
		Recency: RecencyConfig{RecentDays: 30, MaxAgeDays: 365},
		Keyword: KeywordConfig{MinNGram: 1, MaxNGram: 3},
		DocTypePriorities: map[domain.EffectiveType]float64{
			domain.TypeProductDoc:     3,
			domain.TypeResolvedTicket: 2,
			domain.TypePendingTicket:  1,
		},
		QueryPatterns: map[string][]string{
			"authentication":  {`login`, `sign[- ]?in`, `auth(?:entication)?`, `credentials?`},
			"synchronization": {`sync(?:hronization)?(?:ing)?`, `data[- ]sync`, `file[- ]sync`},
			"error":           {`error`, `issue`, `problem`, `fail(?:ure|ed|ing)?`},
		},
		NegationPatterns: []string{
			`not`, `n't`, `cannot`, `can't`, `won't`, `isn't`, `doesn't`, `didn't`, `never`, `no`,
		},
		CategoryBoostStep: 0.2,
		NegationStrategy:  StrategyInvert,
	}
}

// Validate checks the configuration once, at startup, so per-query scoring
// never has to.
func (c Config) Validate() error {
	if c.RerankTopK <= 0 {
		return fmt.Errorf("%w: rerank_top_k must be positive, got %d", ErrInvalidConfig, c.RerankTopK)
	}
	if c.FinalResultsK <= 0 {
		return fmt.Errorf("%w: final_results_k must be positive, got %d", ErrInvalidConfig, c.FinalResultsK)
	}
	if c.RerankTopK < c.FinalResultsK {
		return fmt.Errorf("%w: rerank_top_k (%d) must not be smaller than final_results_k (%d)",
			ErrInvalidConfig, c.RerankTopK, c.FinalResultsK)
	}
	for name, w := range map[string]float64{
		"semantic": c.Weights.Semantic,
		"keyword":  c.Weights.Keyword,
		"priority": c.Weights.Priority,
		"recency":  c.Weights.Recency,
	} {
		if w < 0 || math.IsNaN(w) {
			return fmt.Errorf("%w: %s weight must be non-negative, got %f", ErrInvalidConfig, name, w)
		}
	}
	if sum := c.Weights.Sum(); math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("%w: weights must sum to 1.0, got %f", ErrInvalidConfig, sum)
	}
	if c.Recency.RecentDays < 0 {
		return fmt.Errorf("%w: recent_days must be non-negative, got %d", ErrInvalidConfig, c.Recency.RecentDays)
	}
	if c.Recency.MaxAgeDays <= c.Recency.RecentDays {
		return fmt.Errorf("%w: max_age_days (%d) must exceed recent_days (%d)",
			ErrInvalidConfig, c.Recency.MaxAgeDays, c.Recency.RecentDays)
	}
	if c.Keyword.MinNGram < 1 || c.Keyword.MaxNGram < c.Keyword.MinNGram {
		return fmt.Errorf("%w: invalid n-gram range [%d, %d]", ErrInvalidConfig, c.Keyword.MinNGram, c.Keyword.MaxNGram)
	}
	if len(c.DocTypePriorities) == 0 {
		return fmt.Errorf("%w: doc_type_priorities is empty", ErrInvalidConfig)
	}
	maxPriority := 0.0
	for t, p := range c.DocTypePriorities {
		if p < 0 {
			return fmt.Errorf("%w: priority for %s must be non-negative, got %f", ErrInvalidConfig, t, p)
		}
		maxPriority = math.Max(maxPriority, p)
	}
	if maxPriority == 0 {
		return fmt.Errorf("%w: at least one doc type priority must be positive", ErrInvalidConfig)
	}
	if c.CategoryBoostStep < 0 {
		return fmt.Errorf("%w: category_boost_step must be non-negative, got %f", ErrInvalidConfig, c.CategoryBoostStep)
	}
	for category, patterns := range c.QueryPatterns {
		for _, p := range patterns {
			if _, err := regexp.Compile(p); err != nil {
				return fmt.Errorf("%w: query pattern %q for %s: %v", ErrInvalidConfig, p, category, err)
			}
		}
	}
	for _, p := range c.NegationPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("%w: negation pattern %q: %v", ErrInvalidConfig, p, err)
		}
	}
	if _, err := StrategyByName(c.NegationStrategy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) maxPriority() float64 {
	m := 0.0
	for _, p := range c.DocTypePriorities {
		m = math.Max(m, p)
	}
	return m
}
