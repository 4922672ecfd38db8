package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportrag/internal/domain"
)

func TestConfigValidate(t *testing.T) {
	t.Run("ShouldAcceptDefaults", func(t *testing.T) {
		require.NoError(t, DefaultConfig().Validate())
	})

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"ShouldRejectZeroRerankTopK", func(c *Config) { c.RerankTopK = 0 }},
		{"ShouldRejectZeroFinalResultsK", func(c *Config) { c.FinalResultsK = 0 }},
		{"ShouldRejectRerankSmallerThanFinal", func(c *Config) { c.RerankTopK = 3; c.FinalResultsK = 5 }},
		{"ShouldRejectNegativeWeight", func(c *Config) {
			c.Weights = Weights{Semantic: 0.8, Keyword: 0.3, Priority: -0.2, Recency: 0.1}
		}},
		{"ShouldRejectWeightsNotSummingToOne", func(c *Config) { c.Weights.Semantic = 0.5 }},
		{"ShouldRejectNegativeRecentDays", func(c *Config) { c.Recency.RecentDays = -1 }},
		{"ShouldRejectMaxAgeNotAfterRecent", func(c *Config) { c.Recency.MaxAgeDays = 30 }},
		{"ShouldRejectInvalidNGramRange", func(c *Config) { c.Keyword = KeywordConfig{MinNGram: 2, MaxNGram: 1} }},
		{"ShouldRejectEmptyPriorities", func(c *Config) { c.DocTypePriorities = nil }},
		{"ShouldRejectAllZeroPriorities", func(c *Config) {
			c.DocTypePriorities = map[domain.EffectiveType]float64{domain.TypeProductDoc: 0}
		}},
		{"ShouldRejectNegativeBoostStep", func(c *Config) { c.CategoryBoostStep = -0.1 }},
		{"ShouldRejectBadQueryPattern", func(c *Config) {
			c.QueryPatterns = map[string][]string{"broken": {`(unclosed`}}
		}},
		{"ShouldRejectBadNegationPattern", func(c *Config) { c.NegationPatterns = []string{`[`} }},
		{"ShouldRejectUnknownStrategy", func(c *Config) { c.NegationStrategy = "reverse" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)

			_, err = NewEngine(cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestStrategyByName(t *testing.T) {
	s, err := StrategyByName("")
	require.NoError(t, err)
	assert.Equal(t, StrategyInvert, s.Name())

	s, err = StrategyByName(StrategyNone)
	require.NoError(t, err)
	sem, kw := s.Apply(0.7, 0.2)
	assert.Equal(t, 0.7, sem)
	assert.Equal(t, 0.2, kw)

	sem, kw = InvertStrategy{}.Apply(0.75, 0.25)
	assert.Equal(t, 0.25, sem)
	assert.Equal(t, 0.75, kw)

	_, err = StrategyByName("clamp")
	assert.Error(t, err)
}
