package ranking

import (
	"regexp"
	"sort"
	"strings"
)

type category struct {
	name     string
	patterns []*regexp.Regexp
}

// queryAnalyzer holds the compiled classification and negation tables.
type queryAnalyzer struct {
	categories []category
	negations  []*regexp.Regexp
	minNGram   int
	maxNGram   int
}

// queryProfile is everything the engine derives from the query text alone.
type queryProfile struct {
	categories map[string]struct{}
	negated    bool
	ngrams     []string
}

func newQueryAnalyzer(cfg Config) (*queryAnalyzer, error) {
	names := make([]string, 0, len(cfg.QueryPatterns))
	for name := range cfg.QueryPatterns {
		names = append(names, name)
	}
	sort.Strings(names)

	a := &queryAnalyzer{minNGram: cfg.Keyword.MinNGram, maxNGram: cfg.Keyword.MaxNGram}
	for _, name := range names {
		c := category{name: name}
		for _, p := range cfg.QueryPatterns[name] {
			re, err := regexp.Compile(`(?i)` + p)
			if err != nil {
				return nil, err
			}
			c.patterns = append(c.patterns, re)
		}
		a.categories = append(a.categories, c)
	}
	for _, p := range cfg.NegationPatterns {
		re, err := regexp.Compile(`(?i)\b(?:` + p + `)\b`)
		if err != nil {
			return nil, err
		}
		a.negations = append(a.negations, re)
	}
	return a, nil
}

func (a *queryAnalyzer) analyze(query string) queryProfile {
	return queryProfile{
		categories: a.classify(query),
		negated:    a.hasNegation(query),
		ngrams:     ngrams(query, a.minNGram, a.maxNGram),
	}
}

// classify returns every category with at least one matching pattern.
func (a *queryAnalyzer) classify(query string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, c := range a.categories {
		for _, re := range c.patterns {
			if re.MatchString(query) {
				out[c.name] = struct{}{}
				break
			}
		}
	}
	return out
}

func (a *queryAnalyzer) hasNegation(query string) bool {
	for _, re := range a.negations {
		if re.MatchString(query) {
			return true
		}
	}
	return false
}

// ngrams lists the lower-cased word n-grams of query for n in [minN, maxN].
func ngrams(query string, minN, maxN int) []string {
	terms := strings.Fields(strings.ToLower(query))
	var out []string
	for n := minN; n <= maxN; n++ {
		for i := 0; i+n <= len(terms); i++ {
			out = append(out, strings.Join(terms[i:i+n], " "))
		}
	}
	return out
}

func (p queryProfile) sortedCategories() []string {
	out := make([]string, 0, len(p.categories))
	for c := range p.categories {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
