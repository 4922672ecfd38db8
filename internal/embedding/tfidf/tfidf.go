package tfidf

import (
	"context"
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrNotPrepared is returned by Embed before Prepare has succeeded.
	ErrNotPrepared = errors.New("tfidf embedder not prepared")
	// ErrEmptyCorpus is returned by Prepare when no indexable terms are found.
	ErrEmptyCorpus = errors.New("no tokens found in corpus")
)

var tokenPattern = regexp.MustCompile(`\p{L}[\p{L}\p{N}]*(?:['’.]\p{L}[\p{L}\p{N}]*)*|\p{N}+(?:\.\p{N}+)*`)

// vocabulary is an immutable snapshot built by Prepare.
type vocabulary struct {
	index map[string]int
	idf   []float64
}

// Embedder implements a simple TF-IDF vectorizer. Prepare swaps in a new
// vocabulary; Embed may run concurrently with other Embed calls.
type Embedder struct {
	mu        sync.RWMutex
	vocab     *vocabulary
	stopwords map[string]struct{}
}

// NewEmbedder creates an unprepared TF-IDF embedder.
func NewEmbedder() *Embedder {
	return &Embedder{stopwords: defaultStopwords()}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "tfidf" }

// Prepare builds the vocabulary and IDF values from the provided corpus.
func (e *Embedder) Prepare(corpus []string) error {
	if len(corpus) == 0 {
		return ErrEmptyCorpus
	}
	df := make(map[string]int)
	for _, text := range corpus {
		seen := make(map[string]struct{})
		for _, tok := range e.tokenize(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	if len(df) == 0 {
		return ErrEmptyCorpus
	}
	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	v := &vocabulary{
		index: make(map[string]int, len(terms)),
		idf:   make([]float64, len(terms)),
	}
	n := float64(len(corpus))
	for i, term := range terms {
		v.index[term] = i
		// smoothed idf
		v.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}

	e.mu.Lock()
	e.vocab = v
	e.mu.Unlock()
	return nil
}

// Dimension returns the vocabulary size, or 0 before Prepare.
func (e *Embedder) Dimension() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.vocab == nil {
		return 0
	}
	return len(e.vocab.idf)
}

// Embed computes the L2-normalized TF-IDF vector of text. Text with no known
// terms yields the zero vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	v := e.vocab
	e.mu.RUnlock()
	if v == nil {
		return nil, ErrNotPrepared
	}

	tf := make(map[int]int)
	total := 0
	for _, tok := range e.tokenize(text) {
		if idx, ok := v.index[tok]; ok {
			tf[idx]++
			total++
		}
	}
	vec := make([]float32, len(v.idf))
	if total == 0 {
		return vec, nil
	}
	weights := make(map[int]float64, len(tf))
	norm := 0.0
	for idx, count := range tf {
		w := float64(count) / float64(total) * v.idf[idx]
		weights[idx] = w
		norm += w * w
	}
	norm = math.Sqrt(norm)
	for idx, w := range weights {
		vec[idx] = float32(w / norm)
	}
	return vec, nil
}

func (e *Embedder) tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		t = strings.TrimRight(t, ".")
		if _, isStop := e.stopwords[t]; isStop || t == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "should", "now", "i", "my", "your", "do", "does", "how",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
