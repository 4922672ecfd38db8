package retrieval

import (
	"context"
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"supportrag/internal/domain"
)

var wordPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+(?:\.\p{N}+)*`)

// LexicalSource ranks indexed chunks by the Ochiai coefficient between query
// and chunk word sets. It serves queries the embedder has no vocabulary for.
type LexicalSource struct {
	mu     sync.RWMutex
	chunks []domain.Chunk
	words  []map[string]struct{}
}

func NewLexicalSource() *LexicalSource { return &LexicalSource{} }

// Index replaces the searchable chunk set.
func (l *LexicalSource) Index(chunks []domain.Chunk) {
	words := make([]map[string]struct{}, len(chunks))
	for i, c := range chunks {
		words[i] = wordSet(c.Text)
	}
	l.mu.Lock()
	l.chunks = append([]domain.Chunk(nil), chunks...)
	l.words = words
	l.mu.Unlock()
}

func (l *LexicalSource) Fetch(ctx context.Context, query string, k int) ([]domain.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := wordSet(query)
	l.mu.RLock()
	defer l.mu.RUnlock()

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, 0, len(l.chunks))
	for i, words := range l.words {
		if s := ochiai(q, words); s > 0 {
			scores = append(scores, scored{i, s})
		}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if k > 0 && k < len(scores) {
		scores = scores[:k]
	}
	out := make([]domain.Chunk, len(scores))
	for i, s := range scores {
		out[i] = l.chunks[s.idx]
	}
	return out, nil
}

// ochiai is |A∩B| / sqrt(|A||B|).
func ochiai(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(a))*float64(len(b)))
}

func wordSet(text string) map[string]struct{} {
	tokens := wordPattern.FindAllString(strings.ToLower(text), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// Fallback tries primary and switches to secondary when primary reports no
// semantic signal. Any other error is returned as is.
type Fallback struct {
	Primary   domain.CandidateSource
	Secondary domain.CandidateSource
}

func (f Fallback) Fetch(ctx context.Context, query string, k int) ([]domain.Chunk, error) {
	chunks, err := f.Primary.Fetch(ctx, query, k)
	if errors.Is(err, ErrNoSignal) && f.Secondary != nil {
		return f.Secondary.Fetch(ctx, query, k)
	}
	return chunks, err
}
