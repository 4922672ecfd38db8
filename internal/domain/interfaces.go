package domain

import "context"

// Match is a chunk returned by a vector store together with its similarity.
type Match struct {
	Chunk Chunk
	Score float64
}

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder is implemented by embedders that can embed many texts in one
// call. Vectors are returned in input order.
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Split(document Document) ([]Chunk, error)
}

// VectorStore persists vectors and supports similarity search.
type VectorStore interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []Chunk, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, topK int) ([]Match, error)
	Clear(ctx context.Context) error
}

// CandidateSource returns up to k chunks ordered by descending semantic closeness
// to the query. Returning fewer than k results is valid.
type CandidateSource interface {
	Fetch(ctx context.Context, query string, k int) ([]Chunk, error)
}

// CandidateSourceFunc adapts a plain function to CandidateSource.
type CandidateSourceFunc func(ctx context.Context, query string, k int) ([]Chunk, error)

// Fetch calls f(ctx, query, k).
func (f CandidateSourceFunc) Fetch(ctx context.Context, query string, k int) ([]Chunk, error) {
	return f(ctx, query, k)
}
