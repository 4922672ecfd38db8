package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"supportrag/internal/domain"
)

// Separators are tried in order; the splitter breaks at the largest boundary
// that still keeps a piece within the size budget.
var Separators = []string{"\n\n", "\n", ". ", " ", ""}

// StructuralChunker splits documents into overlapping chunks while keeping
// numbered lists, step sequences and headed sections in one piece.
type StructuralChunker struct {
	size    int
	overlap int
	base    textsplitter.TextSplitter
	wide    textsplitter.TextSplitter
}

// NewStructuralChunker validates the size budget and builds the base splitters.
func NewStructuralChunker(size, overlap int) (*StructuralChunker, error) {
	if size <= 0 {
		return nil, errors.New("chunker: size must be greater than zero")
	}
	if overlap < 0 {
		return nil, errors.New("chunker: overlap cannot be negative")
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunker: overlap %d must be smaller than size %d", overlap, size)
	}
	return &StructuralChunker{
		size:    size,
		overlap: overlap,
		base:    newRecursive(size, overlap),
		wide:    newRecursive(size*2, overlap*2),
	}, nil
}

func newRecursive(size, overlap int) textsplitter.TextSplitter {
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithSeparators(Separators),
	)
}

// Split chunks a single document. The output is deterministic for a given
// document and size configuration.
func (c *StructuralChunker) Split(document domain.Document) ([]domain.Chunk, error) {
	texts, err := c.SplitText(document.Text)
	if err != nil {
		return nil, fmt.Errorf("chunker: split document %s: %w", document.Metadata.ID, err)
	}
	return domain.NewChunks(document, texts), nil
}

// SplitText returns the chunk texts for text in document order.
func (c *StructuralChunker) SplitText(text string) ([]string, error) {
	regions := MergeRegions(text, FindRegions(text))

	var (
		out  []string
		last int
		err  error
	)
	for _, region := range regions {
		if last < region.Start {
			if out, err = appendSplit(out, c.base, text[last:region.Start]); err != nil {
				return nil, err
			}
		}
		if utf8.RuneCountInString(region.Content) > c.size*2 {
			if out, err = appendSplit(out, c.wide, region.Content); err != nil {
				return nil, err
			}
		} else if trimmed := strings.TrimSpace(region.Content); trimmed != "" {
			out = append(out, trimmed)
		}
		last = region.End
	}
	if last < len(text) {
		if out, err = appendSplit(out, c.base, text[last:]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func appendSplit(out []string, splitter textsplitter.TextSplitter, segment string) ([]string, error) {
	if strings.TrimSpace(segment) == "" {
		return out, nil
	}
	pieces, err := splitter.SplitText(segment)
	if err != nil {
		return nil, err
	}
	for _, piece := range pieces {
		if piece = strings.TrimSpace(piece); piece != "" {
			out = append(out, piece)
		}
	}
	return out, nil
}
