package ranking

import "fmt"

const (
	StrategyInvert = "invert"
	StrategyNone   = "none"
)

// NegationStrategy adjusts the semantic and keyword scores of a candidate when
// the query contains a negation cue. It is only consulted for negated queries.
type NegationStrategy interface {
	Name() string
	Apply(semantic, keyword float64) (float64, float64)
}

// InvertStrategy flips both scores so that content unlike the positive phrasing
// of the query rises.
type InvertStrategy struct{}

func (InvertStrategy) Name() string { return StrategyInvert }

func (InvertStrategy) Apply(semantic, keyword float64) (float64, float64) {
	return 1 - semantic, 1 - keyword
}

// NoopStrategy leaves scores untouched.
type NoopStrategy struct{}

func (NoopStrategy) Name() string { return StrategyNone }

func (NoopStrategy) Apply(semantic, keyword float64) (float64, float64) {
	return semantic, keyword
}

// StrategyByName resolves a configured strategy. The empty name means invert.
func StrategyByName(name string) (NegationStrategy, error) {
	switch name {
	case StrategyInvert, "":
		return InvertStrategy{}, nil
	case StrategyNone:
		return NoopStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown negation strategy: %s", name)
	}
}
