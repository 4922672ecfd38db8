package domain

import "errors"

// Errors shared by vector store implementations.
var (
	ErrInvalidDimension  = errors.New("invalid dimension")
	ErrLengthMismatch    = errors.New("chunks and vectors length mismatch")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrNotInitialized    = errors.New("vector store not initialized")
)
