package knn

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")
	// ErrEmptyQuery is returned for a zero-length query vector.
	ErrEmptyQuery = errors.New("query vector is empty")
	// ErrNonFiniteQuery is returned when the query holds a NaN or infinite component.
	ErrNonFiniteQuery = errors.New("query vector has non-finite components")
	// ErrUnknownMetric is returned for metrics other than cosine, dot and euclidean.
	ErrUnknownMetric = errors.New("unknown metric")
	// ErrUnknownLoadStrategy is returned for strategies other than load_all and streaming.
	ErrUnknownLoadStrategy = errors.New("unknown load strategy")
)

// CorpusLoadError reports a missing or malformed corpus.
//
// The underlying error can be accessed via errors.Unwrap.
type CorpusLoadError struct {
	Path string
	Err  error
}

func (e *CorpusLoadError) Error() string {
	return fmt.Sprintf("failed to load corpus %s: %v", e.Path, e.Err)
}

func (e *CorpusLoadError) Unwrap() error { return e.Err }

// DimensionMismatchError indicates a query/corpus dimensionality mismatch.
type DimensionMismatchError struct {
	DocID    string
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: query has %d dimensions, %s has %d", e.Expected, e.DocID, e.Actual)
}
