package knn

import (
	"fmt"
	"math"
	"strings"
)

// Metric selects how a corpus entry is scored against the query.
// Higher scores are always more similar.
type Metric int

const (
	// MetricCosine scores dot(a,b)/(|a||b|). A zero-norm vector scores 0.
	MetricCosine Metric = iota
	// MetricDot scores the raw inner product.
	MetricDot
	// MetricEuclidean scores the negated L2 distance.
	MetricEuclidean
)

func (m Metric) String() string {
	switch m {
	case MetricCosine:
		return "cosine"
	case MetricDot:
		return "dot"
	case MetricEuclidean:
		return "euclidean"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// ParseMetric accepts "cosine", "dot" and "euclidean" (plus "l2" and
// "inner_product" as aliases).
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cosine":
		return MetricCosine, nil
	case "dot", "inner_product":
		return MetricDot, nil
	case "euclidean", "l2":
		return MetricEuclidean, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMetric, s)
	}
}

func (m Metric) MarshalText() ([]byte, error) {
	if m < MetricCosine || m > MetricEuclidean {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMetric, int(m))
	}
	return []byte(m.String()), nil
}

func (m *Metric) UnmarshalText(text []byte) error {
	parsed, err := ParseMetric(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Dot returns the inner product, accumulated in float64.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 { return math.Sqrt(Dot(v, v)) }

// CosineSimilarity returns a value in [-1, 1], or 0 when either vector has
// zero norm.
func CosineSimilarity(a, b []float32) float64 {
	return cosine(Dot(a, b), Norm(a), Norm(b))
}

// EuclideanDistance returns the L2 distance between a and b.
func EuclideanDistance(a, b []float32) float64 {
	var s float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		s += d * d
	}
	return math.Sqrt(s)
}

func cosine(dot, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	s := dot / (normA * normB)
	// Rounding can push parallel vectors just past the bounds.
	return math.Max(-1, math.Min(1, s))
}

// scorer binds a metric to a query so per-query work happens once.
type scorer func(vec []float32) float64

func newScorer(m Metric, query []float32) (scorer, error) {
	switch m {
	case MetricCosine:
		qn := Norm(query)
		return func(vec []float32) float64 {
			return cosine(Dot(query, vec), qn, Norm(vec))
		}, nil
	case MetricDot:
		return func(vec []float32) float64 { return Dot(query, vec) }, nil
	case MetricEuclidean:
		return func(vec []float32) float64 { return -EuclideanDistance(query, vec) }, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMetric, int(m))
	}
}
