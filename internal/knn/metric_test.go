package knn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetric(t *testing.T) {
	tests := []struct {
		in   string
		want Metric
	}{
		{"cosine", MetricCosine},
		{"DOT", MetricDot},
		{"inner_product", MetricDot},
		{"euclidean", MetricEuclidean},
		{" l2 ", MetricEuclidean},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMetric(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseMetric("manhattan")
	assert.ErrorIs(t, err, ErrUnknownMetric)
}

func TestMetricText(t *testing.T) {
	text, err := MetricEuclidean.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "euclidean", string(text))

	var m Metric
	require.NoError(t, m.UnmarshalText([]byte("dot")))
	assert.Equal(t, MetricDot, m)

	_, err = Metric(42).MarshalText()
	assert.ErrorIs(t, err, ErrUnknownMetric)
	assert.Equal(t, "Unknown(42)", Metric(42).String())
}

func TestParseLoadStrategy(t *testing.T) {
	for in, want := range map[string]LoadStrategy{
		"load_all":        LoadAll,
		"all":             LoadAll,
		"streaming":       Streaming,
		"streaming-batch": Streaming,
		"streaming_batch": Streaming,
	} {
		got, err := ParseLoadStrategy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLoadStrategy("mmap")
	assert.ErrorIs(t, err, ErrUnknownLoadStrategy)

	var s LoadStrategy
	require.NoError(t, s.UnmarshalText([]byte("streaming")))
	text, err := s.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "streaming", string(text))
}

func TestCosineSimilarityBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 500; i++ {
		dims := 1 + rng.Intn(16)
		a, b := make([]float32, dims), make([]float32, dims)
		for j := range a {
			a[j] = (rng.Float32()*2 - 1) * 1e3
			b[j] = (rng.Float32()*2 - 1) * 1e3
		}
		s := CosineSimilarity(a, b)
		assert.GreaterOrEqual(t, s, -1.0)
		assert.LessOrEqual(t, s, 1.0)
		assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-9)
	}
}

func TestCosineZeroVector(t *testing.T) {
	zero := []float32{0, 0, 0}
	assert.Equal(t, 0.0, CosineSimilarity(zero, []float32{1, 2, 3}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 2, 3}, zero))
	assert.Equal(t, 0.0, CosineSimilarity(zero, zero))
}

func TestScorers(t *testing.T) {
	q := []float32{2, 3, 4}
	d := []float32{5, 3, 2}

	dot, err := newScorer(MetricDot, q)
	require.NoError(t, err)
	assert.Equal(t, 27.0, dot(d))

	euc, err := newScorer(MetricEuclidean, q)
	require.NoError(t, err)
	assert.InDelta(t, -math.Sqrt(13), euc(d), 1e-12)
	assert.Equal(t, 0.0, math.Abs(euc(q)))

	cos, err := newScorer(MetricCosine, q)
	require.NoError(t, err)
	assert.InDelta(t, CosineSimilarity(q, d), cos(d), 1e-12)
}
