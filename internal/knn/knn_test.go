package knn

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"embedknn/internal/config"
	"embedknn/internal/corpus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var strategies = []LoadStrategy{LoadAll, Streaming}

func writeCorpus(t *testing.T, name string, records []corpus.Record) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, corpus.WriteAll(path, records))
	return path
}

func newEngine(t *testing.T, path string, batchSize int) *Engine {
	t.Helper()
	e, err := New(config.KNNConfig{BatchSize: batchSize, Parallelism: 2}, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func scenarioCorpus() []corpus.Record {
	return []corpus.Record{
		{DocID: "d1", Embedding: []float32{3, 7, 1}},
		{DocID: "d2", Embedding: []float32{5, 3, 2}},
	}
}

func randomRecords(rng *rand.Rand, n, dims int) []corpus.Record {
	records := make([]corpus.Record, n)
	for i := range records {
		vec := make([]float32, dims)
		for j := range vec {
			vec[j] = rng.Float32()*2 - 1
		}
		records[i] = corpus.Record{DocID: fmt.Sprintf("doc-%03d", i), Embedding: vec}
	}
	return records
}

func TestGetTopKScenario(t *testing.T) {
	path := writeCorpus(t, "corpus.jsonl", scenarioCorpus())
	query := []float32{2, 3, 4}

	tests := []struct {
		metric Metric
		ids    []string
		scores []float64
	}{
		{MetricDot, []string{"d1", "d2"}, []float64{31, 27}},
		{MetricCosine, []string{"d2", "d1"}, []float64{0.8133, 0.7494}},
		{MetricEuclidean, []string{"d2", "d1"}, []float64{-math.Sqrt(13), -math.Sqrt(26)}},
	}
	for _, tt := range tests {
		for _, strategy := range strategies {
			t.Run(tt.metric.String()+"/"+strategy.String(), func(t *testing.T) {
				e := newEngine(t, path, 1)
				res, err := e.GetTopK(context.Background(), query, tt.metric, 2, strategy)
				require.NoError(t, err)

				assert.Equal(t, tt.metric, res.Metric)
				assert.Equal(t, 2, res.K)
				assert.Equal(t, tt.ids, res.DocIDs())
				require.Len(t, res.Scores(), 2)
				for i, want := range tt.scores {
					assert.InDelta(t, want, res.Scores()[i], 1e-4)
				}
			})
		}
	}
}

func TestGetTopKStrategiesAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	records := randomRecords(rng, 57, 8)
	query := randomRecords(rng, 1, 8)[0].Embedding

	for _, name := range []string{"corpus.jsonl", "corpus.jsonl.zst", "corpus.jsonl.lz4", "corpus.db"} {
		path := writeCorpus(t, name, records)
		for _, batch := range []int{1, 5, 56, 57, 1000} {
			e := newEngine(t, path, batch)
			for _, metric := range []Metric{MetricCosine, MetricDot, MetricEuclidean} {
				for _, k := range []int{1, 3, 57, 100} {
					t.Run(fmt.Sprintf("%s/batch=%d/%s/k=%d", name, batch, metric, k), func(t *testing.T) {
						all, err := e.GetTopK(context.Background(), query, metric, k, LoadAll)
						require.NoError(t, err)
						streamed, err := e.GetTopK(context.Background(), query, metric, k, Streaming)
						require.NoError(t, err)

						assert.Equal(t, all.Neighbors, streamed.Neighbors)
						assert.Len(t, all.Neighbors, min(k, len(records)))
						scores := all.Scores()
						for i := 1; i < len(scores); i++ {
							assert.GreaterOrEqual(t, scores[i-1], scores[i])
						}
					})
				}
			}
		}
	}
}

func TestGetTopKTiesKeepInsertionOrder(t *testing.T) {
	records := []corpus.Record{
		{DocID: "c", Embedding: []float32{1, 0}},
		{DocID: "a", Embedding: []float32{1, 0}},
		{DocID: "b", Embedding: []float32{0, 1}},
		{DocID: "d", Embedding: []float32{1, 0}},
	}
	path := writeCorpus(t, "ties.jsonl", records)

	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			e := newEngine(t, path, 1)
			res, err := e.GetTopK(context.Background(), []float32{1, 0}, MetricDot, 2, strategy)
			require.NoError(t, err)
			assert.Equal(t, []string{"c", "a"}, res.DocIDs())

			res, err = e.GetTopK(context.Background(), []float32{1, 0}, MetricDot, 4, strategy)
			require.NoError(t, err)
			assert.Equal(t, []string{"c", "a", "d", "b"}, res.DocIDs())
		})
	}
}

func TestGetTopKKLargerThanCorpus(t *testing.T) {
	path := writeCorpus(t, "corpus.jsonl", scenarioCorpus())
	for _, strategy := range strategies {
		e := newEngine(t, path, 1024)
		res, err := e.GetTopK(context.Background(), []float32{2, 3, 4}, MetricDot, 10, strategy)
		require.NoError(t, err)
		assert.Equal(t, []string{"d1", "d2"}, res.DocIDs())
		assert.Equal(t, 10, res.K)
	}
}

func TestGetTopKEmptyCorpus(t *testing.T) {
	path := writeCorpus(t, "empty.jsonl", nil)
	for _, strategy := range strategies {
		e := newEngine(t, path, 4)
		res, err := e.GetTopK(context.Background(), []float32{1}, MetricCosine, 3, strategy)
		require.NoError(t, err)
		assert.Empty(t, res.Neighbors)
	}
}

func TestGetTopKDimensionMismatch(t *testing.T) {
	// Writers refuse mixed dimensions, so build the file by hand.
	path := filepath.Join(t.TempDir(), "mismatch.jsonl")
	lines := "{\"doc_id\":\"ok\",\"embedding\":[1,2,3]}\n{\"doc_id\":\"short\",\"embedding\":[1,2]}\n"
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			e := newEngine(t, path, 1)
			_, err := e.GetTopK(context.Background(), []float32{1, 2, 3}, MetricCosine, 1, strategy)

			var dimErr *DimensionMismatchError
			require.ErrorAs(t, err, &dimErr)
			assert.Equal(t, "short", dimErr.DocID)
			assert.Equal(t, 3, dimErr.Expected)
			assert.Equal(t, 2, dimErr.Actual)
		})
	}
}

func TestGetTopKCorpusLoadErrors(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "corrupt.jsonl")
	require.NoError(t, os.WriteFile(corrupt, []byte("{\"doc_id\":\"a\",\"embedding\":[1]}\nnot json\n"), 0o644))

	tests := []struct {
		name string
		path string
		is   error
	}{
		{"missing", filepath.Join(dir, "missing.jsonl"), os.ErrNotExist},
		{"corrupt", corrupt, corpus.ErrCorrupt},
	}
	for _, tt := range tests {
		for _, strategy := range strategies {
			t.Run(tt.name+"/"+strategy.String(), func(t *testing.T) {
				e := newEngine(t, tt.path, 1024)
				_, err := e.GetTopK(context.Background(), []float32{1}, MetricDot, 1, strategy)

				var loadErr *CorpusLoadError
				require.ErrorAs(t, err, &loadErr)
				assert.Equal(t, tt.path, loadErr.Path)
				assert.ErrorIs(t, err, tt.is)
			})
		}
	}
}

func TestGetTopKRejectsNonFiniteCorpus(t *testing.T) {
	path := writeCorpus(t, "corpus.db", scenarioCorpus())
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	nan := math.Float32bits(float32(math.NaN()))
	blob := []byte{byte(nan), byte(nan >> 8), byte(nan >> 16), byte(nan >> 24), 0, 0, 0, 0, 0, 0, 0, 0}
	_, err = db.Exec(`INSERT INTO records (doc_id, embedding) VALUES (?, ?)`, "nan", blob)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	for _, strategy := range strategies {
		e := newEngine(t, path, 1)
		_, err := e.GetTopK(context.Background(), []float32{2, 3, 4}, MetricDot, 3, strategy)
		var loadErr *CorpusLoadError
		require.ErrorAs(t, err, &loadErr, strategy.String())
		assert.ErrorIs(t, err, corpus.ErrCorrupt)
	}
}

func TestGetTopKArgumentErrors(t *testing.T) {
	e := newEngine(t, writeCorpus(t, "corpus.jsonl", scenarioCorpus()), 1024)
	ctx := context.Background()

	_, err := e.GetTopK(ctx, []float32{1, 2, 3}, MetricDot, 0, LoadAll)
	assert.ErrorIs(t, err, ErrInvalidK)

	_, err = e.GetTopK(ctx, nil, MetricDot, 1, LoadAll)
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = e.GetTopK(ctx, []float32{1, float32(math.NaN()), 3}, MetricDot, 1, LoadAll)
	assert.ErrorIs(t, err, ErrNonFiniteQuery)

	_, err = e.GetTopK(ctx, []float32{1, float32(math.Inf(1)), 3}, MetricDot, 1, Streaming)
	assert.ErrorIs(t, err, ErrNonFiniteQuery)

	_, err = e.GetTopK(ctx, []float32{1, 2, 3}, Metric(9), 1, LoadAll)
	assert.ErrorIs(t, err, ErrUnknownMetric)

	_, err = e.GetTopK(ctx, []float32{1, 2, 3}, MetricDot, 1, LoadStrategy(9))
	assert.ErrorIs(t, err, ErrUnknownLoadStrategy)
}

func TestGetTopKCancelledContext(t *testing.T) {
	e := newEngine(t, writeCorpus(t, "corpus.jsonl", scenarioCorpus()), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, strategy := range strategies {
		_, err := e.GetTopK(ctx, []float32{1, 2, 3}, MetricDot, 1, strategy)
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestGetTopKZeroVectors(t *testing.T) {
	records := []corpus.Record{
		{DocID: "zero", Embedding: []float32{0, 0}},
		{DocID: "x", Embedding: []float32{1, 0}},
	}
	e := newEngine(t, writeCorpus(t, "zero.jsonl", records), 1024)

	res, err := e.GetTopK(context.Background(), []float32{0, 0}, MetricCosine, 2, Streaming)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, res.Scores())
	assert.Equal(t, []string{"zero", "x"}, res.DocIDs())
}

func TestGetTopKMany(t *testing.T) {
	e := newEngine(t, writeCorpus(t, "corpus.jsonl", scenarioCorpus()), 1)
	queries := [][]float32{{2, 3, 4}, {1, 0, 0}, {0, 1, 0}}

	results, err := e.GetTopKMany(context.Background(), queries, MetricDot, 1, Streaming)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"d1"}, results[0].DocIDs())
	assert.Equal(t, []string{"d2"}, results[1].DocIDs())
	assert.Equal(t, []string{"d1"}, results[2].DocIDs())

	_, err = e.GetTopKMany(context.Background(), [][]float32{{1, 2, 3}, {1}}, MetricDot, 1, LoadAll)
	var dimErr *DimensionMismatchError
	assert.ErrorAs(t, err, &dimErr)
}

func TestSnapshotCacheInvalidation(t *testing.T) {
	path := writeCorpus(t, "corpus.jsonl", scenarioCorpus())
	e, err := New(config.KNNConfig{BatchSize: 16, Cache: true, Parallelism: 1}, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	query := []float32{0, 0, 1}
	res, err := e.GetTopK(context.Background(), query, MetricDot, 1, LoadAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"d2"}, res.DocIDs())

	w, err := corpus.OpenAppend(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(corpus.Record{DocID: "d3", Embedding: []float32{0, 0, 9}}))
	require.NoError(t, w.Close())

	require.Eventually(t, func() bool {
		res, err := e.GetTopK(context.Background(), query, MetricDot, 1, LoadAll)
		return err == nil && len(res.Neighbors) == 1 && res.Neighbors[0].DocID == "d3"
	}, 5*time.Second, 20*time.Millisecond)

	e.Invalidate()
	res, err = e.GetTopK(context.Background(), query, MetricDot, 3, LoadAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"d3", "d2", "d1"}, res.DocIDs())
}

func TestTopKMatchesFullSort(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	cs := make([]candidate, 200)
	for i := range cs {
		// Coarse scores force plenty of ties.
		cs[i] = candidate{seq: i, docID: fmt.Sprint(i), score: float64(rng.Intn(10))}
	}
	cs[17].score = math.NaN()

	for _, k := range []int{1, 10, 199, 200, 500} {
		best := newTopK(k)
		for _, c := range cs {
			best.offer(c)
		}
		want := append([]candidate(nil), cs...)
		rank(want)
		if len(want) > k {
			want = want[:k]
		}
		got := best.sorted()
		require.Len(t, got, len(want))
		for i := range want {
			assert.Equal(t, want[i].seq, got[i].seq, "k=%d rank %d", k, i)
		}
	}
}
