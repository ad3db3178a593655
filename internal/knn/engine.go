// Package knn implements exact k-nearest-neighbour search over a persisted
// corpus of embeddings.
//
// Every metric ranks higher scores first; euclidean scores are negated
// distances. Equal scores keep corpus insertion order, so the load-all and
// streaming strategies return identical results.
package knn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"embedknn/internal/config"
	"embedknn/internal/corpus"
	"embedknn/internal/log"

	"golang.org/x/sync/errgroup"
)

// Neighbor is one ranked corpus entry.
type Neighbor struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// Result holds the ranked neighbours plus the metric and k that produced them.
type Result struct {
	Metric    Metric     `json:"metric"`
	K         int        `json:"k"`
	Neighbors []Neighbor `json:"neighbors"`
}

// DocIDs returns the ranked document identifiers.
func (r *Result) DocIDs() []string {
	ids := make([]string, len(r.Neighbors))
	for i, n := range r.Neighbors {
		ids[i] = n.DocID
	}
	return ids
}

// Scores returns the similarity scores in rank order.
func (r *Result) Scores() []float64 {
	scores := make([]float64, len(r.Neighbors))
	for i, n := range r.Neighbors {
		scores[i] = n.Score
	}
	return scores
}

// Engine answers top-k queries against the corpus at a fixed path. It holds
// no corpus data between calls unless snapshot caching is configured, and is
// safe for concurrent queries as long as nobody writes the corpus meanwhile.
type Engine struct {
	cfg      config.KNNConfig
	path     string
	snapshot *snapshotCache
}

// New creates an engine for the corpus at corpusPath. The corpus does not
// need to exist yet.
func New(cfg config.KNNConfig, corpusPath string) (*Engine, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = corpus.DefaultBatchSize
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}

	e := &Engine{cfg: cfg, path: corpusPath}
	if cfg.Cache {
		snap, err := newSnapshotCache(corpusPath)
		if err != nil {
			return nil, err
		}
		e.snapshot = snap
	}
	return e, nil
}

// Path returns the corpus path.
func (e *Engine) Path() string { return e.path }

// Invalidate drops any cached snapshot so the next load-all query rereads
// the corpus.
func (e *Engine) Invalidate() {
	if e.snapshot != nil {
		e.snapshot.invalidate()
	}
}

// Close stops the snapshot watcher, if any.
func (e *Engine) Close() error {
	if e.snapshot != nil {
		return e.snapshot.close()
	}
	return nil
}

// GetTopK returns the k corpus entries most similar to query. If k exceeds
// the corpus size every entry is returned, ranked.
func (e *Engine) GetTopK(ctx context.Context, query []float32, metric Metric, k int, strategy LoadStrategy) (*Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	if len(query) == 0 {
		return nil, ErrEmptyQuery
	}
	for i, f := range query {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return nil, fmt.Errorf("%w: component %d", ErrNonFiniteQuery, i)
		}
	}
	score, err := newScorer(metric, query)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var (
		ranked  []candidate
		scanned int
	)
	switch strategy {
	case LoadAll:
		ranked, scanned, err = e.scoreAll(ctx, query, score, k)
	case Streaming:
		ranked, scanned, err = e.scoreStreaming(ctx, query, score, k)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownLoadStrategy, int(strategy))
	}
	if err != nil {
		return nil, err
	}

	result := &Result{Metric: metric, K: k, Neighbors: make([]Neighbor, len(ranked))}
	for i, c := range ranked {
		result.Neighbors[i] = Neighbor{DocID: c.docID, Score: c.score}
	}

	log.DebugLogger.Printf("knn: %s/%s k=%d scanned %d entries in %s", metric, strategy, k, scanned, time.Since(start))
	return result, nil
}

// GetTopKMany runs GetTopK for each query in parallel. Results are in query order.
func (e *Engine) GetTopKMany(ctx context.Context, queries [][]float32, metric Metric, k int, strategy LoadStrategy) ([]*Result, error) {
	results := make([]*Result, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Parallelism)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			res, err := e.GetTopK(gctx, q, metric, k, strategy)
			if err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// scoreAll loads the whole corpus, checks every dimension, then ranks.
func (e *Engine) scoreAll(ctx context.Context, query []float32, score scorer, k int) ([]candidate, int, error) {
	records, err := e.loadAll()
	if err != nil {
		return nil, 0, err
	}
	for _, rec := range records {
		if err := checkDimensions(query, rec); err != nil {
			return nil, 0, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	all := make([]candidate, len(records))
	for i, rec := range records {
		all[i] = candidate{seq: i, docID: rec.DocID, score: score(rec.Embedding)}
	}
	rank(all)
	if len(all) > k {
		all = all[:k]
	}
	return all, len(records), nil
}

// scoreStreaming reads batch_size records at a time and keeps a heap of k.
func (e *Engine) scoreStreaming(ctx context.Context, query []float32, score scorer, k int) ([]candidate, int, error) {
	r, err := e.open()
	if err != nil {
		return nil, 0, err
	}
	defer r.Close()

	best := newTopK(k)
	seq := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, seq, err
		}
		batch, err := r.NextBatch(e.cfg.BatchSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, seq, &CorpusLoadError{Path: e.path, Err: err}
		}
		for _, rec := range batch {
			if err := checkDimensions(query, rec); err != nil {
				return nil, seq, err
			}
			best.offer(candidate{seq: seq, docID: rec.DocID, score: score(rec.Embedding)})
			seq++
		}
	}
	return best.sorted(), seq, nil
}

func (e *Engine) loadAll() ([]corpus.Record, error) {
	if e.snapshot != nil {
		return e.snapshot.load()
	}
	return readCorpus(e.path)
}

func (e *Engine) open() (corpus.Reader, error) {
	r, err := corpus.Open(e.path)
	if err != nil {
		return nil, &CorpusLoadError{Path: e.path, Err: err}
	}
	return r, nil
}

func readCorpus(path string) ([]corpus.Record, error) {
	records, err := corpus.ReadFile(path)
	if err != nil {
		return nil, &CorpusLoadError{Path: path, Err: err}
	}
	log.DebugLogger.Printf("knn: loaded %d entries from %s", len(records), path)
	return records, nil
}

func checkDimensions(query []float32, rec corpus.Record) error {
	if len(rec.Embedding) != len(query) {
		return &DimensionMismatchError{DocID: rec.DocID, Expected: len(query), Actual: len(rec.Embedding)}
	}
	return nil
}
