// Package service composes an embedding provider, a corpus on disk and the
// KNN engine into the operations exposed by the server and CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"embedknn/internal/config"
	"embedknn/internal/corpus"
	"embedknn/internal/embedder"
	"embedknn/internal/indexer"
	"embedknn/internal/knn"
	"embedknn/internal/log"
)

// ErrEmbeddingUnavailable is returned when the provider yields no embedding.
var ErrEmbeddingUnavailable = errors.New("embedding unavailable")

// SearchService serialises corpus writes against queries. Queries share a
// read lock; adding documents or indexing takes the write lock.
type SearchService struct {
	mu       sync.RWMutex
	provider *embedder.Provider
	engine   *knn.Engine
	builder  *indexer.Builder
	path     string
}

// NewSearchService constructs a SearchService for the corpus the engine reads.
func NewSearchService(provider *embedder.Provider, engine *knn.Engine, cfg *config.Config) *SearchService {
	return &SearchService{
		provider: provider,
		engine:   engine,
		builder:  indexer.NewBuilder(provider, cfg),
		path:     engine.Path(),
	}
}

// CorpusPath returns the corpus the service reads and writes.
func (s *SearchService) CorpusPath() string { return s.path }

// Embed returns the provider embedding for text.
func (s *SearchService) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, ok := s.provider.Embed(ctx, text)
	if !ok {
		return nil, ErrEmbeddingUnavailable
	}
	return vec, nil
}

// Search embeds text and returns its k nearest corpus entries.
func (s *SearchService) Search(ctx context.Context, text string, metric knn.Metric, k int, strategy knn.LoadStrategy) (*knn.Result, error) {
	query, err := s.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.SearchVector(ctx, query, metric, k, strategy)
}

// SearchVector returns the k nearest corpus entries to query.
func (s *SearchService) SearchVector(ctx context.Context, query []float32, metric knn.Metric, k int, strategy knn.LoadStrategy) (*knn.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.GetTopK(ctx, query, metric, k, strategy)
}

// AddDocument embeds text and appends it to the corpus under docID.
func (s *SearchService) AddDocument(ctx context.Context, docID, text string) error {
	vec, err := s.Embed(ctx, text)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.engine.Invalidate()

	w, err := corpus.OpenAppend(s.path)
	if err != nil {
		return fmt.Errorf("open corpus: %w", err)
	}
	if err := w.Append(corpus.Record{DocID: docID, Embedding: vec}); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close corpus: %w", err)
	}
	log.InfoLogger.Printf("📝 Added document %s to %s", docID, s.path)
	return nil
}

// IndexDirectory chunks and embeds every eligible file under root into the corpus.
func (s *SearchService) IndexDirectory(ctx context.Context, root string) (indexer.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.engine.Invalidate()

	w, err := corpus.OpenAppend(s.path)
	if err != nil {
		return indexer.Stats{}, fmt.Errorf("open corpus: %w", err)
	}
	stats, err := s.builder.IndexDirectory(ctx, root, w)
	if cerr := w.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close corpus: %w", cerr)
	}
	return stats, err
}
