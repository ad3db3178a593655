package embedder

import (
	"context"

	"embedknn/internal/cache"
)

// CachingEmbedder serves repeated texts from an embedding cache. Failed
// requests are never cached.
type CachingEmbedder struct {
	next     Embedder
	cache    cache.EmbeddingCache
	provider string
	model    string
}

// NewCachingEmbedder wraps next with cache. Provider and model namespace the
// cache keys.
func NewCachingEmbedder(next Embedder, c cache.EmbeddingCache, provider, model string) *CachingEmbedder {
	return &CachingEmbedder{next: next, cache: c, provider: provider, model: model}
}

// Embed returns a cached vector when available, otherwise delegates.
func (e *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cache.ComputeKey(e.provider, e.model, text)
	if cached, found := e.cache.Get(key); found {
		return cached, nil
	}

	embedding, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(key, embedding)
	return embedding, nil
}

// GetDimensions delegates to the wrapped embedder.
func (e *CachingEmbedder) GetDimensions() int { return e.next.GetDimensions() }
