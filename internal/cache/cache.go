// Package cache memoises provider embeddings so repeated texts, such as an
// unchanged chunk on a second indexing run, skip the backend round trip.
package cache

import "sync"

// EmbeddingCache stores vectors under keys built by ComputeKey.
type EmbeddingCache interface {
	Get(key string) ([]float32, bool)
	Set(key string, embedding []float32)
}

// InMemoryCache lives for the process. Callers and the cache never share a
// backing array, so a vector appended to the corpus cannot be altered later.
type InMemoryCache struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

var _ EmbeddingCache = (*InMemoryCache)(nil)

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{vectors: make(map[string][]float32)}
}

// Get returns a private copy of the cached vector.
func (c *InMemoryCache) Get(key string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	vec, found := c.vectors[key]
	if !found {
		return nil, false
	}
	return clone(vec), true
}

// Set stores a copy of embedding, replacing any earlier vector for key.
func (c *InMemoryCache) Set(key string, embedding []float32) {
	vec := clone(embedding)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.vectors[key] = vec
}

// Len returns the number of cached embeddings.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vectors)
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
