package embedder

import (
	"context"
	"math/rand"
	"sync"

	"embedknn/internal/config"
)

// RandomEmbedder returns vectors of independent uniform values in [0, 1).
// The sequence is fully determined by the seed; the text is ignored.
// It exists for tests and has no semantic meaning.
type RandomEmbedder struct {
	mu         sync.Mutex
	rand       *rand.Rand
	dimensions int
}

// NewRandomEmbedder creates a random embedder with a fixed dimension and seed.
func NewRandomEmbedder(dimensions int, seed int64) (*RandomEmbedder, error) {
	if dimensions <= 0 {
		return nil, &ProviderError{Provider: config.ProviderRandom, Op: "configure", Err: errInvalidDimensions(dimensions)}
	}
	return &RandomEmbedder{
		rand:       rand.New(rand.NewSource(seed)),
		dimensions: dimensions,
	}, nil
}

// Embed returns the next random vector.
func (e *RandomEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	embedding := make([]float32, e.dimensions)
	for i := range embedding {
		embedding[i] = e.rand.Float32()
	}
	return embedding, nil
}

// GetDimensions returns the configured dimension.
func (e *RandomEmbedder) GetDimensions() int { return e.dimensions }
