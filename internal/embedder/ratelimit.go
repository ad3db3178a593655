package embedder

import (
	"context"

	"embedknn/internal/config"

	"golang.org/x/time/rate"
)

// RateLimitedEmbedder spaces out calls to a hosted API.
type RateLimitedEmbedder struct {
	next    Embedder
	kind    config.EmbeddingProvider
	limiter *rate.Limiter
}

// NewRateLimitedEmbedder allows at most rps requests per second with a burst of one.
func NewRateLimitedEmbedder(next Embedder, kind config.EmbeddingProvider, rps float64) *RateLimitedEmbedder {
	return &RateLimitedEmbedder{
		next:    next,
		kind:    kind,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Embed waits for a token and delegates. A cancelled wait is a provider failure.
func (e *RateLimitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, &ProviderError{Provider: e.kind, Op: "rate limit", Err: err}
	}
	return e.next.Embed(ctx, text)
}

// GetDimensions delegates to the wrapped embedder.
func (e *RateLimitedEmbedder) GetDimensions() int { return e.next.GetDimensions() }
