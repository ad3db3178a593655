package embedder

import (
	"context"

	"embedknn/internal/config"
	"embedknn/internal/log"
)

// Provider is the boundary between embedding backends and their callers.
// Backend failures are logged and surfaced as an absent embedding.
type Provider struct {
	kind     config.EmbeddingProvider
	embedder Embedder
}

// NewProvider wraps an embedder of the given kind.
func NewProvider(kind config.EmbeddingProvider, e Embedder) *Provider {
	return &Provider{kind: kind, embedder: e}
}

// Embed returns the embedding for text, or false if the backend failed.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, bool) {
	embedding, err := p.embedder.Embed(ctx, text)
	if err != nil {
		log.ErrorLogger.Printf("An error occurred while fetching embeddings: %v", providerError(p.kind, "embed", err))
		return nil, false
	}
	log.DebugLogger.Printf("%s embedding created (%d dimensions)", p.kind, len(embedding))
	return embedding, true
}

// Kind returns the provider kind.
func (p *Provider) Kind() config.EmbeddingProvider { return p.kind }

// GetDimensions returns the embedding dimensions of the wrapped backend.
func (p *Provider) GetDimensions() int { return p.embedder.GetDimensions() }

// Embedder returns the wrapped backend.
func (p *Provider) Embedder() Embedder { return p.embedder }
