package embedder

import (
	"context"
	"fmt"

	"embedknn/internal/cache"
	"embedknn/internal/config"
	"embedknn/internal/log"
)

// EmbedderFactory creates embedders based on configuration
type EmbedderFactory struct {
	config *config.Config
}

// NewEmbedderFactory creates a new embedder factory
func NewEmbedderFactory(cfg *config.Config) *EmbedderFactory {
	return &EmbedderFactory{config: cfg}
}

// CreateEmbedder creates the configured backend, wrapped with rate limiting
// and caching when those are enabled.
func (f *EmbedderFactory) CreateEmbedder(ctx context.Context) (Embedder, error) {
	embCfg := f.config.Embedding

	var (
		e     Embedder
		model string
		err   error
	)
	switch embCfg.Provider {
	case config.ProviderRandom:
		log.InfoLogger.Printf("🎲 Initializing random embedder")
		dims := embCfg.Random.Dimensions
		if embCfg.Dimensions > 0 {
			dims = embCfg.Dimensions
		}
		e, err = NewRandomEmbedder(dims, embCfg.Random.Seed)
	case config.ProviderOpenAI:
		log.InfoLogger.Printf("🌐 Initializing OpenAI embedder with model: %s", embCfg.OpenAI.Model)
		model = embCfg.OpenAI.Model
		e, err = NewOpenAIEmbedder(embCfg.OpenAI)
	case config.ProviderHuggingFace:
		model = embCfg.HuggingFace.ModelID
		e, err = NewHuggingFaceEmbedder(ctx, embCfg.HuggingFace)
	case config.ProviderLocal:
		log.InfoLogger.Printf("🏠 Initializing local embedder")
		log.InfoLogger.Printf("🔗 Server URL: %s", embCfg.Local.ServerURL)
		model = embCfg.Local.ModelName
		e, err = NewLocalEmbedder(ctx, embCfg.Local)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", embCfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s embedder: %w", embCfg.Provider, err)
	}

	// Update config with detected dimensions
	f.config.SetEmbeddingDimensions(e.GetDimensions())

	if embCfg.RequestsPerSecond > 0 && isHosted(embCfg.Provider) {
		log.InfoLogger.Printf("⏱️  Limiting %s requests to %.2f/s", embCfg.Provider, embCfg.RequestsPerSecond)
		e = NewRateLimitedEmbedder(e, embCfg.Provider, embCfg.RequestsPerSecond)
	}
	if embCfg.Cache {
		log.InfoLogger.Printf("💾 Embedding cache enabled")
		e = NewCachingEmbedder(e, cache.NewInMemoryCache(), string(embCfg.Provider), model)
	}

	log.InfoLogger.Printf("✅ %s embedder initialized successfully with %d dimensions", embCfg.Provider, e.GetDimensions())
	return e, nil
}

// CreateProvider creates the configured embedder behind a Provider boundary.
func (f *EmbedderFactory) CreateProvider(ctx context.Context) (*Provider, error) {
	e, err := f.CreateEmbedder(ctx)
	if err != nil {
		return nil, err
	}
	return NewProvider(f.config.Embedding.Provider, e), nil
}

func isHosted(kind config.EmbeddingProvider) bool {
	return kind == config.ProviderOpenAI || kind == config.ProviderHuggingFace
}

// ValidateEmbedderConnection embeds a probe text and checks the reported dimensions.
func ValidateEmbedderConnection(ctx context.Context, e Embedder) error {
	log.InfoLogger.Printf("🔍 Validating embedder connection...")

	embedding, err := e.Embed(ctx, "Hello world")
	if err != nil {
		return fmt.Errorf("failed to create test embedding: %w", err)
	}

	expected := e.GetDimensions()
	if len(embedding) != expected {
		return fmt.Errorf("dimension mismatch: expected %d, got %d", expected, len(embedding))
	}

	log.InfoLogger.Printf("✅ Embedder connection validated successfully (%d dimensions)", len(embedding))
	return nil
}
