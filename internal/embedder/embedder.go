// Package embedder turns text into fixed-length vectors.
//
// Each provider kind (random, openai, huggingface, local) implements Embedder.
// Failures are returned as *ProviderError; the Provider type is the boundary
// that logs them and reports an absent embedding instead.
package embedder

import (
	"context"
	"errors"
	"fmt"

	"embedknn/internal/config"
)

// Embedder is an interface for creating vector embeddings from text.
type Embedder interface {
	// Embed takes a string of text and returns its vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)
	// GetDimensions returns the length of every vector Embed produces.
	GetDimensions() int
}

var (
	// ErrEmptyText is returned when there is nothing to embed.
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrEmptyEmbedding is returned when a backend answers without a vector.
	ErrEmptyEmbedding = errors.New("received empty embedding")
	// ErrUnsupportedPooling is returned for pooling types other than mean and cls.
	ErrUnsupportedPooling = errors.New("unsupported pooling type")
)

// ProviderError reports a failed embedding operation.
type ProviderError struct {
	Provider config.EmbeddingProvider
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func providerError(kind config.EmbeddingProvider, op string, err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: kind, Op: op, Err: err}
}

// BatchEmbed creates embeddings for multiple texts, one request at a time.
func BatchEmbed(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyText
	}

	results := make([][]float32, len(texts))
	for i, text := range texts {
		embedding, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		results[i] = embedding
	}
	return results, nil
}

func errInvalidDimensions(n int) error {
	return fmt.Errorf("dimensions must be positive, got %d", n)
}
