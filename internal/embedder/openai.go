package embedder

import (
	"context"
	"fmt"

	"embedknn/internal/config"

	"github.com/sashabaranov/go-openai"
)

// DefaultEmbeddingModel is used when the configuration leaves the model empty.
const DefaultEmbeddingModel openai.EmbeddingModel = openai.LargeEmbedding3

// OpenAIEmbedder is a client for the hosted OpenAI embeddings API.
type OpenAIEmbedder struct {
	client         *openai.Client
	embeddingModel openai.EmbeddingModel
	dimensions     int
}

// NewOpenAIEmbedder creates an OpenAI embedder. An empty BaseURL keeps the
// public API endpoint.
func NewOpenAIEmbedder(cfg config.OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, &ProviderError{Provider: config.ProviderOpenAI, Op: "configure", Err: fmt.Errorf("API key is required")}
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	model := DefaultEmbeddingModel
	if cfg.Model != "" {
		model = openai.EmbeddingModel(cfg.Model)
	}

	return &OpenAIEmbedder{
		client:         openai.NewClientWithConfig(clientConfig),
		embeddingModel: model,
		dimensions:     config.OpenAIModelDimensions(string(model)),
	}, nil
}

// Embed creates a vector embedding for the given text using the configured model.
func (c *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, &ProviderError{Provider: config.ProviderOpenAI, Op: "embed", Err: ErrEmptyText}
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: c.embeddingModel,
	})
	if err != nil {
		return nil, &ProviderError{Provider: config.ProviderOpenAI, Op: "embed", Err: err}
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, &ProviderError{Provider: config.ProviderOpenAI, Op: "embed", Err: ErrEmptyEmbedding}
	}
	return resp.Data[0].Embedding, nil
}

// GetDimensions returns the dimensions for the configured OpenAI model.
func (c *OpenAIEmbedder) GetDimensions() int { return c.dimensions }

// Model returns the embedding model name.
func (c *OpenAIEmbedder) Model() string { return string(c.embeddingModel) }
