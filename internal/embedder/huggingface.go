package embedder

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"embedknn/internal/config"
	"embedknn/internal/log"

	"github.com/hupe1980/go-huggingface"
)

// extractFunc runs one feature-extraction request and returns one pooled
// vector per input.
type extractFunc func(ctx context.Context, inputs []string) ([][]float32, error)

// HuggingFaceEmbedder implements Embedder using the HuggingFace inference API.
type HuggingFaceEmbedder struct {
	config     config.HuggingFaceConfig
	extract    extractFunc
	dimensions int
}

// NewHuggingFaceEmbedder creates a HuggingFace embedder and probes the model
// for its output dimensions.
func NewHuggingFaceEmbedder(ctx context.Context, cfg config.HuggingFaceConfig) (*HuggingFaceEmbedder, error) {
	log.InfoLogger.Printf("🤗 Initializing HuggingFace embedder with model: %s", cfg.ModelID)

	if cfg.Token == "" {
		log.WarnLogger.Printf("⚠️  No HuggingFace API token found. Some models may require authentication.")
	}

	client := huggingface.NewInferenceClient(cfg.Token)
	client.SetModel(cfg.ModelID)

	extract := func(ctx context.Context, inputs []string) ([][]float32, error) {
		resp, err := client.FeatureExtractionWithAutomaticReduction(ctx, &huggingface.FeatureExtractionRequest{
			Inputs: inputs,
			Options: huggingface.Options{
				WaitForModel: huggingface.PTR(true),
				UseCache:     huggingface.PTR(true),
			},
		})
		if err != nil {
			return nil, err
		}
		out := make([][]float32, len(resp))
		for i := range resp {
			out[i] = resp[i]
		}
		return out, nil
	}

	return newHuggingFaceEmbedder(ctx, cfg, extract)
}

func newHuggingFaceEmbedder(ctx context.Context, cfg config.HuggingFaceConfig, extract extractFunc) (*HuggingFaceEmbedder, error) {
	e := &HuggingFaceEmbedder{config: cfg, extract: extract}

	dimensions, err := e.detectDimensions(ctx)
	if err != nil {
		return nil, err
	}
	e.dimensions = dimensions

	log.InfoLogger.Printf("✅ HuggingFace embedder initialized successfully with %d dimensions", dimensions)
	return e, nil
}

// Embed creates a vector embedding for the given text using the HuggingFace model.
func (e *HuggingFaceEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, &ProviderError{Provider: config.ProviderHuggingFace, Op: "embed", Err: ErrEmptyText}
	}

	text = truncateRunes(text, e.config.MaxLength)

	embedding, err := e.request(ctx, text)
	if err != nil {
		return nil, &ProviderError{Provider: config.ProviderHuggingFace, Op: "embed", Err: err}
	}
	if len(embedding) != e.dimensions {
		return nil, &ProviderError{
			Provider: config.ProviderHuggingFace,
			Op:       "embed",
			Err:      fmt.Errorf("dimension mismatch: expected %d, got %d", e.dimensions, len(embedding)),
		}
	}
	return embedding, nil
}

// GetDimensions returns the embedding dimensions
func (e *HuggingFaceEmbedder) GetDimensions() int { return e.dimensions }

// Model returns the model ID.
func (e *HuggingFaceEmbedder) Model() string { return e.config.ModelID }

func (e *HuggingFaceEmbedder) detectDimensions(ctx context.Context) (int, error) {
	log.InfoLogger.Printf("🔍 Auto-detecting embedding dimensions for model: %s", e.config.ModelID)

	embedding, err := e.request(ctx, "Hello world")
	if err != nil {
		return 0, &ProviderError{Provider: config.ProviderHuggingFace, Op: "detect dimensions", Err: err}
	}
	return len(embedding), nil
}

func (e *HuggingFaceEmbedder) request(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.extract(ctx, []string{text})
	if err != nil {
		if isAuthError(err) {
			return nil, fmt.Errorf("authentication failed for model %s, set HUGGINGFACEHUB_API_TOKEN: %w", e.config.ModelID, err)
		}
		return nil, fmt.Errorf("model %s: %w", e.config.ModelID, err)
	}
	if len(resp) == 0 || len(resp[0]) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return resp[0], nil
}

func isAuthError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "invalid username or password") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "authentication")
}

// truncateRunes cuts text to at most limit characters on a rune boundary.
func truncateRunes(text string, limit int) string {
	n := utf8.RuneCountInString(text)
	if limit <= 0 || n <= limit {
		return text
	}
	log.DebugLogger.Printf("Truncating text from %d to %d characters", n, limit)
	return string([]rune(text)[:limit])
}
