package embedder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"embedknn/internal/config"
	"embedknn/internal/log"

	json "github.com/goccy/go-json"
)

// PoolingType collapses token-level hidden states into one vector.
type PoolingType string

const (
	PoolingMean PoolingType = "mean"
	PoolingCLS  PoolingType = "cls"
)

// ParsePoolingType validates a configured pooling type.
func ParsePoolingType(s string) (PoolingType, error) {
	switch p := PoolingType(strings.ToLower(strings.TrimSpace(s))); p {
	case PoolingMean, PoolingCLS:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedPooling, s)
	}
}

// LocalEmbedder runs a local transformer model served by a Text Embeddings
// Inference server. The server tokenizes and runs the forward pass; the
// embedder requests the last hidden state of every token and pools it.
type LocalEmbedder struct {
	config     config.LocalConfig
	pooling    PoolingType
	httpClient *http.Client
	dimensions int
}

type embedAllRequest struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate"`
}

// NewLocalEmbedder validates the pooling policy and probes the server for
// the model's hidden size.
func NewLocalEmbedder(ctx context.Context, cfg config.LocalConfig) (*LocalEmbedder, error) {
	pooling, err := ParsePoolingType(cfg.PoolingType)
	if err != nil {
		return nil, &ProviderError{Provider: config.ProviderLocal, Op: "configure", Err: err}
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	e := &LocalEmbedder{
		config:  cfg,
		pooling: pooling,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	log.InfoLogger.Printf("🔍 Auto-detecting embedding dimensions for local model server at %s", cfg.ServerURL)
	embedding, err := e.embed(ctx, "test")
	if err != nil {
		return nil, &ProviderError{Provider: config.ProviderLocal, Op: "detect dimensions", Err: err}
	}
	e.dimensions = len(embedding)

	log.InfoLogger.Printf("🤖 Local embedder initialized with %d dimensions (%s pooling)", e.dimensions, pooling)
	return e, nil
}

// Embed creates a pooled vector embedding for the given text.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, &ProviderError{Provider: config.ProviderLocal, Op: "embed", Err: ErrEmptyText}
	}
	embedding, err := e.embed(ctx, text)
	if err != nil {
		return nil, &ProviderError{Provider: config.ProviderLocal, Op: "embed", Err: err}
	}
	if len(embedding) != e.dimensions {
		return nil, &ProviderError{
			Provider: config.ProviderLocal,
			Op:       "embed",
			Err:      fmt.Errorf("dimension mismatch: expected %d, got %d", e.dimensions, len(embedding)),
		}
	}
	return embedding, nil
}

// GetDimensions returns the embedding dimensions
func (e *LocalEmbedder) GetDimensions() int { return e.dimensions }

// Model returns the configured model name.
func (e *LocalEmbedder) Model() string { return e.config.ModelName }

func (e *LocalEmbedder) embed(ctx context.Context, text string) ([]float32, error) {
	tokens, err := e.hiddenStates(ctx, text)
	if err != nil {
		return nil, err
	}
	return Pool(tokens, e.pooling)
}

// hiddenStates returns the token-level output for a single input.
func (e *LocalEmbedder) hiddenStates(ctx context.Context, text string) ([][]float32, error) {
	body, err := json.Marshal(embedAllRequest{Inputs: []string{text}, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("failed to create request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(e.config.ServerURL, "/")+"/embed_all", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request to local model server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("local model server returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var batch [][][]float32
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, fmt.Errorf("failed to decode embed_all response: %w", err)
	}
	if len(batch) == 0 || len(batch[0]) == 0 {
		return nil, fmt.Errorf("inference returned no token states: %w", ErrEmptyEmbedding)
	}
	return batch[0], nil
}

// Pool collapses token-level vectors into one embedding.
func Pool(tokens [][]float32, pooling PoolingType) ([]float32, error) {
	if len(tokens) == 0 || len(tokens[0]) == 0 {
		return nil, ErrEmptyEmbedding
	}
	dim := len(tokens[0])
	for i, tok := range tokens {
		if len(tok) != dim {
			return nil, fmt.Errorf("token %d has %d dimensions, expected %d", i, len(tok), dim)
		}
	}

	switch pooling {
	case PoolingCLS:
		out := make([]float32, dim)
		copy(out, tokens[0])
		return out, nil
	case PoolingMean:
		sums := make([]float64, dim)
		for _, tok := range tokens {
			for j, v := range tok {
				sums[j] += float64(v)
			}
		}
		out := make([]float32, dim)
		n := float64(len(tokens))
		for j, s := range sums {
			out[j] = float32(s / n)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPooling, pooling)
	}
}
