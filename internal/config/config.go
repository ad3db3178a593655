package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"embedknn/internal/log"

	"gopkg.in/yaml.v3"
)

// EmbeddingProvider represents the type of embedding provider
type EmbeddingProvider string

const (
	ProviderRandom      EmbeddingProvider = "random"
	ProviderOpenAI      EmbeddingProvider = "openai"
	ProviderHuggingFace EmbeddingProvider = "huggingface"
	ProviderLocal       EmbeddingProvider = "local"
)

// Config holds all configuration for the embedding providers, the knn engine
// and the binaries built on top of them.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	KNN       KNNConfig       `yaml:"knn" json:"knn"`
	Corpus    CorpusConfig    `yaml:"corpus" json:"corpus"`
	Server    ServerConfig    `yaml:"server" json:"server"`

	ExcludedFiles      []string `yaml:"excluded_files" json:"excluded_files"`
	ExcludedExtensions []string `yaml:"excluded_extensions" json:"excluded_extensions"`
}

// LoggingConfig controls provider and engine log verbosity.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// EmbeddingConfig holds configuration for embedding providers
type EmbeddingConfig struct {
	Provider          EmbeddingProvider `yaml:"provider" json:"provider"`
	Dimensions        int               `yaml:"dimensions" json:"dimensions"` // Auto-detected if 0
	Cache             bool              `yaml:"cache" json:"cache"`
	RequestsPerSecond float64           `yaml:"requests_per_second" json:"requests_per_second"`
	Random            RandomConfig      `yaml:"random" json:"random"`
	OpenAI            OpenAIConfig      `yaml:"openai" json:"openai"`
	HuggingFace       HuggingFaceConfig `yaml:"huggingface" json:"huggingface"`
	Local             LocalConfig       `yaml:"local" json:"local"`
}

// RandomConfig holds configuration for the random baseline provider.
type RandomConfig struct {
	Dimensions int   `yaml:"dimensions" json:"dimensions"`
	Seed       int64 `yaml:"seed" json:"seed"`
}

// OpenAIConfig holds OpenAI-specific configuration
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key" json:"api_key"`
	Model   string `yaml:"model" json:"model"`
	BaseURL string `yaml:"base_url" json:"base_url"`
}

// HuggingFaceConfig holds HuggingFace inference configuration
type HuggingFaceConfig struct {
	ModelID   string `yaml:"model_id" json:"model_id"`
	Token     string `yaml:"token" json:"token"`
	MaxLength int    `yaml:"max_length" json:"max_length"`
}

// LocalConfig holds local model server configuration
type LocalConfig struct {
	ServerURL   string `yaml:"server_url" json:"server_url"`
	ModelName   string `yaml:"model_name" json:"model_name"`
	Timeout     int    `yaml:"timeout_seconds" json:"timeout_seconds"`
	PoolingType string `yaml:"pooling_type" json:"pooling_type"` // "mean" or "cls"
}

// KNNConfig holds configuration for the exact knn engine.
type KNNConfig struct {
	BatchSize   int  `yaml:"batch_size" json:"batch_size"`
	Cache       bool `yaml:"cache" json:"cache"`
	Parallelism int  `yaml:"parallelism" json:"parallelism"`
}

// CorpusConfig locates the persisted corpus.
type CorpusConfig struct {
	Path string `yaml:"path" json:"path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Embedding: EmbeddingConfig{
			Provider: ProviderRandom,
			Random: RandomConfig{
				Dimensions: 3,
				Seed:       1,
			},
			OpenAI: OpenAIConfig{
				Model: "text-embedding-3-large",
			},
			HuggingFace: HuggingFaceConfig{
				ModelID:   "sentence-transformers/all-MiniLM-L6-v2",
				MaxLength: 512,
			},
			Local: LocalConfig{
				ServerURL:   "http://localhost:8080",
				ModelName:   "sentence-transformers/all-MiniLM-L6-v2",
				Timeout:     30,
				PoolingType: "mean",
			},
		},
		KNN: KNNConfig{
			BatchSize:   1024,
			Parallelism: 4,
		},
		Corpus: CorpusConfig{Path: "corpus.jsonl"},
		Server: ServerConfig{Addr: ":2539"},
	}
}

// LoadConfig builds a configuration from defaults, an optional YAML file and
// environment variables, in that order. Unknown keys in the file are ignored.
func LoadConfig(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func (c *Config) applyEnv() error {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	// Load embedding provider type
	if provider := os.Getenv("EMBEDDING_PROVIDER"); provider != "" {
		switch p := EmbeddingProvider(strings.ToLower(provider)); p {
		case ProviderRandom, ProviderOpenAI, ProviderHuggingFace, ProviderLocal:
			c.Embedding.Provider = p
		default:
			return fmt.Errorf("invalid embedding provider: %s (must be 'random', 'openai', 'huggingface', or 'local')", provider)
		}
	}
	if dimStr := os.Getenv("EMBEDDING_DIMENSIONS"); dimStr != "" {
		if dimensions, err := strconv.Atoi(dimStr); err == nil && dimensions > 0 {
			c.Embedding.Dimensions = dimensions
		}
	}
	if cacheStr := os.Getenv("EMBEDDING_CACHE"); cacheStr != "" {
		if enabled, err := strconv.ParseBool(cacheStr); err == nil {
			c.Embedding.Cache = enabled
		}
	}
	if rpsStr := os.Getenv("EMBEDDING_REQUESTS_PER_SECOND"); rpsStr != "" {
		if rps, err := strconv.ParseFloat(rpsStr, 64); err == nil && rps >= 0 {
			c.Embedding.RequestsPerSecond = rps
		}
	}
	if seedStr := os.Getenv("RANDOM_EMBEDDING_SEED"); seedStr != "" {
		if seed, err := strconv.ParseInt(seedStr, 10, 64); err == nil {
			c.Embedding.Random.Seed = seed
		}
	}

	// OpenAI: the environment credential wins over the file.
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		c.Embedding.OpenAI.APIKey = apiKey
	}
	if model := os.Getenv("OPENAI_EMBEDDING_MODEL"); model != "" {
		c.Embedding.OpenAI.Model = model
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		c.Embedding.OpenAI.BaseURL = baseURL
	}

	if modelID := os.Getenv("HUGGINGFACE_MODEL_ID"); modelID != "" {
		c.Embedding.HuggingFace.ModelID = modelID
	}
	if token := os.Getenv("HUGGINGFACEHUB_API_TOKEN"); token != "" {
		c.Embedding.HuggingFace.Token = token
	} else if token := os.Getenv("HF_TOKEN"); token != "" {
		c.Embedding.HuggingFace.Token = token
	}
	if maxLengthStr := os.Getenv("HUGGINGFACE_MAX_LENGTH"); maxLengthStr != "" {
		if maxLength, err := strconv.Atoi(maxLengthStr); err == nil && maxLength > 0 {
			c.Embedding.HuggingFace.MaxLength = maxLength
		}
	}

	if serverURL := os.Getenv("LOCAL_EMBEDDING_URL"); serverURL != "" {
		c.Embedding.Local.ServerURL = serverURL
	}
	if modelName := os.Getenv("LOCAL_EMBEDDING_MODEL"); modelName != "" {
		c.Embedding.Local.ModelName = modelName
	}
	if pooling := os.Getenv("LOCAL_EMBEDDING_POOLING"); pooling != "" {
		c.Embedding.Local.PoolingType = strings.ToLower(pooling)
	}
	if timeoutStr := os.Getenv("LOCAL_EMBEDDING_TIMEOUT"); timeoutStr != "" {
		if timeout, err := strconv.Atoi(timeoutStr); err == nil && timeout > 0 {
			c.Embedding.Local.Timeout = timeout
		}
	}

	if batchStr := os.Getenv("KNN_BATCH_SIZE"); batchStr != "" {
		if batch, err := strconv.Atoi(batchStr); err == nil && batch > 0 {
			c.KNN.BatchSize = batch
		}
	}
	if cacheStr := os.Getenv("KNN_CACHE"); cacheStr != "" {
		if enabled, err := strconv.ParseBool(cacheStr); err == nil {
			c.KNN.Cache = enabled
		}
	}
	if path := os.Getenv("CORPUS_PATH"); path != "" {
		c.Corpus.Path = path
	}
	if addr := os.Getenv("SERVER_ADDR"); addr != "" {
		c.Server.Addr = addr
	}

	if excludedFiles := os.Getenv("EXCLUDED_FILES"); excludedFiles != "" {
		c.ExcludedFiles = splitList(excludedFiles)
	}
	if excludedExtensions := os.Getenv("EXCLUDED_EXTENSIONS"); excludedExtensions != "" {
		c.ExcludedExtensions = splitList(excludedExtensions)
	}
	return nil
}

func splitList(s string) []string {
	items := strings.Split(s, ",")
	for i := range items {
		items[i] = strings.TrimSpace(items[i])
	}
	return items
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return err
	}

	switch c.Embedding.Provider {
	case ProviderRandom:
		if c.Embedding.Random.Dimensions <= 0 && c.Embedding.Dimensions <= 0 {
			return fmt.Errorf("random provider dimensions must be positive")
		}
	case ProviderOpenAI:
		if c.Embedding.OpenAI.APIKey == "" {
			return fmt.Errorf("OpenAI API key is required when using OpenAI provider")
		}
		if c.Embedding.OpenAI.Model == "" {
			return fmt.Errorf("OpenAI model is required")
		}
	case ProviderHuggingFace:
		if c.Embedding.HuggingFace.ModelID == "" {
			return fmt.Errorf("HuggingFace model ID is required when using HuggingFace provider")
		}
		if c.Embedding.HuggingFace.MaxLength <= 0 {
			return fmt.Errorf("HuggingFace max length must be positive")
		}
	case ProviderLocal:
		if c.Embedding.Local.ServerURL == "" {
			return fmt.Errorf("local model server URL is required when using local provider")
		}
		if c.Embedding.Local.Timeout <= 0 {
			return fmt.Errorf("local model timeout must be positive")
		}
	default:
		return fmt.Errorf("unknown embedding provider: %s", c.Embedding.Provider)
	}

	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding dimensions must be non-negative")
	}
	if c.Embedding.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second must be non-negative")
	}
	if c.KNN.BatchSize <= 0 {
		return fmt.Errorf("knn batch size must be positive")
	}
	if c.KNN.Parallelism <= 0 {
		return fmt.Errorf("knn parallelism must be positive")
	}

	return nil
}

// GetEmbeddingDimensions returns the configured embedding dimensions.
// Zero means the provider detects them on construction.
func (c *Config) GetEmbeddingDimensions() int {
	if c.Embedding.Dimensions > 0 {
		return c.Embedding.Dimensions
	}
	switch c.Embedding.Provider {
	case ProviderRandom:
		return c.Embedding.Random.Dimensions
	case ProviderOpenAI:
		return OpenAIModelDimensions(c.Embedding.OpenAI.Model)
	case ProviderHuggingFace:
		switch c.Embedding.HuggingFace.ModelID {
		case "BAAI/bge-small-en-v1.5", "sentence-transformers/all-MiniLM-L6-v2", "sentence-transformers/all-MiniLM-L12-v2":
			return 384
		case "BAAI/bge-base-en-v1.5":
			return 768
		case "BAAI/bge-large-en-v1.5":
			return 1024
		}
	}
	return 0
}

// SetEmbeddingDimensions sets the embedding dimensions (used after auto-detection)
func (c *Config) SetEmbeddingDimensions(dimensions int) {
	c.Embedding.Dimensions = dimensions
}

// OpenAIModelDimensions returns the output size of a known OpenAI embedding model.
func OpenAIModelDimensions(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	default:
		return 1536
	}
}
