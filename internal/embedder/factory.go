// Package embedder provides implementations of the rag.Embedder interface.
// Ollama is reached over its plain HTTP API; OpenAI and Azure OpenAI go
// through the go-openai client. Every failure is wrapped with
// rag.ErrEmbedding so callers can classify it.
package embedder

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536

	// defaultBatchSize bounds the number of texts sent per provider call.
	defaultBatchSize = 256
)

// Config is the resolved embedding configuration. It is built once at
// startup, usually by ConfigFromEnv, and passed to New.
type Config struct {
	// Backend is ollama, openai or azure.
	Backend string
	// Model is the embedding model (Azure: the deployment name).
	Model string
	// Endpoint is the provider base URL.
	Endpoint string
	// APIKey authenticates against openai and azure.
	APIKey string
	// APIVersion is the Azure OpenAI API version.
	APIVersion string
	// Dimensions requests a specific vector length (0 = model default).
	Dimensions int
	// BatchSize is the maximum number of texts per provider call.
	BatchSize int
	// Timeout bounds each provider call.
	Timeout time.Duration
}

// DefaultDimensions returns the default embedding vector size for backend.
// EMBEDDING_DIMENSIONS always takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case "ollama":
		return defaultOllamaDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// ConfigFromEnv resolves the embedding configuration, inheriting from the
// chat provider settings when embedding-specific overrides are not set.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER, else MODEL_PROVIDER, else ollama
//  2. per-backend credentials inherited from the chat provider env vars
//  3. EMBEDDING_MODEL, EMBEDDING_API_KEY, EMBEDDING_ENDPOINT overrides
//  4. EMBEDDING_DIMENSIONS, EMBEDDING_BATCH_SIZE
func ConfigFromEnv() *Config {
	backend := getEnv("EMBEDDING_PROVIDER")
	if backend == "" {
		backend = getEnvOrDefault("MODEL_PROVIDER", "ollama")
	}

	cfg := &Config{
		Backend:    backend,
		Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
		BatchSize:  getEnvInt("EMBEDDING_BATCH_SIZE", defaultBatchSize),
		Timeout:    60 * time.Second,
	}

	switch backend {
	case "ollama":
		cfg.Endpoint = firstNonEmpty(getEnv("EMBEDDING_ENDPOINT"), getEnv("OLLAMA_HOST"), "http://localhost:11434")
		cfg.Model = getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel)
	case "openai":
		cfg.APIKey = firstNonEmpty(getEnv("EMBEDDING_API_KEY"), getEnv("OPENAI_API_KEY"))
		cfg.Endpoint = firstNonEmpty(getEnv("EMBEDDING_ENDPOINT"), "https://api.openai.com/v1")
		cfg.Model = getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel)
		cfg.Timeout = 30 * time.Second
	case "azure":
		cfg.APIKey = firstNonEmpty(getEnv("EMBEDDING_API_KEY"), getEnv("AZURE_OPENAI_API_KEY"))
		cfg.Endpoint = firstNonEmpty(getEnv("EMBEDDING_ENDPOINT"), getEnv("AZURE_OPENAI_ENDPOINT"))
		cfg.APIVersion = getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview")
		cfg.Model = getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel)
		cfg.Timeout = 30 * time.Second
	}
	return cfg
}

// New constructs the embedder described by cfg, wrapped so that large
// inputs are sent in batches of cfg.BatchSize.
func New(cfg *Config) (rag.Embedder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var inner rag.Embedder
	switch cfg.Backend {
	case "ollama":
		inner = NewOllamaEmbedder(&OllamaConfig{Host: cfg.Endpoint, Model: cfg.Model, Timeout: cfg.Timeout})
	case "openai":
		inner = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		})
	case "azure":
		inner = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: cfg.APIVersion,
			Timeout:    cfg.Timeout,
		})
	}
	return NewBatched(inner, cfg.BatchSize), nil
}

// NewFromEnv is shorthand for New(ConfigFromEnv()).
func NewFromEnv() (rag.Embedder, error) {
	return New(ConfigFromEnv())
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// embedErr formats an error wrapped with rag.ErrEmbedding.
func embedErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{rag.ErrEmbedding}, args...)...)
}
