package embedder

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/54b3r/docqa-go/internal/rag"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are NOT suitable for embedding.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
	"solar",
	"vicuna",
	"falcon",
	"yi-",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Validate returns an error wrapped with rag.ErrInvalidParameter when the
// configuration cannot produce a working embedder.
func (c *Config) Validate() error {
	if c.BatchSize < 0 {
		return fmt.Errorf("%w: embedder: batch size must be >= 0, got %d", rag.ErrInvalidParameter, c.BatchSize)
	}
	if c.Dimensions < 0 {
		return fmt.Errorf("%w: embedder: dimensions must be >= 0, got %d", rag.ErrInvalidParameter, c.Dimensions)
	}

	switch c.Backend {
	case "ollama":
		if c.Endpoint == "" {
			return fmt.Errorf("%w: embedder: ollama host is empty; set OLLAMA_HOST or EMBEDDING_ENDPOINT", rag.ErrInvalidParameter)
		}
	case "openai":
		if c.APIKey == "" {
			return fmt.Errorf("%w: embedder: no OpenAI API key found; set OPENAI_API_KEY or EMBEDDING_API_KEY", rag.ErrInvalidParameter)
		}
	case "azure":
		if c.APIKey == "" {
			return fmt.Errorf("%w: embedder: no Azure API key found; set AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY", rag.ErrInvalidParameter)
		}
		if c.Endpoint == "" {
			return fmt.Errorf("%w: embedder: no Azure endpoint found; set AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT", rag.ErrInvalidParameter)
		}
	case "bedrock", "gemini":
		return fmt.Errorf("%w: embedder: %s embedding is not implemented; set EMBEDDING_PROVIDER to ollama, openai, or azure", rag.ErrInvalidParameter, c.Backend)
	default:
		return fmt.Errorf("%w: embedder: unknown backend %q", rag.ErrInvalidParameter, c.Backend)
	}

	if c.Model == "" {
		return fmt.Errorf("%w: embedder: model is empty", rag.ErrInvalidParameter)
	}
	return nil
}

// Warn logs configuration smells that do not prevent construction: an
// inherited backend, or a model name that looks like a chat model.
func (c *Config) Warn(log *slog.Logger, explicitBackend bool) {
	if c.Backend != "ollama" && !explicitBackend {
		log.Warn("embedder: EMBEDDING_PROVIDER is not set; inheriting MODEL_PROVIDER as embedding backend",
			slog.String("backend", c.Backend),
			slog.String("hint", "set EMBEDDING_PROVIDER=ollama (or openai/azure) to be explicit"),
		)
	}
	if looksLikeChatModel(c.Model) {
		log.Warn("embedder: model looks like a chat model, not an embedding model",
			slog.String("model", c.Model),
			slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-3-small"),
		)
	}
}
