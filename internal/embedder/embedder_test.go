package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/docqa-go/internal/rag"
)

func TestOllamaEmbedder_Embed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		out := ollamaEmbedResponse{}
		for i := range req.Input {
			out.Embeddings = append(out.Embeddings, []float32{float32(i), 1})
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	emb := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})
	vecs, err := emb.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 1}, {2, 1}}, vecs)
}

func TestOllamaEmbedder_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"missing\" not found"}`))
	}))
	defer srv.Close()

	emb := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "missing"})
	_, err := emb.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrEmbedding)
	assert.Contains(t, err.Error(), "not found")
}

func TestOllamaEmbedder_CountMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[1,2]]}`))
	}))
	defer srv.Close()

	emb := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "m"})
	_, err := emb.Embed(context.Background(), []string{"x", "y"})
	assert.ErrorIs(t, err, rag.ErrEmbedding)
}

func TestOllamaEmbedder_EmptyInputSkipsNetwork(t *testing.T) {
	t.Parallel()

	emb := NewOllamaEmbedder(&OllamaConfig{Host: "http://127.0.0.1:1", Model: "m"})
	vecs, err := emb.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

// openAIHandler answers /embeddings with vectors listed in reverse order so
// the client has to restore input order from the reported index.
func openAIHandler(t *testing.T, check func(r *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		check(r)
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Object: "embedding", Embedding: []float32{float32(i)}, Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
		})
	}
}

func TestOpenAIEmbedder_RestoresOrder(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(openAIHandler(t, func(r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
	}))
	defer srv.Close()

	emb := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "sk-test", Model: "text-embedding-3-small"})
	vecs, err := emb.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0}, {1}, {2}}, vecs)
}

func TestOpenAIEmbedder_Azure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(openAIHandler(t, func(r *http.Request) {
		assert.Equal(t, "/openai/deployments/embed-small/embeddings", r.URL.Path)
		assert.Equal(t, "2024-10-21", r.URL.Query().Get("api-version"))
		assert.Equal(t, "az-key", r.Header.Get("api-key"))
	}))
	defer srv.Close()

	emb := NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL:    srv.URL,
		APIKey:     "az-key",
		Model:      "embed-small",
		Azure:      true,
		APIVersion: "2024-10-21",
	})
	vecs, err := emb.Embed(context.Background(), []string{"only"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0}}, vecs)
}

func TestOpenAIEmbedder_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	emb := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "nope", Model: "m"})
	_, err := emb.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrEmbedding)
}

// countingEmbedder records the size of every call it receives.
type countingEmbedder struct {
	calls []int
	fail  int
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls = append(c.calls, len(texts))
	if c.fail > 0 && len(c.calls) == c.fail {
		return nil, errors.New("boom")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i]))}
	}
	return out, nil
}

func TestBatched(t *testing.T) {
	t.Parallel()

	t.Run("splits and preserves order", func(t *testing.T) {
		t.Parallel()
		inner := &countingEmbedder{}
		vecs, err := NewBatched(inner, 2).Embed(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
		require.NoError(t, err)
		assert.Equal(t, []int{2, 2, 1}, inner.calls)
		assert.Equal(t, [][]float32{{1}, {2}, {3}, {4}, {5}}, vecs)
	})

	t.Run("zero size passes through", func(t *testing.T) {
		t.Parallel()
		inner := &countingEmbedder{}
		_, err := NewBatched(inner, 0).Embed(context.Background(), []string{"a", "b", "c"})
		require.NoError(t, err)
		assert.Equal(t, []int{3}, inner.calls)
	})

	t.Run("stops at first failing batch", func(t *testing.T) {
		t.Parallel()
		inner := &countingEmbedder{fail: 2}
		_, err := NewBatched(inner, 1).Embed(context.Background(), []string{"a", "b", "c"})
		require.Error(t, err)
		assert.Equal(t, []int{1, 1}, inner.calls)
	})
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"ollama ok", Config{Backend: "ollama", Endpoint: "http://localhost:11434", Model: "nomic-embed-text"}, false},
		{"ollama no host", Config{Backend: "ollama", Model: "nomic-embed-text"}, true},
		{"openai no key", Config{Backend: "openai", Model: "text-embedding-3-small"}, true},
		{"openai ok", Config{Backend: "openai", APIKey: "sk", Model: "text-embedding-3-small"}, false},
		{"azure no endpoint", Config{Backend: "azure", APIKey: "k", Model: "m"}, true},
		{"gemini unsupported", Config{Backend: "gemini", APIKey: "k", Model: "m"}, true},
		{"unknown backend", Config{Backend: "cohere"}, true},
		{"negative batch", Config{Backend: "ollama", Endpoint: "h", Model: "m", BatchSize: -1}, true},
		{"empty model", Config{Backend: "openai", APIKey: "sk"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if tc.wantErr {
				assert.ErrorIs(t, err, rag.ErrInvalidParameter)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfigFromEnv_Inheritance(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "")
	t.Setenv("MODEL_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-chat")
	t.Setenv("EMBEDDING_API_KEY", "")
	t.Setenv("EMBEDDING_MODEL", "")
	t.Setenv("EMBEDDING_ENDPOINT", "")
	t.Setenv("EMBEDDING_DIMENSIONS", "256")
	t.Setenv("EMBEDDING_BATCH_SIZE", "")

	cfg := ConfigFromEnv()
	assert.Equal(t, "openai", cfg.Backend)
	assert.Equal(t, "sk-chat", cfg.APIKey)
	assert.Equal(t, defaultOpenAIModel, cfg.Model)
	assert.Equal(t, 256, cfg.Dimensions)
	assert.Equal(t, defaultBatchSize, cfg.BatchSize)
	assert.Equal(t, 256, DefaultDimensions("openai"))
}

func TestLooksLikeChatModel(t *testing.T) {
	t.Parallel()

	assert.True(t, looksLikeChatModel("gpt-4o-mini"))
	assert.True(t, looksLikeChatModel("Llama3.1:8b"))
	assert.False(t, looksLikeChatModel("nomic-embed-text"))
	assert.False(t, looksLikeChatModel("text-embedding-3-small"))
}
