package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	path, err := Load("/nonexistent/path/config.yaml", log)
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: azure
  max_tokens: 8192
  temperature: 0.3
  azure:
    endpoint: https://my-resource.openai.azure.com
    deployment: gpt-4o
    api_version: "2025-04-01-preview"
embedding:
  provider: ollama
  model: nomic-embed-text
  batch_size: 32
index:
  backend: qdrant
  qdrant:
    host: qdrant.internal
    port: 6334
    collection_prefix: docqa-test
    tls: true
retrieval:
  chunk_size: 500
  chunk_overlap: 50
  chunk_threshold: 0.75
  top_k: 6
  concurrency: 4
  lexical_weight: 0.3
  rrf_k: 30
server:
  port: 9090
  request_timeout: 90s
  document_root: /srv/docs
history:
  db_path: disabled
logging:
  level: debug
  format: text
`)

	require.NoError(t, os.WriteFile(cfgPath, content, 0o644))

	// Clear env vars that the YAML should set.
	envKeys := []string{
		"MODEL_PROVIDER", "MODEL_MAX_TOKENS", "MODEL_TEMPERATURE",
		"AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_DEPLOYMENT", "AZURE_OPENAI_API_VERSION",
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_BATCH_SIZE",
		"INDEX_BACKEND", "QDRANT_HOST", "QDRANT_PORT", "QDRANT_COLLECTION_PREFIX", "QDRANT_TLS",
		"CHUNK_SIZE", "CHUNK_OVERLAP", "CHUNK_THRESHOLD",
		"RETRIEVAL_TOP_K", "RETRIEVAL_CONCURRENCY", "HYBRID_LEXICAL_WEIGHT", "HYBRID_RRF_K",
		"DOCQA_PORT", "DOCQA_REQUEST_TIMEOUT", "DOCQA_DOCUMENT_ROOT", "DOCQA_HISTORY_DB",
		"LOG_LEVEL", "LOG_FORMAT",
	}
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	log := slog.Default()
	loaded, err := Load(cfgPath, log)
	require.NoError(t, err)
	assert.Equal(t, cfgPath, loaded)

	checks := map[string]string{
		"MODEL_PROVIDER":           "azure",
		"MODEL_MAX_TOKENS":         "8192",
		"AZURE_OPENAI_ENDPOINT":    "https://my-resource.openai.azure.com",
		"AZURE_OPENAI_DEPLOYMENT":  "gpt-4o",
		"AZURE_OPENAI_API_VERSION": "2025-04-01-preview",
		"EMBEDDING_PROVIDER":       "ollama",
		"EMBEDDING_MODEL":          "nomic-embed-text",
		"EMBEDDING_BATCH_SIZE":     "32",
		"INDEX_BACKEND":            "qdrant",
		"QDRANT_HOST":              "qdrant.internal",
		"QDRANT_PORT":              "6334",
		"QDRANT_COLLECTION_PREFIX": "docqa-test",
		"QDRANT_TLS":               "true",
		"CHUNK_SIZE":               "500",
		"CHUNK_OVERLAP":            "50",
		"CHUNK_THRESHOLD":          "0.75",
		"RETRIEVAL_TOP_K":          "6",
		"RETRIEVAL_CONCURRENCY":    "4",
		"HYBRID_LEXICAL_WEIGHT":    "0.3",
		"HYBRID_RRF_K":             "30",
		"DOCQA_PORT":               "9090",
		"DOCQA_REQUEST_TIMEOUT":    "90s",
		"DOCQA_DOCUMENT_ROOT":      "/srv/docs",
		"DOCQA_HISTORY_DB":         "disabled",
		"LOG_LEVEL":                "debug",
		"LOG_FORMAT":               "text",
	}
	for k, want := range checks {
		assert.Equal(t, want, os.Getenv(k), k)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: ollama
`)
	require.NoError(t, os.WriteFile(cfgPath, content, 0o644))

	// Set before loading; it must not be overwritten.
	t.Setenv("MODEL_PROVIDER", "azure")

	log := slog.Default()
	_, err := Load(cfgPath, log)
	require.NoError(t, err)
	assert.Equal(t, "azure", os.Getenv("MODEL_PROVIDER"), "process env wins over YAML")
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	require.NoError(t, os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0o644))

	_, err := Load(cfgPath, slog.Default())
	assert.Error(t, err)
}

func TestFloat32Str(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float32
		want string
	}{
		{0.0, ""},
		{0.2, "0.2"},
		{0.3, "0.3"},
		{1.0, "1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, float32Str(tt.in), "float32Str(%v)", tt.in)
	}
}

func TestLoadDotEnv_Precedence(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("CHUNK_SIZE=700\nRETRIEVAL_TOP_K=9\n"), 0o644))
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("retrieval:\n  chunk_size: 500\n  top_k: 2\n  concurrency: 3\n"), 0o644))

	t.Setenv("RETRIEVAL_TOP_K", "")
	os.Unsetenv("RETRIEVAL_TOP_K")
	t.Setenv("CHUNK_SIZE", "")
	os.Unsetenv("CHUNK_SIZE")
	t.Setenv("RETRIEVAL_CONCURRENCY", "")
	os.Unsetenv("RETRIEVAL_CONCURRENCY")
	t.Setenv("CHUNK_OVERLAP", "10") // process env beats .env and YAML

	log := slog.Default()
	require.NoError(t, LoadDotEnv(envPath, log))
	_, err := LoadYAML(cfgPath, log)
	require.NoError(t, err)

	checks := map[string]string{
		"CHUNK_SIZE":            "700",
		"RETRIEVAL_TOP_K":       "9",
		"RETRIEVAL_CONCURRENCY": "3",
		"CHUNK_OVERLAP":         "10",
	}
	for k, want := range checks {
		assert.Equal(t, want, os.Getenv(k), k)
	}
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	t.Parallel()
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env"), slog.Default()), "missing .env must not fail")
}

func TestResolveConfigPath_EnvVar(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("logging:\n  level: warn\n"), 0o644))
	t.Setenv("DOCQA_CONFIG", cfgPath)

	assert.Equal(t, cfgPath, resolveConfigPath(""))
	assert.Empty(t, resolveConfigPath(filepath.Join(dir, "missing.yaml")), "missing explicit path")
}

func TestIntAndBoolStr(t *testing.T) {
	t.Parallel()
	assert.Empty(t, intStr(0))
	assert.Equal(t, "42", intStr(42))
	assert.Empty(t, boolStr(false))
	assert.Equal(t, "true", boolStr(true))
}
