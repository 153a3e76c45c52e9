package tracing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigFromEnv_DefaultsHost(t *testing.T) {
	t.Setenv("LANGFUSE_HOST", "")
	t.Setenv("LANGFUSE_PUBLIC_KEY", "pk")
	t.Setenv("LANGFUSE_SECRET_KEY", "")

	cfg := ConfigFromEnv("docqa serve")
	assert.Equal(t, defaultHost, cfg.Host)
	assert.Equal(t, "docqa serve", cfg.Name)
	assert.False(t, cfg.Enabled(), "tracing must stay disabled without a secret key")
}

func TestConfigFromEnv_Enabled(t *testing.T) {
	t.Setenv("LANGFUSE_HOST", "https://langfuse.internal")
	t.Setenv("LANGFUSE_PUBLIC_KEY", "pk")
	t.Setenv("LANGFUSE_SECRET_KEY", "sk")

	cfg := ConfigFromEnv("docqa retrieve")
	assert.Equal(t, "https://langfuse.internal", cfg.Host)
	assert.True(t, cfg.Enabled())
}

func TestSetup_DisabledReturnsNil(t *testing.T) {
	t.Parallel()
	h, flush, ok := Setup(Config{PublicKey: "pk"})
	assert.False(t, ok)
	assert.Nil(t, h)
	assert.Nil(t, flush)
}
