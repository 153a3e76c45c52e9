package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/qdrant/go-client/qdrant"
)

// LLMPinger deps the completion backend with a one-token generate call.
// Every call spends tokens, so `docqa serve` only registers it when
// DOCQA_READY_CHECK_LLM is set.
type LLMPinger struct {
	model model.BaseChatModel
	// name is the provider, e.g. "openai".
	name string
}

// NewLLMPinger constructs an LLMPinger for m, labelled with its provider.
func NewLLMPinger(m model.BaseChatModel, provider string) *LLMPinger {
	return &LLMPinger{model: m, name: provider}
}

// Name returns the provider label.
func (p *LLMPinger) Name() string { return p.name }

// Ping asks for a single token and accepts any reply.
func (p *LLMPinger) Ping(ctx context.Context) error {
	resp, err := p.model.Generate(ctx, []*schema.Message{schema.UserMessage("ping")}, model.WithMaxTokens(1))
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("generate returned nil response")
	}
	return nil
}

// QdrantPinger deps the Qdrant index backend with its HealthCheck RPC.
type QdrantPinger struct {
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns "qdrant".
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls HealthCheck.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if _, err := p.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// EgressPinger checks that the extractor can reach the network by sending a
// HEAD request to a known URL. Any response below 500 counts as reachable.
type EgressPinger struct {
	url    string
	client *http.Client
}

// NewEgressPinger constructs an EgressPinger for url. A nil client uses
// http.DefaultClient; the deadline comes from the context.
func NewEgressPinger(url string, client *http.Client) *EgressPinger {
	if client == nil {
		client = http.DefaultClient
	}
	return &EgressPinger{url: url, client: client}
}

// Name returns "egress".
func (p *EgressPinger) Name() string { return "egress" }

// Ping sends HEAD to the configured URL.
func (p *EgressPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("head %s: %w", p.url, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("head %s: status %d", p.url, resp.StatusCode)
	}
	return nil
}
