package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/embedder"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/retrieval"
	"github.com/54b3r/docqa-go/internal/server"
)

// NewServeCmd constructs the `docqa serve` command, which exposes retrieval
// as a JSON API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docqa HTTP API",
		Long: `Start the docqa HTTP server.

Routes:
  POST /api/retrieve   answer a batch of questions about a document
  POST /api/chunk      show the fragments a strategy produces
  POST /api/classify   classify a question
  GET  /api/history    recent runs
  GET  /api/health     liveness
  GET  /api/ready      readiness of the extractor egress, embedder, index
                       backend and, optionally, the chat model
  GET  /metrics        Prometheus metrics

Local document paths are refused unless DOCQA_DOCUMENT_ROOT names the
directory they must live under; relative paths resolve against it.

Set DOCQA_API_KEY to require a Bearer token on every /api route except
health and readiness. DOCQA_RATE_LIMIT and DOCQA_RATE_BURST set the
per-client query budget; a retrieve batch costs one token per question.

DOCQA_READY_EGRESS_URL adds a HEAD request to that URL to the readiness
check. DOCQA_READY_CHECK_LLM=1 adds a one-token chat model call.

Examples:
  docqa serve
  docqa serve --port 9090
  DOCQA_DOCUMENT_ROOT=/srv/docs docqa serve
  INDEX_BACKEND=qdrant MODEL_PROVIDER=openai docqa serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			flush := setupTracing(log, "docqa serve")
			defer flush()

			p, err := buildPipeline(ctx, log, pipelineConfig{
				Metrics: retrieval.NewMetrics(prometheus.DefaultRegisterer),
				History: true,
				Served:  true,
			})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer p.Close()

			deps := buildDependencies(p)
			preflight(ctx, log, deps)

			svc := server.Services{
				Retriever: p.orchestrator,
				Extractor: p.extractor,
				Chunk:     p.options.Chunk,
				Completer: p.classifier,
			}
			if p.history != nil {
				svc.History = p.history
			}

			if !cmd.Flags().Changed("host") {
				if v := os.Getenv("DOCQA_HOST"); v != "" {
					host = v
				}
			}
			if !cmd.Flags().Changed("port") {
				port = envInt(log, "DOCQA_PORT", port)
			}

			srv, err := server.New(svc, &server.Config{
				Host:           host,
				Port:           port,
				Logger:         log,
				Dependencies:   deps,
				RateLimit:      envFloat(log, "DOCQA_RATE_LIMIT", 0),
				RateBurst:      envInt(log, "DOCQA_RATE_BURST", 0),
				APIKey:         os.Getenv("DOCQA_API_KEY"),
				RequestTimeout: envDuration(log, "DOCQA_REQUEST_TIMEOUT", 0),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (env DOCQA_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (env DOCQA_PORT)")

	return cmd
}

// buildDependencies collects the readiness checks for the configured pipeline.
// The chat model check costs tokens and is opt-in via DOCQA_READY_CHECK_LLM.
func buildDependencies(p *pipeline) []server.Dependency {
	var deps []server.Dependency

	if u := os.Getenv("DOCQA_READY_EGRESS_URL"); u != "" {
		deps = append(deps, server.Dependency{Role: server.RoleExtractor, Pinger: server.NewEgressPinger(u, nil)})
	}

	emb := p.embedder
	if b, ok := emb.(*embedder.Batched); ok {
		emb = b.Unwrap()
	}
	if pg, ok := emb.(server.Pinger); ok {
		deps = append(deps, server.Dependency{Role: server.RoleEmbedder, Pinger: pg})
	}
	if p.qdrant != nil {
		deps = append(deps, server.Dependency{Role: server.RoleIndex, Pinger: server.NewQdrantPinger(p.qdrant.Client())})
	}
	if os.Getenv("DOCQA_READY_CHECK_LLM") != "" && p.chatModel != nil {
		deps = append(deps, server.Dependency{
			Role:   server.RoleCompletion,
			Pinger: server.NewLLMPinger(p.chatModel, string(p.providerCfg.Backend)),
		})
	}
	return deps
}

// preflight pings every dependency once at startup. Failures are logged,
// not fatal: the server still starts and /api/ready reports the outage.
func preflight(ctx context.Context, log *slog.Logger, deps []server.Dependency) {
	if len(deps) == 0 {
		return
	}
	ready, checks := server.CheckAll(ctx, deps)
	if ready {
		log.Info("serve: dependency preflight ok", slog.Int("checks", len(checks)))
		return
	}
	for _, c := range checks {
		if !c.OK {
			log.Warn("serve: dependency unreachable; starting anyway",
				slog.String("role", string(c.Role)),
				slog.String("dependency", c.Name),
				slog.String("error", c.Error),
			)
		}
	}
}
