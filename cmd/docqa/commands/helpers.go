package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/docqa-go/internal/embedder"
	"github.com/54b3r/docqa-go/internal/extract"
	"github.com/54b3r/docqa-go/internal/provider"
	"github.com/54b3r/docqa-go/internal/query"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/responder"
	"github.com/54b3r/docqa-go/internal/retrieval"
	"github.com/54b3r/docqa-go/internal/store"
	"github.com/54b3r/docqa-go/internal/tracing"
)

// historyDisabled is the DOCQA_HISTORY_DB value that turns run history off.
const historyDisabled = "disabled"

// pipelineConfig selects the optional parts of a pipeline.
type pipelineConfig struct {
	// Options overrides retrieval.OptionsFromEnv when non-nil.
	Options *retrieval.Options
	// Metrics is passed to the orchestrator (nil records nothing).
	Metrics *retrieval.Metrics
	// History opens the run history store.
	History bool
	// Served marks a pipeline that answers network clients. Its extractor
	// refuses local paths unless DOCQA_DOCUMENT_ROOT confines them.
	Served bool
}

// pipeline holds every collaborator of one orchestrator so commands can
// reuse them (readiness checks, classify) and close them together.
type pipeline struct {
	orchestrator *retrieval.Orchestrator
	extractor    *extract.Extractor
	embedder     rag.Embedder
	chatModel    model.BaseChatModel
	providerCfg  *provider.Config
	responder    *responder.Responder
	// classifier and decomposer are responder copies at the classification
	// and sub-question temperatures.
	classifier responder.Completer
	decomposer responder.Completer
	options    retrieval.Options
	// qdrant is nil unless INDEX_BACKEND=qdrant.
	qdrant *rag.QdrantFactory
	// history is nil when run history is disabled or failed to open.
	history *store.SQLiteStore
}

// Close releases the Qdrant connection and the history database.
func (p *pipeline) Close() {
	if p.qdrant != nil {
		_ = p.qdrant.Close()
	}
	if p.history != nil {
		_ = p.history.Close()
	}
}

// buildPipeline resolves every collaborator from the environment and wires
// them into an orchestrator. The caller must Close the returned pipeline.
func buildPipeline(ctx context.Context, log *slog.Logger, pc pipelineConfig) (*pipeline, error) {
	p := &pipeline{extractor: newExtractor(log, pc.Served)}

	opts := retrieval.OptionsFromEnv()
	if pc.Options != nil {
		opts = *pc.Options
	}
	p.options = opts

	emb, err := newEmbedder(log)
	if err != nil {
		return nil, err
	}
	p.embedder = emb

	p.chatModel, p.providerCfg, err = newChatModel(ctx, log)
	if err != nil {
		return nil, err
	}
	p.responder, err = newResponder(p.chatModel, log)
	if err != nil {
		return nil, err
	}
	p.classifier, p.decomposer = queryCompleters(p.responder)

	factory, qf, err := newIndexFactory(log)
	if err != nil {
		return nil, err
	}
	p.qdrant = qf

	rc := &retrieval.Config{
		Extractor:    p.extractor,
		Embedder:     p.embedder,
		Responder:    p.responder,
		Completer:    p.decomposer,
		IndexFactory: factory,
		Metrics:      pc.Metrics,
		Logger:       log,
		Options:      &opts,
	}
	if pc.History {
		p.history = openHistory(log)
		// A nil *SQLiteStore must not become a non-nil interface.
		if p.history != nil {
			rc.History = p.history
		}
	}

	p.orchestrator, err = retrieval.New(rc)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to initialise orchestrator: %w", err)
	}
	return p, nil
}

// newExtractor builds the document extractor from EXTRACT_TIMEOUT,
// EXTRACT_USER_AGENT and DOCQA_DOCUMENT_ROOT. A served extractor without a
// document root accepts only http(s) URLs.
func newExtractor(log *slog.Logger, served bool) *extract.Extractor {
	cfg := &extract.Config{
		HTTPTimeout: envDuration(log, "EXTRACT_TIMEOUT", 0),
		UserAgent:   os.Getenv("EXTRACT_USER_AGENT"),
		Root:        os.Getenv("DOCQA_DOCUMENT_ROOT"),
	}
	switch {
	case served && cfg.Root == "":
		cfg.RemoteOnly = true
		log.Warn("DOCQA_DOCUMENT_ROOT not set; local documents are refused, only http(s) URLs are served")
	case cfg.Root != "":
		log.Info("local documents confined", slog.String("root", cfg.Root))
	}
	return extract.New(cfg, log)
}

// newEmbedder builds the batched embedder selected by EMBEDDING_PROVIDER.
func newEmbedder(log *slog.Logger) (rag.Embedder, error) {
	cfg := embedder.ConfigFromEnv()
	cfg.Warn(log, os.Getenv("EMBEDDING_PROVIDER") != "")
	emb, err := embedder.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised",
		slog.String("backend", cfg.Backend),
		slog.String("model", cfg.Model),
		slog.Int("batch_size", cfg.BatchSize),
	)
	return emb, nil
}

// newChatModel builds the chat model selected by MODEL_PROVIDER.
func newChatModel(ctx context.Context, log *slog.Logger) (model.BaseChatModel, *provider.Config, error) {
	cfg := provider.ConfigFromEnv()
	chatModel, err := provider.New(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised",
		slog.String("provider", string(cfg.Backend)),
		slog.String("model", cfg.ModelName()),
	)
	return chatModel, cfg, nil
}

// newResponder wraps the chat model with MAX_CONTEXT_TOKENS trimming.
func newResponder(chatModel model.BaseChatModel, log *slog.Logger) (*responder.Responder, error) {
	r, err := responder.New(chatModel, responder.Options{
		MaxContextTokens: envInt(log, "MAX_CONTEXT_TOKENS", 0),
		Logger:           log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialise responder: %w", err)
	}
	return r, nil
}

// queryCompleters returns r at the classification temperature and at the
// sub-question temperature.
func queryCompleters(r *responder.Responder) (classifier, decomposer responder.Completer) {
	return r.WithTemperature(query.ClassifyTemperature), r.WithTemperature(query.SubQuestionTemperature)
}

// newIndexFactory selects the similarity index backend from INDEX_BACKEND.
// The returned *rag.QdrantFactory is nil for the memory backend.
func newIndexFactory(log *slog.Logger) (rag.IndexFactory, *rag.QdrantFactory, error) {
	switch backend := strings.ToLower(strings.TrimSpace(os.Getenv("INDEX_BACKEND"))); backend {
	case "", "memory":
		return rag.MemoryFactory{}, nil, nil
	case "qdrant":
		cfg := qdrantConfigFromEnv(log)
		qf, err := rag.NewQdrantFactory(cfg, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialise qdrant index backend: %w", err)
		}
		log.Info("index backend: qdrant",
			slog.String("host", cfg.Host),
			slog.Int("port", cfg.Port),
			slog.String("collection_prefix", cfg.CollectionPrefix),
		)
		return qf, qf, nil
	default:
		return nil, nil, fmt.Errorf("unknown INDEX_BACKEND %q; valid values: memory, qdrant", backend)
	}
}

// qdrantConfigFromEnv reads QDRANT_HOST, QDRANT_PORT, QDRANT_COLLECTION_PREFIX,
// QDRANT_API_KEY and QDRANT_TLS. Zero values take rag's defaults.
func qdrantConfigFromEnv(log *slog.Logger) *rag.QdrantConfig {
	useTLS, _ := strconv.ParseBool(os.Getenv("QDRANT_TLS"))
	return &rag.QdrantConfig{
		Host:             os.Getenv("QDRANT_HOST"),
		Port:             envInt(log, "QDRANT_PORT", 0),
		CollectionPrefix: os.Getenv("QDRANT_COLLECTION_PREFIX"),
		APIKey:           os.Getenv("QDRANT_API_KEY"),
		UseTLS:           useTLS,
	}
}

// historyPath resolves DOCQA_HISTORY_DB. It returns "" when history is
// disabled.
func historyPath() (string, error) {
	p := os.Getenv("DOCQA_HISTORY_DB")
	switch p {
	case historyDisabled:
		return "", nil
	case "":
		return store.DefaultDBPath()
	default:
		return p, nil
	}
}

// openHistory opens the run history store. History is best effort: any
// failure is logged and disables it.
func openHistory(log *slog.Logger) *store.SQLiteStore {
	path, err := historyPath()
	if err != nil {
		log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
		return nil
	}
	if path == "" {
		log.Info("history: disabled via DOCQA_HISTORY_DB=disabled")
		return nil
	}
	hs, err := store.Open(path)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil
	}
	log.Info("history: store opened", slog.String("path", path))
	return hs
}

// setupTracing registers the Langfuse handler globally when configured and
// returns the flush function to defer. It never returns nil.
func setupTracing(log *slog.Logger, name string) func() {
	handler, flush, ok := tracing.Setup(tracing.ConfigFromEnv(name))
	if !ok {
		log.Debug("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY or LANGFUSE_SECRET_KEY not set"))
		return func() {}
	}
	callbacks.AppendGlobalHandlers(handler)
	log.Info("langfuse tracing enabled")
	return flush
}

// envInt returns the integer value of key, or fallback when unset. A value
// that does not parse is logged and ignored.
func envInt(log *slog.Logger, key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		log.Warn("ignoring invalid integer setting", slog.String("key", key), slog.String("value", v))
		return fallback
	}
	return i
}

// envFloat returns the float value of key, or fallback when unset.
func envFloat(log *slog.Logger, key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warn("ignoring invalid number setting", slog.String("key", key), slog.String("value", v))
		return fallback
	}
	return f
}

// envDuration returns the Go duration value of key, or fallback when unset.
func envDuration(log *slog.Logger, key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn("ignoring invalid duration setting", slog.String("key", key), slog.String("value", v))
		return fallback
	}
	return d
}
