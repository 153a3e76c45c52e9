package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/responder"
	"github.com/54b3r/docqa-go/internal/retrieval"
	"github.com/54b3r/docqa-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// RequestTimeout bounds one /api/retrieve invocation (default: 5m).
	RequestTimeout time.Duration
	// MaxBodyBytes caps JSON request bodies (default: 1 MiB).
	MaxBodyBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Dependencies are checked by GET /api/ready, in report order.
	// If empty, /api/ready returns 200 with no checks.
	Dependencies []Dependency
	// RateLimit is the sustained query rate allowed per client and route
	// class (queries/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the per-client bucket size in queries, and the most one
	// retrieve batch is charged. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server metrics (default: prometheus.DefaultRegisterer).
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics (default: prometheus.DefaultGatherer).
	MetricsGatherer prometheus.Gatherer
}

// Services are the collaborators behind the API. Retriever is required;
// the others enable their endpoints when set.
type Services struct {
	// Retriever answers POST /api/retrieve. *retrieval.Orchestrator satisfies it.
	Retriever retriever
	// Extractor feeds POST /api/chunk.
	Extractor retrieval.Extractor
	// Chunk holds the default chunker parameters for POST /api/chunk.
	Chunk chunker.Params
	// Completer backs POST /api/classify.
	Completer responder.Completer
	// History backs GET /api/history.
	History historyReader
}

// retriever is the interface handleRetrieve calls. Tests inject a fake.
type retriever interface {
	Run(ctx context.Context, mode retrieval.Mode, document string, strategy chunker.Strategy, queries []string) (*retrieval.Response, error)
}

// historyReader is the read side of the run history store.
type historyReader interface {
	Recent(ctx context.Context, document string, n int) ([]store.Run, error)
}

// Server is the HTTP server that exposes the retrieval pipeline.
type Server struct {
	// retriever runs retrieval invocations.
	retriever retriever
	// extractor turns a document reference into text for /api/chunk.
	extractor retrieval.Extractor
	// chunk is the default chunker configuration for /api/chunk.
	chunk chunker.Params
	// completer classifies queries for /api/classify.
	completer responder.Completer
	// history lists past runs for /api/history.
	history historyReader
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// deps are checked by GET /api/ready.
	deps []Dependency
	// metrics holds the Prometheus collectors owned by the server.
	metrics *serverMetrics
	// limiter meters query volume per client on the expensive routes.
	limiter *rateLimiter
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// retrieveRequest is the JSON body for POST /api/retrieve.
type retrieveRequest struct {
	// Document is a local path or an http(s) URL.
	Document string `json:"document"`
	// Strategy is the chunking strategy (default: structure_based).
	Strategy string `json:"strategy"`
	// Mode is the retrieval mode (default: standard_retrieval).
	Mode string `json:"mode"`
	// Queries is the ordered batch of questions.
	Queries []string `json:"queries"`
}

// chunkRequest is the JSON body for POST /api/chunk.
type chunkRequest struct {
	// Document is a local path or an http(s) URL.
	Document string `json:"document"`
	// Strategy is the chunking strategy (default: structure_based).
	Strategy string `json:"strategy"`
	// Size overrides the fixed window length when non-zero.
	Size int `json:"chunk_size,omitempty"`
	// Overlap overrides the fixed window overlap when Size is set.
	Overlap int `json:"overlap,omitempty"`
	// Threshold overrides the semantic similarity threshold when non-nil.
	Threshold *float64 `json:"threshold,omitempty"`
}

// chunkResponse is the JSON response for POST /api/chunk.
type chunkResponse struct {
	Document  string         `json:"document"`
	Strategy  string         `json:"strategy"`
	Fragments []fragmentView `json:"fragments"`
}

// fragmentView is the wire form of a rag.Fragment.
type fragmentView struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

func viewFragments(frags []rag.Fragment) []fragmentView {
	out := make([]fragmentView, len(frags))
	for i, f := range frags {
		out[i] = fragmentView{Index: f.SequenceIndex, Text: f.Text}
	}
	return out
}

// classifyRequest is the JSON body for POST /api/classify.
type classifyRequest struct {
	Query string `json:"query"`
}

// classifyResponse is the JSON response for POST /api/classify.
type classifyResponse struct {
	Query    string `json:"query"`
	Category string `json:"category"`
}

// historyResponse is the JSON response for GET /api/history.
type historyResponse struct {
	Runs []store.Run `json:"runs"`
}

// errorResponse is the JSON body of every non-2xx API reply.
type errorResponse struct {
	// Error is the human-readable failure.
	Error string `json:"error"`
	// Stage names the pipeline step that failed, when known.
	Stage string `json:"stage,omitempty"`
	// Query is the query being answered when the failure occurred.
	Query string `json:"query,omitempty"`
	// RequestID correlates the reply with server logs.
	RequestID string `json:"request_id,omitempty"`
}
