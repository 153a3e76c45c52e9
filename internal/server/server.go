// Package server implements the HTTP server that exposes the document
// retrieval pipeline as a JSON API. It is started by the `docqa serve`
// CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/docqa-go/internal/logging"
)

// serviceName labels tracing spans and auth challenges.
const serviceName = "docqa"

// defaultMaxBodyBytes caps JSON request bodies when Config.MaxBodyBytes is zero.
const defaultMaxBodyBytes = 1 << 20

// New constructs a Server from the provided services and config.
func New(svc Services, cfg *Config) (*Server, error) {
	if svc.Retriever == nil {
		return nil, fmt.Errorf("server: retriever must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 5 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must outlast the slowest retrieval batch.
		cfg.WriteTimeout = cfg.RequestTimeout + 30*time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		retriever: svc.Retriever,
		extractor: svc.Extractor,
		chunk:     svc.Chunk,
		completer: svc.Completer,
		history:   svc.History,
		cfg:       cfg,
		log:       cfg.Logger,
		deps:      cfg.Dependencies,
		metrics:   newServerMetrics(cfg.MetricsRegistry),
	}

	s.limiter, s.stopRL = newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.Logger)

	if cfg.APIKey == "" {
		s.log.Warn("server: API key not set, authentication disabled")
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// routes builds the handler tree. Health, readiness and metrics stay open;
// every other /api route is authenticated and the expensive ones are rate
// limited.
func (s *Server) routes() http.Handler {
	guard := newTokenGuard(s.cfg.APIKey)
	metered := func(class string, h http.HandlerFunc) http.Handler {
		return guard.protect(s.limiter.limit(class, h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/retrieve", instrument(s.metrics, "retrieve", metered(classRetrieve, s.handleRetrieve)))
	mux.Handle("POST /api/chunk", instrument(s.metrics, "chunk", metered(classChunk, s.handleChunk)))
	mux.Handle("POST /api/classify", instrument(s.metrics, "classify", metered(classClassify, s.handleClassify)))
	mux.Handle("GET /api/history", instrument(s.metrics, "history", guard.protect(http.HandlerFunc(s.handleHistory))))
	mux.Handle("GET /api/health", instrument(s.metrics, "health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", instrument(s.metrics, "ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	return tracing(serviceName, requestLogger(s.log, mux))
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.log.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// Handler returns the fully wrapped handler tree. Used by tests that drive
// the server through httptest.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}

// writeError sends an errorResponse carrying msg and the request ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Error: msg, RequestID: logging.RequestID(r.Context())})
}

// decodeJSON reads a size-capped JSON body into v and rejects unknown fields.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	limit := int64(defaultMaxBodyBytes)
	if s.cfg != nil && s.cfg.MaxBodyBytes > 0 {
		limit = s.cfg.MaxBodyBytes
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
