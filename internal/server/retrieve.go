package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/query"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/retrieval"
)

// defaultHistoryLimit is the number of runs GET /api/history returns when no
// limit is given; maxHistoryLimit caps the parameter.
const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// handleRetrieve handles POST /api/retrieve. It runs one retrieval
// invocation over the requested document and returns the per-query results
// in input order. Any failure aborts the batch and is mapped to a status by
// its error category.
func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req retrieveRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	mode := retrieval.ModeStandard
	if req.Mode != "" {
		m, ok := retrieval.ParseMode(req.Mode)
		if !ok {
			writeError(w, r, http.StatusBadRequest, "unknown mode "+strconv.Quote(req.Mode))
			return
		}
		mode = m
	}
	strategy, err := parseStrategy(req.Strategy)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	// The route took one token; the rest of the batch is charged here.
	if !s.limiter.charge(w, r, classRetrieve, len(req.Queries)-1) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout())
	defer cancel()

	s.metrics.retrieveInFlight.Inc()
	defer s.metrics.retrieveInFlight.Dec()

	start := time.Now()
	resp, err := s.retriever.Run(ctx, mode, req.Document, strategy, req.Queries)
	elapsed := time.Since(start)

	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
	}
	s.metrics.retrieveRequestsTotal.WithLabelValues(string(mode), outcomeFor(status)).Inc()
	s.metrics.retrieveDurationSeconds.WithLabelValues(string(mode)).Observe(elapsed.Seconds())

	if err != nil {
		log.Warn("retrieve failed",
			slog.String("mode", string(mode)),
			slog.String("document", req.Document),
			slog.Int("status", status),
			slog.Any("error", err),
		)
		body := errorResponse{Error: err.Error(), RequestID: logging.RequestID(r.Context())}
		var re *retrieval.RetrievalError
		if errors.As(err, &re) {
			body.Stage = string(re.Stage)
			body.Query = re.Query
		}
		writeJSON(w, r, status, body)
		return
	}

	log.Info("retrieve complete",
		slog.String("mode", string(mode)),
		slog.Int("queries", len(req.Queries)),
		slog.Duration("duration", elapsed),
	)
	writeJSON(w, r, http.StatusOK, resp)
}

// handleChunk handles POST /api/chunk. It extracts the document and returns
// its fragments without embedding them, for inspecting a strategy's output.
func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	if s.extractor == nil {
		writeError(w, r, http.StatusServiceUnavailable, "chunking is not configured")
		return
	}

	var req chunkRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Document) == "" {
		writeError(w, r, http.StatusBadRequest, "document is required")
		return
	}
	strategy, err := parseStrategy(req.Strategy)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	params := s.chunk
	if req.Size > 0 {
		params.Size = req.Size
		params.Overlap = req.Overlap
	}
	if req.Threshold != nil {
		params.Threshold = *req.Threshold
	}
	ch, err := chunker.New(strategy, params)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout())
	defer cancel()

	text, err := s.extractor.Extract(ctx, req.Document)
	if err != nil {
		err = rag.WithCategory(rag.ErrExtraction, err)
		logging.FromContext(r.Context()).Warn("chunk: extraction failed", slog.Any("error", err))
		writeError(w, r, statusFor(err), err.Error())
		return
	}
	frags, err := chunker.Fragments(ch, text, req.Document)
	if err != nil {
		writeError(w, r, statusFor(err), err.Error())
		return
	}

	writeJSON(w, r, http.StatusOK, chunkResponse{
		Document:  req.Document,
		Strategy:  string(strategy),
		Fragments: viewFragments(frags),
	})
}

// handleClassify handles POST /api/classify.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	if s.completer == nil {
		writeError(w, r, http.StatusServiceUnavailable, "classification is not configured")
		return
	}

	var req classifyRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, r, http.StatusBadRequest, "query is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout())
	defer cancel()

	c, err := query.Classify(ctx, s.completer, req.Query)
	if err != nil {
		err = rag.WithCategory(rag.ErrCompletion, err)
		logging.FromContext(r.Context()).Warn("classify failed", slog.Any("error", err))
		writeError(w, r, statusFor(err), err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, classifyResponse{Query: req.Query, Category: string(c.Category)})
}

// handleHistory handles GET /api/history?document=<ref>&limit=<n>.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, r, http.StatusServiceUnavailable, "run history is disabled")
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	runs, err := s.history.Recent(r.Context(), r.URL.Query().Get("document"), limit)
	if err != nil {
		logging.FromContext(r.Context()).Error("history query failed", slog.Any("error", err))
		writeError(w, r, http.StatusInternalServerError, "history query failed")
		return
	}
	writeJSON(w, r, http.StatusOK, historyResponse{Runs: runs})
}

// requestTimeout returns the per-request deadline, defaulting to 5 minutes.
func (s *Server) requestTimeout() time.Duration {
	if s.cfg == nil || s.cfg.RequestTimeout <= 0 {
		return 5 * time.Minute
	}
	return s.cfg.RequestTimeout
}

// parseStrategy defaults an empty strategy to structure_based.
func parseStrategy(s string) (chunker.Strategy, error) {
	if strings.TrimSpace(s) == "" {
		return chunker.StructureBased, nil
	}
	return chunker.ParseStrategy(s)
}

// statusFor maps an error category to an HTTP status. Deadlines are checked
// first because a timed-out collaborator call also carries its category.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, rag.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, rag.ErrExtraction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, rag.ErrEmbedding), errors.Is(err, rag.ErrCompletion):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// outcomeFor collapses a status into the retrieve counter's outcome label.
func outcomeFor(status int) string {
	switch {
	case status < 300:
		return "ok"
	case status == http.StatusGatewayTimeout:
		return "timeout"
	case status < 500:
		return "invalid"
	default:
		return "error"
	}
}
