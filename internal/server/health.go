package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/docqa-go/internal/logging"
)

// checkTimeout bounds each dependency ping of a readiness check.
const checkTimeout = 5 * time.Second

// Role names the pipeline collaborator a readiness check stands for.
type Role string

const (
	// RoleExtractor covers outbound fetches of web pages and remote PDFs.
	RoleExtractor Role = "extractor"
	// RoleEmbedder covers the embedding backend.
	RoleEmbedder Role = "embedder"
	// RoleIndex covers the similarity index backend.
	RoleIndex Role = "index"
	// RoleCompletion covers the chat model that writes answers and
	// sub-questions.
	RoleCompletion Role = "completion"
)

// Pinger reports whether one backend is reachable. Implementations must be
// safe for concurrent use.
type Pinger interface {
	Ping(ctx context.Context) error
	// Name labels the backend, e.g. "ollama" or "qdrant".
	Name() string
}

// Dependency binds a Pinger to the role it checks.
type Dependency struct {
	Role   Role
	Pinger Pinger
}

// Check is the outcome of pinging one Dependency.
type Check struct {
	Role      Role   `json:"role"`
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// CheckAll pings every dependency concurrently, each under checkTimeout, and
// returns the checks in dependency order. ready is false when any check failed.
func CheckAll(ctx context.Context, deps []Dependency) (ready bool, checks []Check) {
	checks = make([]Check, len(deps))
	var g errgroup.Group
	for i, p := range deps {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()

			start := time.Now()
			err := p.Pinger.Ping(pctx)
			c := Check{
				Role:      p.Role,
				Name:      p.Pinger.Name(),
				OK:        err == nil,
				LatencyMS: time.Since(start).Milliseconds(),
			}
			if err != nil {
				c.Error = err.Error()
			}
			checks[i] = c
			return nil
		})
	}
	_ = g.Wait()

	ready = true
	for _, c := range checks {
		ready = ready && c.OK
	}
	return ready, checks
}

// readyResponse is the JSON body of GET /api/ready.
type readyResponse struct {
	Ready  bool    `json:"ready"`
	Checks []Check `json:"checks"`
}

// handleReady handles GET /api/ready. It answers 200 when every pipeline
// collaborator is reachable and 503 otherwise. With no dependencies configured it
// reports ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ready, checks := CheckAll(r.Context(), s.deps)

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
		log := logging.FromContext(r.Context())
		for _, c := range checks {
			if !c.OK {
				log.Warn("readiness check failed",
					slog.String("role", string(c.Role)),
					slog.String("dependency", c.Name),
					slog.String("error", c.Error),
				)
			}
		}
	}
	writeJSON(w, r, status, readyResponse{Ready: ready, Checks: checks})
}
