package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePinger reports err from Ping after an optional delay.
type fakePinger struct {
	name  string
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fakePinger) Name() string { return f.name }

func (f *fakePinger) Ping(ctx context.Context) error {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

// newReadyTestServer builds a *Server with deps wired in.
func newReadyTestServer(deps ...Dependency) *Server {
	s := newTestServer()
	s.deps = deps
	return s
}

func decodeReady(t *testing.T, w *httptest.ResponseRecorder) readyResponse {
	t.Helper()
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var body readyResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestHandleHealth_OK(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	w := httptest.NewRecorder()
	s.handleHealth(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestCheckAll_OrderAndRoles(t *testing.T) {
	t.Parallel()

	deps := []Dependency{
		{Role: RoleExtractor, Pinger: &fakePinger{name: "egress", delay: 20 * time.Millisecond}},
		{Role: RoleEmbedder, Pinger: &fakePinger{name: "ollama", err: errors.New("connection refused")}},
		{Role: RoleIndex, Pinger: &fakePinger{name: "qdrant"}},
		{Role: RoleCompletion, Pinger: &fakePinger{name: "openai"}},
	}

	ready, checks := CheckAll(context.Background(), deps)

	assert.False(t, ready)
	require.Len(t, checks, 4)
	for i, d := range deps {
		assert.Equal(t, d.Role, checks[i].Role)
		assert.Equal(t, d.Pinger.Name(), checks[i].Name)
	}
	assert.True(t, checks[0].OK)
	assert.GreaterOrEqual(t, checks[0].LatencyMS, int64(20))
	assert.False(t, checks[1].OK)
	assert.Equal(t, "connection refused", checks[1].Error)
	assert.True(t, checks[2].OK)
	assert.Empty(t, checks[2].Error)
}

func TestCheckAll_RunsConcurrently(t *testing.T) {
	t.Parallel()

	slow := func(name string) Dependency {
		return Dependency{Role: RoleIndex, Pinger: &fakePinger{name: name, delay: 200 * time.Millisecond}}
	}
	start := time.Now()
	ready, checks := CheckAll(context.Background(), []Dependency{slow("a"), slow("b"), slow("c")})

	assert.True(t, ready)
	assert.Len(t, checks, 3)
	assert.Less(t, time.Since(start), 550*time.Millisecond)
}

func TestCheckAll_Empty(t *testing.T) {
	t.Parallel()

	ready, checks := CheckAll(context.Background(), nil)
	assert.True(t, ready)
	assert.NotNil(t, checks)
	assert.Empty(t, checks)
}

func TestCheckAll_HonoursCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ready, checks := CheckAll(ctx, []Dependency{
		{Role: RoleEmbedder, Pinger: &fakePinger{name: "ollama", delay: time.Minute}},
	})
	assert.False(t, ready)
	require.Len(t, checks, 1)
	assert.Equal(t, context.Canceled.Error(), checks[0].Error)
}

func TestHandleReady_NoDependencies(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer()
	w := httptest.NewRecorder()
	s.handleReady(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ready":true,"checks":[]}`, w.Body.String())
}

func TestHandleReady_AllReachable(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(
		Dependency{Role: RoleEmbedder, Pinger: &fakePinger{name: "ollama"}},
		Dependency{Role: RoleIndex, Pinger: &fakePinger{name: "qdrant"}},
	)
	w := httptest.NewRecorder()
	s.handleReady(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeReady(t, w)
	assert.True(t, body.Ready)
	require.Len(t, body.Checks, 2)
	assert.Equal(t, RoleEmbedder, body.Checks[0].Role)
	assert.Equal(t, RoleIndex, body.Checks[1].Role)
}

func TestHandleReady_DependencyDown(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(
		Dependency{Role: RoleExtractor, Pinger: &fakePinger{name: "egress"}},
		Dependency{Role: RoleIndex, Pinger: &fakePinger{name: "qdrant", err: errors.New("unavailable")}},
	)
	w := httptest.NewRecorder()
	s.handleReady(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decodeReady(t, w)
	assert.False(t, body.Ready)
	require.Len(t, body.Checks, 2)
	assert.True(t, body.Checks[0].OK)
	assert.Equal(t, Check{Role: RoleIndex, Name: "qdrant", Error: "unavailable", LatencyMS: body.Checks[1].LatencyMS}, body.Checks[1])
}

func TestHandleReady_ThroughRoutes(t *testing.T) {
	t.Parallel()

	embedder := &fakePinger{name: "ollama"}
	h := newServerWith(t, Services{Retriever: &fakeRetriever{}}, Config{
		APIKey:       "secret",
		Dependencies: []Dependency{{Role: RoleEmbedder, Pinger: embedder}},
	}).Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))
	require.Equal(t, http.StatusOK, w.Code, "readiness needs no token")
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
	assert.EqualValues(t, 1, embedder.calls.Load())
}

func TestEgressPinger(t *testing.T) {
	t.Parallel()

	var method atomic.Value
	status := atomic.Int32{}
	status.Store(http.StatusOK)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method.Store(r.Method)
		w.WriteHeader(int(status.Load()))
	}))
	t.Cleanup(ts.Close)

	p := NewEgressPinger(ts.URL, ts.Client())
	assert.Equal(t, "egress", p.Name())

	require.NoError(t, p.Ping(context.Background()))
	assert.Equal(t, http.MethodHead, method.Load())

	status.Store(http.StatusNotFound)
	assert.NoError(t, p.Ping(context.Background()), "any response below 500 means the network is reachable")

	status.Store(http.StatusServiceUnavailable)
	err := p.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestEgressPinger_Unreachable(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	ready, checks := CheckAll(context.Background(), []Dependency{
		{Role: RoleExtractor, Pinger: NewEgressPinger(url, nil)},
	})
	assert.False(t, ready)
	require.Len(t, checks, 1)
	assert.Equal(t, RoleExtractor, checks[0].Role)
	assert.Contains(t, checks[0].Error, "head "+url)
}
