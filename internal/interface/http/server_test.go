package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/founderlink/founder-match/config"
	"github.com/founderlink/founder-match/internal/application/command"
	"github.com/founderlink/founder-match/internal/application/query"
	"github.com/founderlink/founder-match/internal/application/session"
	"github.com/founderlink/founder-match/internal/domain/matching"
	"github.com/founderlink/founder-match/internal/infrastructure/snapshot"
	"github.com/founderlink/founder-match/internal/interface/http/handlers"
	"github.com/founderlink/founder-match/pkg/logger"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────────────────────

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	RequestID string          `json:"request_id"`
}

type recordedRequest struct {
	method, route string
	status        int
}

type fakeHTTPMetrics struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (m *fakeHTTPMetrics) ObserveHTTPRequest(method, route string, status int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, recordedRequest{method, route, status})
}

type memoryExplanations map[string]string

func (m memoryExplanations) SaveExplanation(_ context.Context, req, cand, text string) error {
	m[req+"/"+cand] = text
	return nil
}

func (m memoryExplanations) GetExplanation(_ context.Context, req, cand string) (string, bool, error) {
	text, ok := m[req+"/"+cand]
	return text, ok, nil
}

func testProfiles() []matching.Profile {
	return []matching.Profile{
		{ID: "founder-1", Role: matching.RoleFounder, Location: "Bangalore, India",
			Stage: matching.StageEarlyTraction, Skills: []string{"product"},
			LookingFor: []string{"engineering"}, Industry: "fintech"},
		{ID: "cofounder-1", Role: matching.RoleCoFounder, Location: "Bangalore, India",
			Skills: []string{"engineering"}},
		{ID: "mentor-1", Role: matching.RoleMentor, Location: "Pune, India",
			MentoringAreas: []string{"fundraising"}},
	}
}

type testEnv struct {
	server  *Server
	metrics *fakeHTTPMetrics
	health  *handlers.CompositeHealthChecker
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	log := logger.NewTest(t)
	provider := snapshot.NewProvider(testProfiles())
	registry := session.NewRegistry(session.WithPolicy(matching.NeverMutual))
	explanations := memoryExplanations{"founder-1/cofounder-1": "Both in Bangalore."}
	health := handlers.NewCompositeHealthChecker("test")
	metrics := &fakeHTTPMetrics{}

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	if mutate != nil {
		mutate(&cfg)
	}

	srv := NewServer(cfg, Dependencies{
		RankHandler:        query.NewRankCandidatesHandler(provider, matching.NewRanker(), registry),
		CurrentHandler:     query.NewGetCurrentCandidateHandler(registry),
		ConnectionsHandler: query.NewListConnectionsHandler(registry, nil, log),
		ExplanationHandler: query.NewGetExplanationHandler(explanations),
		SwipeHandler:       command.NewSwipeHandler(registry, command.WithLogger(log)),
		HealthChecker:      health,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		}),
		Metrics: metrics,
		Logger:  log,
		Version: "test",
	})
	return &testEnv{server: srv, metrics: metrics, health: health}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestSessionFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, body := env.do(t, http.MethodPost, "/api/v1/rankings", RankRequest{RequesterID: "founder-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, body.Success)
	assert.NotEmpty(t, body.RequestID)
	assert.Equal(t, body.RequestID, rec.Header().Get("X-Request-ID"))

	var ranked query.RankCandidatesResult
	require.NoError(t, json.Unmarshal(body.Data, &ranked))
	require.Len(t, ranked.Candidates, 2)
	assert.Equal(t, "cofounder-1", ranked.Candidates[0].ID())

	rec, body = env.do(t, http.MethodGet, "/api/v1/sessions/founder-1/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var current query.CurrentCandidateResult
	require.NoError(t, json.Unmarshal(body.Data, &current))
	require.NotNil(t, current.Candidate)
	assert.Equal(t, "cofounder-1", current.Candidate.ID())

	// Accepting someone other than the head is a state conflict.
	rec, body = env.do(t, http.MethodPost, "/api/v1/sessions/founder-1/accept", SwipeRequest{CandidateID: "mentor-1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "conflict", body.Error.Code)

	rec, body = env.do(t, http.MethodPost, "/api/v1/sessions/founder-1/accept", SwipeRequest{CandidateID: "cofounder-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var outcome command.SwipeOutcome
	require.NoError(t, json.Unmarshal(body.Data, &outcome))
	assert.False(t, outcome.Connected)
	require.NotNil(t, outcome.Next)
	assert.Equal(t, "mentor-1", outcome.Next.ID())

	rec, _ = env.do(t, http.MethodPost, "/api/v1/sessions/founder-1/connect", SwipeRequest{CandidateID: "mentor-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = env.do(t, http.MethodGet, "/api/v1/sessions/founder-1/connections", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var conns query.ConnectionsResult
	require.NoError(t, json.Unmarshal(body.Data, &conns))
	assert.Equal(t, []string{"mentor-1"}, conns.IDs)
}

func TestRankErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"missing requester", map[string]any{"limit": 3}, http.StatusBadRequest, "validation_error"},
		{"negative limit", map[string]any{"requester_id": "founder-1", "limit": -1}, http.StatusBadRequest, "validation_error"},
		{"unknown field", map[string]any{"requester_id": "founder-1", "extra": true}, http.StatusBadRequest, "invalid_json"},
		{"unknown requester", RankRequest{RequesterID: "ghost"}, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := env.do(t, http.MethodPost, "/api/v1/rankings", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			require.NotNil(t, body.Error)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.False(t, body.Success)
		})
	}
}

func TestValidationDetailsUseJSONNames(t *testing.T) {
	env := newTestEnv(t, nil)

	_, body := env.do(t, http.MethodPost, "/api/v1/rankings", map[string]any{})
	require.NotNil(t, body.Error)
	assert.Equal(t, map[string]any{"requester_id": "required"}, body.Error.Details)
}

func TestSwipeWithoutSession(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, body := env.do(t, http.MethodPost, "/api/v1/sessions/founder-1/reject", SwipeRequest{CandidateID: "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, body.Error)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/sessions/founder-1/superlike", SwipeRequest{CandidateID: "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExplanationEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, body := env.do(t, http.MethodGet, "/api/v1/explanations/founder-1/cofounder-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res query.ExplanationResult
	require.NoError(t, json.Unmarshal(body.Data, &res))
	assert.True(t, res.Ready)
	assert.Equal(t, "Both in Bangalore.", res.Text)

	rec, _ = env.do(t, http.MethodGet, "/api/v1/explanations/founder-1/mentor-1", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, _ := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	env.health.AddOptionalCheck("redis", func(context.Context) error { return errors.New("connection refused") })
	rec, body := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var status handlers.HealthStatus
	require.NoError(t, json.Unmarshal(body.Data, &status))
	assert.True(t, status.Degraded)
	assert.Equal(t, "degraded: redis", status.Message)

	env.health.AddCheck("postgres", func(context.Context) error { return errors.New("down") })
	rec, _ = env.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics\n", rec.Body.String())
}

func TestMetricsUseRoutePattern(t *testing.T) {
	env := newTestEnv(t, nil)

	env.do(t, http.MethodGet, "/api/v1/sessions/founder-1/current", nil)
	env.do(t, http.MethodGet, "/nope/nope", nil)

	env.metrics.mu.Lock()
	defer env.metrics.mu.Unlock()
	require.Len(t, env.metrics.requests, 2)
	assert.Equal(t, recordedRequest{"GET", "/api/v1/sessions/{requesterID}/current", http.StatusNotFound}, env.metrics.requests[0])
	assert.Equal(t, "unmatched", env.metrics.requests[1].route)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.RateLimitPerMinute = 2 })

	for range 2 {
		rec, _ := env.do(t, http.MethodGet, "/api/v1/sessions/founder-1/connections", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec, body := env.do(t, http.MethodGet, "/api/v1/sessions/founder-1/connections", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "rate_limited", body.Error.Code)

	// Probes are never limited.
	rec, _ = env.do(t, http.MethodGet, "/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitIgnoresForwardedHeadersFromUntrustedPeer(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.RateLimitPerMinute = 1 })

	codes := make([]int, 0, 5)
	for i := range 5 {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/founder-1/connections", nil)
		req.RemoteAddr = "203.0.113.7:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("10.1.0.%d", i))
		rec := httptest.NewRecorder()
		env.server.Handler().ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{200, 429, 429, 429, 429}, codes)
	assert.Equal(t, 1, env.server.rateLimiter.Len())
}

func TestRateLimitHonoursTrustedProxy(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.RateLimitPerMinute = 1
		c.TrustedProxies = []string{"192.0.2.0/24"}
	})

	send := func(client string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/founder-1/connections", nil)
		req.RemoteAddr = "192.0.2.10:40000"
		req.Header.Set("X-Forwarded-For", client+", 192.0.2.11")
		rec := httptest.NewRecorder()
		env.server.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("198.51.100.1"))
	assert.Equal(t, http.StatusOK, send("198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.1"))
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.AllowedOrigins = []string{"https://app.example"} })

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/rankings", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	env := newTestEnv(t, nil)
	h := env.server.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.HTTPConfig{Port: 9090, RateLimitPerMinute: 30, EnableCORS: true})
	assert.Equal(t, "0.0.0.0:9090", cfg.Address())
	assert.Equal(t, 30, cfg.RateLimitPerMinute)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, 15*time.Second, cfg.ReadTimeout)
	assert.Empty(t, cfg.TrustedProxies)

	cfg = ConfigFrom(config.HTTPConfig{TrustedProxies: []string{"10.0.0.1"}})
	assert.Equal(t, []string{"10.0.0.1"}, cfg.TrustedProxies)
}
