package explain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/founderlink/founder-match/internal/domain/matching"
	"github.com/founderlink/founder-match/internal/domain/shared"
	"github.com/founderlink/founder-match/pkg/circuitbreaker"
	"github.com/founderlink/founder-match/pkg/logger"
)

var (
	requester = matching.Profile{ID: "founder-1", Role: matching.RoleFounder, Location: "Bangalore, India"}
	candidate = matching.ScoredCandidate{
		Profile: matching.Profile{ID: "cofounder-1", Role: matching.RoleCoFounder},
		Score:   97,
		Reasons: []string{"Complementary skills"},
	}
)

func testClient(t *testing.T, url string) *Client {
	return NewClient(ClientConfig{
		BaseURL:        url + "/",
		APIKey:         "test-key",
		Timeout:        time.Second,
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  2 * time.Millisecond,
	}, logger.NewTest(t))
}

func TestClient_Explain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, ExplainPath, r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req explainRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "founder-1", req.Requester.ID)
		assert.Equal(t, "cofounder-1", req.Candidate.ID())
		assert.Equal(t, matching.MatchScore(97), req.Candidate.Score)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"explanation":"  You both build fintech in Bangalore. "}`))
	}))
	defer srv.Close()

	text, err := testClient(t, srv.URL).Explain(context.Background(), requester, candidate)
	require.NoError(t, err)
	assert.Equal(t, "You both build fintech in Bangalore.", text)
}

func TestClient_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"warming up"}`))
			return
		}
		_, _ = w.Write([]byte(`{"explanation":"ok"}`))
	}))
	defer srv.Close()

	text, err := testClient(t, srv.URL).Explain(context.Background(), requester, candidate)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_ExhaustedRetriesAreRetryable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL).Explain(context.Background(), requester, candidate)
	require.Error(t, err)
	assert.True(t, shared.IsRetryable(err))
	assert.EqualValues(t, 3, calls.Load())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.True(t, circuitbreaker.RemoteFault(err))
}

func TestClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"candidate missing"}`))
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL).Explain(context.Background(), requester, candidate)
	require.Error(t, err)
	assert.True(t, shared.IsExternalService(err))
	assert.False(t, shared.IsRetryable(err))
	assert.Contains(t, err.Error(), "candidate missing")
	assert.EqualValues(t, 1, calls.Load())
	assert.False(t, circuitbreaker.RemoteFault(err))
}

func TestClient_EmptyExplanation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"explanation":"   "}`))
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL).Explain(context.Background(), requester, candidate)
	assert.ErrorIs(t, err, ErrEmptyExplanation)
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := testClient(t, srv.URL).Explain(ctx, requester, candidate)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrTimeout)
}
