// Package explain implements the HTTP client of the external explanation
// service, which turns a scored pair into a short human-readable pitch.
package explain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/founderlink/founder-match/config"
	"github.com/founderlink/founder-match/internal/domain/matching"
	"github.com/founderlink/founder-match/internal/domain/shared"
	"github.com/founderlink/founder-match/pkg/logger"
	"github.com/founderlink/founder-match/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ExplainPath is the endpoint relative to the base URL.
const ExplainPath = "/v1/explanations"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 64 << 10

// ClientConfig contains configuration for the explanation client.
type ClientConfig struct {
	BaseURL string
	APIKey  string

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// RequestsPerSecond and Burst configure the outbound limiter. Zero disables it.
	RequestsPerSecond float64
	Burst             int
}

// ConfigFrom adapts application settings.
func ConfigFrom(cfg config.ExplanationConfig) ClientConfig {
	return ClientConfig{
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		Timeout:           cfg.RequestTimeout,
		MaxRetries:        cfg.MaxRetries,
		RetryBaseDelay:    cfg.RetryBaseDelay,
		RetryMaxDelay:     cfg.RetryMaxDelay,
		RequestsPerSecond: cfg.RateLimit,
		Burst:             cfg.RateBurst,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// ErrEmptyExplanation is returned when the service answers without text.
var ErrEmptyExplanation = errors.New("explain: empty explanation")

// APIError is a non-2xx answer from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("explain: status %d: %s", e.StatusCode, e.Message)
}

// Temporary reports statuses worth retrying.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client implements matching.Explainer over HTTP.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	retrier    *retry.Retrier
	logger     *logger.Logger
}

// NewClient creates a new explanation client.
func NewClient(cfg ClientConfig, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := max(cfg.Burst, 1)
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	log = log.With(logger.Component("explain_client"))
	retrier := retry.ExplanationRetrier(cfg.MaxRetries, cfg.RetryBaseDelay, cfg.RetryMaxDelay).With(
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Debug("retrying explanation request",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Err(err),
			)
		}),
	)

	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		retrier:    retrier,
		logger:     log,
	}
}

type explainRequest struct {
	Requester matching.Profile         `json:"requester"`
	Candidate matching.ScoredCandidate `json:"candidate"`
}

type explainResponse struct {
	Explanation string `json:"explanation"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Explain asks the service for a pitch of the pair. Transient failures
// (network errors, 429, 5xx) are retried with backoff.
func (c *Client) Explain(ctx context.Context, requester matching.Profile, candidate matching.ScoredCandidate) (string, error) {
	body, err := json.Marshal(explainRequest{Requester: requester, Candidate: candidate})
	if err != nil {
		return "", shared.WrapError("explain", "Explain", shared.ErrInvalidInput, "failed to encode request", err)
	}

	text, err := retry.DoWithData(ctx, c.retrier, func(ctx context.Context) (string, error) {
		return c.doSingleRequest(ctx, body)
	})
	if err != nil {
		kind := shared.ErrExternalService
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Temporary() {
			kind = shared.ErrServiceUnavailable
		}
		if errors.Is(err, context.DeadlineExceeded) {
			kind = shared.ErrTimeout
		}
		return "", shared.WrapError("explain", "Explain", kind, "explanation request failed", err)
	}
	return text, nil
}

// doSingleRequest performs one HTTP attempt.
func (c *Client) doSingleRequest(ctx context.Context, body []byte) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+ExplainPath, bytes.NewReader(body))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", retry.Retryable(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", retry.Retryable(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
		if apiErr.Temporary() {
			return "", retry.Retryable(apiErr)
		}
		return "", apiErr
	}

	var out explainResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	text := strings.TrimSpace(out.Explanation)
	if text == "" {
		return "", ErrEmptyExplanation
	}
	return text, nil
}

func errorMessage(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
