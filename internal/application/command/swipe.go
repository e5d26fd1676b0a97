// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/founderlink/founder-match/config"
	"github.com/founderlink/founder-match/internal/application/session"
	"github.com/founderlink/founder-match/internal/domain/matching"
	"github.com/founderlink/founder-match/internal/domain/shared"
	"github.com/founderlink/founder-match/pkg/logger"
	"github.com/founderlink/founder-match/pkg/retry"
)

var tracer = otel.Tracer("founder-match/command")

// ══════════════════════════════════════════════════════════════════════════════
// SWIPE COMMAND
// Applies Accept / Reject / Connect to the requester's active session.
// The queue transition is the source of truth: once it succeeds the swipe
// happened, and persisting the fact is best-effort with retries.
// ══════════════════════════════════════════════════════════════════════════════

// FeatureGate checks feature flags for a requester.
type FeatureGate interface {
	IsEnabled(feature, requesterID string) bool
}

// SwipeMetrics records swipe outcomes.
type SwipeMetrics interface {
	SwipeRecorded(action string, connected bool)
	SwipePersistFailed()
}

// SwipeCommand contains the data for one swipe.
type SwipeCommand struct {
	// RequesterID owns the session.
	RequesterID string

	// CandidateID is the candidate acted upon. For accept/reject it must be
	// the current head of the queue.
	CandidateID string

	// Action is accept, reject or connect.
	Action matching.SwipeAction
}

// Validate validates the command.
func (c SwipeCommand) Validate() error {
	if c.RequesterID == "" {
		return errors.New("swipe: requester_id is required")
	}
	if c.CandidateID == "" {
		return errors.New("swipe: candidate_id is required")
	}
	if !c.Action.IsValid() {
		return fmt.Errorf("swipe: unknown action %q", c.Action)
	}
	return nil
}

// SwipeOutcome is the result of a swipe.
type SwipeOutcome struct {
	matching.SwipeResult

	SessionID string              `json:"session_id"`
	State     matching.QueueState `json:"state"`

	// Next is the new head of the queue, if any.
	Next *matching.ScoredCandidate `json:"next,omitempty"`

	// Persisted reports whether the fact reached the connection store.
	Persisted bool `json:"persisted"`
}

// SwipeHandler handles swipe commands.
type SwipeHandler struct {
	sessions  *session.Registry
	store     matching.ConnectionStore
	retrier   *retry.Retrier
	publisher shared.EventPublisher
	features  FeatureGate
	metrics   SwipeMetrics
	log       *logger.Logger
}

// SwipeOption configures SwipeHandler.
type SwipeOption func(*SwipeHandler)

// WithConnectionStore persists swipe facts.
func WithConnectionStore(s matching.ConnectionStore) SwipeOption {
	return func(h *SwipeHandler) { h.store = s }
}

// WithRetrier overrides the persistence retrier.
func WithRetrier(r *retry.Retrier) SwipeOption {
	return func(h *SwipeHandler) {
		if r != nil {
			h.retrier = r
		}
	}
}

// WithPublisher sets the event publisher.
func WithPublisher(p shared.EventPublisher) SwipeOption {
	return func(h *SwipeHandler) { h.publisher = p }
}

// WithFeatureGate sets the feature flags.
func WithFeatureGate(g FeatureGate) SwipeOption {
	return func(h *SwipeHandler) { h.features = g }
}

// WithSwipeMetrics sets the metrics sink.
func WithSwipeMetrics(m SwipeMetrics) SwipeOption {
	return func(h *SwipeHandler) { h.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) SwipeOption {
	return func(h *SwipeHandler) {
		if l != nil {
			h.log = l
		}
	}
}

// NewSwipeHandler creates a new SwipeHandler.
func NewSwipeHandler(sessions *session.Registry, opts ...SwipeOption) *SwipeHandler {
	h := &SwipeHandler{
		sessions: sessions,
		retrier:  retry.DatabaseRetrier(),
		log:      logger.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.With(logger.Component("swipe"))
	return h
}

// Handle executes the swipe command.
func (h *SwipeHandler) Handle(ctx context.Context, cmd SwipeCommand) (*SwipeOutcome, error) {
	ctx, span := tracer.Start(ctx, "Swipe",
		trace.WithAttributes(
			attribute.String("matching.requester_id", cmd.RequesterID),
			attribute.String("matching.candidate_id", cmd.CandidateID),
			attribute.String("matching.action", string(cmd.Action)),
		),
	)
	defer span.End()

	outcome, err := h.handle(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Bool("matching.connected", outcome.Connected))
	return outcome, nil
}

func (h *SwipeHandler) handle(ctx context.Context, cmd SwipeCommand) (*SwipeOutcome, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("command", "Swipe", shared.ErrValidation, err.Error(), err)
	}

	sess, err := h.sessions.Get(cmd.RequesterID)
	if err != nil {
		return nil, err
	}

	var result matching.SwipeResult
	switch cmd.Action {
	case matching.SwipeAccept:
		result, err = sess.Queue.Accept(ctx, cmd.CandidateID)
	case matching.SwipeReject:
		result, err = sess.Queue.Reject(ctx, cmd.CandidateID)
	case matching.SwipeConnect:
		result, err = sess.Queue.Connect(cmd.CandidateID)
	}
	if err != nil {
		return nil, err
	}

	log := h.log.With(
		logger.SessionID(sess.ID),
		logger.RequesterID(result.RequesterID),
		logger.CandidateID(result.Candidate.ID()),
	)

	outcome := &SwipeOutcome{
		SwipeResult: result,
		SessionID:   sess.ID,
		State:       sess.Queue.State(),
		Persisted:   h.persist(ctx, result, log),
	}
	if next, ok := sess.Queue.Current(); ok {
		outcome.Next = &next
	}

	log.Info("swipe applied",
		logger.String("action", string(result.Action)),
		logger.Bool("connected", result.Connected),
		logger.Int("cursor", result.Cursor),
	)

	h.publish(matching.NewCandidateSwipedEvent(sess.ID, result), log)
	if result.Connected {
		h.publish(matching.NewConnectionMadeEvent(sess.ID, result), log)
	}
	if h.metrics != nil {
		h.metrics.SwipeRecorded(string(result.Action), result.Connected)
	}

	return outcome, nil
}

// persist saves the swipe fact. Failures are logged, never returned:
// the queue has already moved.
func (h *SwipeHandler) persist(ctx context.Context, result matching.SwipeResult, log *logger.Logger) bool {
	if h.store == nil {
		return false
	}
	if h.features != nil && !h.features.IsEnabled(config.FeatureSwipePersistence, result.RequesterID) {
		return false
	}

	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		err := h.store.SaveSwipe(ctx, result)
		if err != nil && shared.IsRetryable(err) {
			return retry.Retryable(err)
		}
		return err
	})
	if err != nil {
		log.Error("failed to persist swipe", logger.Err(err))
		if h.metrics != nil {
			h.metrics.SwipePersistFailed()
		}
		return false
	}
	return true
}

func (h *SwipeHandler) publish(event shared.Event, log *logger.Logger) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.Publish(event); err != nil {
		log.Warn("failed to publish event",
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
	}
}
