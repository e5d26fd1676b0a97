// Package eventhandler содержит обработчики доменных событий.
package eventhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/founderlink/founder-match/config"
	"github.com/founderlink/founder-match/internal/domain/matching"
	"github.com/founderlink/founder-match/internal/domain/shared"
	"github.com/founderlink/founder-match/pkg/circuitbreaker"
	"github.com/founderlink/founder-match/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON CANDIDATES RANKED HANDLER
// Обогащает верх выдачи текстом от внешнего сервиса объяснений.
//
// Работает асинхронно, вне горячего пути: оценка и причины уже отданы
// клиенту, объяснение появляется позже и ни на что не влияет.
// Сервис защищён circuit breaker'ом: при открытой цепи обработчик
// прекращает попытки до следующего события.
// ═══════════════════════════════════════════════════════════════════════════

// FeatureGate проверяет feature flags для requester.
type FeatureGate interface {
	IsEnabled(feature, requesterID string) bool
}

// ExplanationMetrics - метрики обогащения.
type ExplanationMetrics interface {
	ExplanationResult(outcome string)
}

// Исходы обогащения для метрик.
const (
	OutcomeExplained      = "explained"
	OutcomeCached         = "cached"
	OutcomeFailed         = "failed"
	OutcomeShortCircuited = "short_circuited"
)

// ExplanationConfig содержит конфигурацию обработчика.
type ExplanationConfig struct {
	// TopN - сколько лучших кандидатов обогащать.
	TopN int

	// RequestTimeout - бюджет одного вызова сервиса.
	RequestTimeout time.Duration
}

// DefaultExplanationConfig возвращает конфигурацию по умолчанию.
func DefaultExplanationConfig() ExplanationConfig {
	return ExplanationConfig{
		TopN:           3,
		RequestTimeout: 10 * time.Second,
	}
}

// OnCandidatesRankedHandler обрабатывает событие ранжирования.
type OnCandidatesRankedHandler struct {
	explainer matching.Explainer
	breaker   *circuitbreaker.CircuitBreaker
	store     matching.ExplanationStore
	publisher shared.EventPublisher
	features  FeatureGate
	metrics   ExplanationMetrics
	logger    *logger.Logger
	config    ExplanationConfig
}

// Option настраивает OnCandidatesRankedHandler.
type Option func(*OnCandidatesRankedHandler)

// WithBreaker задаёт circuit breaker.
func WithBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(h *OnCandidatesRankedHandler) {
		if cb != nil {
			h.breaker = cb
		}
	}
}

// WithPublisher подключает шину для ExplanationReadyEvent.
func WithPublisher(p shared.EventPublisher) Option {
	return func(h *OnCandidatesRankedHandler) { h.publisher = p }
}

// WithFeatureGate подключает feature flags.
func WithFeatureGate(g FeatureGate) Option {
	return func(h *OnCandidatesRankedHandler) { h.features = g }
}

// WithMetrics подключает метрики.
func WithMetrics(m ExplanationMetrics) Option {
	return func(h *OnCandidatesRankedHandler) { h.metrics = m }
}

// WithLogger задаёт логгер.
func WithLogger(l *logger.Logger) Option {
	return func(h *OnCandidatesRankedHandler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithConfig задаёт конфигурацию.
func WithConfig(cfg ExplanationConfig) Option {
	return func(h *OnCandidatesRankedHandler) { h.config = cfg }
}

// NewOnCandidatesRankedHandler создаёт обработчик.
func NewOnCandidatesRankedHandler(explainer matching.Explainer, store matching.ExplanationStore, opts ...Option) *OnCandidatesRankedHandler {
	h := &OnCandidatesRankedHandler{
		explainer: explainer,
		store:     store,
		breaker:   circuitbreaker.New("explanation-service"),
		logger:    logger.NewNop(),
		config:    DefaultExplanationConfig(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(logger.Component("explanations"))
	return h
}

// Handle реализует shared.EventHandler.
func (h *OnCandidatesRankedHandler) Handle(event shared.Event) error {
	var ranked matching.CandidatesRankedEvent
	switch e := event.(type) {
	case matching.CandidatesRankedEvent:
		ranked = e
	case *matching.CandidatesRankedEvent:
		ranked = *e
	default:
		return fmt.Errorf("on_candidates_ranked: unexpected event %T", event)
	}
	return h.HandleRanked(context.Background(), ranked)
}

// HandleRanked обогащает верх выдачи. Ошибки сервиса не возвращаются:
// объяснение - необязательное улучшение.
func (h *OnCandidatesRankedHandler) HandleRanked(ctx context.Context, event matching.CandidatesRankedEvent) error {
	requesterID := event.Requester.ID
	if h.features != nil && !h.features.IsEnabled(config.FeatureExplanations, requesterID) {
		return nil
	}

	log := h.logger.With(logger.SessionID(event.SessionID), logger.RequesterID(requesterID))

	top := event.Candidates
	if h.config.TopN > 0 && len(top) > h.config.TopN {
		top = top[:h.config.TopN]
	}

	for _, candidate := range top {
		if err := ctx.Err(); err != nil {
			return err
		}

		outcome := h.explainOne(ctx, event, candidate, log)
		h.record(outcome)
		if outcome == OutcomeShortCircuited {
			log.Debug("explanation service circuit open, skipping rest of shortlist",
				logger.String("breaker_state", h.breaker.State().String()),
			)
			break
		}
	}
	return nil
}

func (h *OnCandidatesRankedHandler) explainOne(
	ctx context.Context,
	event matching.CandidatesRankedEvent,
	candidate matching.ScoredCandidate,
	log *logger.Logger,
) string {
	requesterID := event.Requester.ID
	candidateID := candidate.ID()
	log = log.With(logger.CandidateID(candidateID))

	if _, ok, err := h.store.GetExplanation(ctx, requesterID, candidateID); err == nil && ok {
		return OutcomeCached
	}

	var text string
	err := h.breaker.Execute(ctx, func(ctx context.Context) error {
		callCtx := ctx
		if h.config.RequestTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, h.config.RequestTimeout)
			defer cancel()
		}
		var err error
		text, err = h.explainer.Explain(callCtx, event.Requester, candidate)
		return err
	})
	if err != nil {
		if circuitbreaker.IsRejection(err) {
			return OutcomeShortCircuited
		}
		log.Warn("explanation request failed", logger.Err(err))
		return OutcomeFailed
	}

	if err := h.store.SaveExplanation(ctx, requesterID, candidateID, text); err != nil {
		log.Warn("failed to store explanation", logger.Err(err))
		return OutcomeFailed
	}

	if h.publisher != nil {
		ready := matching.NewExplanationReadyEvent(event.SessionID, requesterID, candidateID, text)
		if err := h.publisher.Publish(ready); err != nil {
			log.Warn("failed to publish explanation event", logger.Err(err))
		}
	}
	return OutcomeExplained
}

func (h *OnCandidatesRankedHandler) record(outcome string) {
	if h.metrics != nil {
		h.metrics.ExplanationResult(outcome)
	}
}
