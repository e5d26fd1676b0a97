// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/blake2b"

	"github.com/founderlink/founder-match/config"
	"github.com/founderlink/founder-match/internal/application/session"
	"github.com/founderlink/founder-match/internal/domain/matching"
	"github.com/founderlink/founder-match/internal/domain/shared"
	"github.com/founderlink/founder-match/pkg/logger"
)

var tracer = otel.Tracer("founder-match/query")

// ══════════════════════════════════════════════════════════════════════════════
// RANK CANDIDATES QUERY
// Снимок пула → ранжирование → кэш → новая сессия свайпов → событие.
// Ядро ранжирования не делает I/O: всё внешнее (провайдер профилей, Redis,
// шина событий) живёт здесь, вокруг него.
// ══════════════════════════════════════════════════════════════════════════════

// RankingCache хранит готовые выдачи.
type RankingCache interface {
	GetRanking(ctx context.Context, key string) ([]matching.ScoredCandidate, bool, error)
	SetRanking(ctx context.Context, key string, ranked []matching.ScoredCandidate, ttl time.Duration) error
}

// FeatureGate проверяет feature flags для requester.
type FeatureGate interface {
	IsEnabled(feature, requesterID string) bool
}

// RankingMetrics - метрики ранжирования.
type RankingMetrics interface {
	ObserveRanking(duration time.Duration, poolSize, returned int, cached bool)
	RankingFailed(reason string)
}

// RankCandidatesQuery содержит параметры ранжирования.
type RankCandidatesQuery struct {
	// RequesterID - ID профиля, для которого строится выдача.
	RequesterID string

	// Limit - размер выдачи (0 = по умолчанию).
	Limit int

	// SkipCache - всегда пересчитывать.
	SkipCache bool
}

// Validate проверяет корректность параметров.
func (q *RankCandidatesQuery) Validate() error {
	if q.RequesterID == "" {
		return errors.New("requester_id is required")
	}
	if q.Limit < 0 {
		return errors.New("limit must not be negative")
	}
	return nil
}

// RankCandidatesResult - результат ранжирования.
type RankCandidatesResult struct {
	SessionID   string                     `json:"session_id"`
	RequesterID string                     `json:"requester_id"`
	Candidates  []matching.ScoredCandidate `json:"candidates"`
	PoolSize    int                        `json:"pool_size"`
	Cached      bool                       `json:"cached"`
	GeneratedAt time.Time                  `json:"generated_at"`
}

// RankConfig - настройки обработчика.
type RankConfig struct {
	DefaultLimit int
	Timeout      time.Duration
	CacheTTL     time.Duration
}

// DefaultRankConfig возвращает конфигурацию по умолчанию.
func DefaultRankConfig() RankConfig {
	return RankConfig{
		DefaultLimit: matching.DefaultLimit,
		Timeout:      2 * time.Second,
		CacheTTL:     5 * time.Minute,
	}
}

// RankCandidatesHandler обрабатывает запросы ранжирования.
type RankCandidatesHandler struct {
	profiles  matching.ProfileProvider
	ranker    *matching.Ranker
	sessions  *session.Registry
	cache     RankingCache
	features  FeatureGate
	publisher shared.EventPublisher
	metrics   RankingMetrics
	log       *logger.Logger
	config    RankConfig
	now       func() time.Time
}

// RankOption настраивает RankCandidatesHandler.
type RankOption func(*RankCandidatesHandler)

// WithRankingCache подключает кэш выдач.
func WithRankingCache(c RankingCache) RankOption {
	return func(h *RankCandidatesHandler) { h.cache = c }
}

// WithFeatureGate подключает feature flags.
func WithFeatureGate(g FeatureGate) RankOption {
	return func(h *RankCandidatesHandler) { h.features = g }
}

// WithPublisher подключает шину событий.
func WithPublisher(p shared.EventPublisher) RankOption {
	return func(h *RankCandidatesHandler) { h.publisher = p }
}

// WithRankingMetrics подключает метрики.
func WithRankingMetrics(m RankingMetrics) RankOption {
	return func(h *RankCandidatesHandler) { h.metrics = m }
}

// WithLogger задаёт логгер.
func WithLogger(l *logger.Logger) RankOption {
	return func(h *RankCandidatesHandler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithRankConfig задаёт настройки.
func WithRankConfig(cfg RankConfig) RankOption {
	return func(h *RankCandidatesHandler) { h.config = cfg }
}

// NewRankCandidatesHandler создаёт новый обработчик.
func NewRankCandidatesHandler(
	profiles matching.ProfileProvider,
	ranker *matching.Ranker,
	sessions *session.Registry,
	opts ...RankOption,
) *RankCandidatesHandler {
	h := &RankCandidatesHandler{
		profiles: profiles,
		ranker:   ranker,
		sessions: sessions,
		log:      logger.NewNop(),
		config:   DefaultRankConfig(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.With(logger.Component("rank_candidates"))
	return h
}

// Handle ранжирует пул провайдера для requester и открывает новую сессию.
func (h *RankCandidatesHandler) Handle(ctx context.Context, query RankCandidatesQuery) (*RankCandidatesResult, error) {
	ctx, span := tracer.Start(ctx, "RankCandidates",
		trace.WithAttributes(attribute.String("matching.requester_id", query.RequesterID)),
	)
	defer span.End()

	result, err := h.handle(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if h.metrics != nil {
			h.metrics.RankingFailed(failureReason(err))
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("matching.pool_size", result.PoolSize),
		attribute.Int("matching.returned", len(result.Candidates)),
		attribute.Bool("matching.cached", result.Cached),
	)
	return result, nil
}

func (h *RankCandidatesHandler) handle(ctx context.Context, query RankCandidatesQuery) (*RankCandidatesResult, error) {
	start := h.now()

	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "RankCandidates", shared.ErrValidation, err.Error(), err)
	}
	limit := query.Limit
	if limit == 0 {
		limit = h.config.DefaultLimit
	}

	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	requester, err := h.profiles.GetProfile(ctx, query.RequesterID)
	if err != nil {
		return nil, err
	}
	pool, err := h.profiles.ListCandidates(ctx, query.RequesterID)
	if err != nil {
		return nil, err
	}

	log := h.log.With(logger.RequesterID(requester.ID), logger.PoolSize(len(pool)))

	useCache := h.cache != nil && !query.SkipCache &&
		(h.features == nil || h.features.IsEnabled(config.FeatureRankingCache, requester.ID))

	var (
		ranked []matching.ScoredCandidate
		cached bool
		key    string
	)
	if useCache {
		key = RankCacheKey(*requester, pool, limit)
		hit, ok, err := h.cache.GetRanking(ctx, key)
		switch {
		case err != nil:
			log.Warn("ranking cache read failed", logger.Err(err))
		case ok:
			ranked, cached = hit, true
		}
	}

	if !cached {
		ranked, err = h.ranker.Rank(ctx, *requester, pool, limit)
		if err != nil {
			return nil, err
		}
		if useCache {
			if err := h.cache.SetRanking(ctx, key, ranked, h.config.CacheTTL); err != nil {
				log.Warn("ranking cache write failed", logger.Err(err))
			}
		}
	}

	sess := h.sessions.Open(*requester, ranked)
	latency := h.now().Sub(start)

	log.Info("candidates ranked",
		logger.SessionID(sess.ID),
		logger.Int("returned", len(ranked)),
		logger.Bool("cached", cached),
		logger.Latency(latency),
	)

	if h.publisher != nil {
		event := matching.NewCandidatesRankedEvent(sess.ID, *requester, ranked, len(pool), cached)
		if err := h.publisher.Publish(event); err != nil {
			log.Warn("failed to publish ranking event", logger.Err(err))
		}
	}
	if h.metrics != nil {
		h.metrics.ObserveRanking(latency, len(pool), len(ranked), cached)
	}

	return &RankCandidatesResult{
		SessionID:   sess.ID,
		RequesterID: requester.ID,
		Candidates:  ranked,
		PoolSize:    len(pool),
		Cached:      cached,
		GeneratedAt: h.now().UTC(),
	}, nil
}

// rankCacheVersion меняется при изменении правил скоринга.
const rankCacheVersion = "v1"

// RankCacheKey - детерминированный ключ выдачи: blake2b от (requester, пул, limit).
// Любое изменение профиля в пуле даёт новый ключ.
func RankCacheKey(requester matching.Profile, pool []matching.Profile, limit int) string {
	h, _ := blake2b.New256(nil)
	enc := json.NewEncoder(h)
	_ = enc.Encode(requester)
	_ = enc.Encode(pool)
	h.Write([]byte(strconv.Itoa(limit)))
	return "ranking:" + rankCacheVersion + ":" + requester.ID + ":" + hex.EncodeToString(h.Sum(nil))
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, matching.ErrRankingTimeout):
		return "timeout"
	case shared.IsValidation(err):
		return "invalid_input"
	case shared.IsNotFound(err):
		return "not_found"
	default:
		return "internal"
	}
}
