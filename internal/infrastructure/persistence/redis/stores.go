package redis

import (
	"context"
	"errors"
	"time"

	"github.com/founderlink/founder-match/internal/domain/matching"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANKING CACHE
// ══════════════════════════════════════════════════════════════════════════════

// RankingCache stores ranked shortlists as JSON under caller-built keys.
type RankingCache struct {
	cache *Cache
}

// NewRankingCache creates a new RankingCache.
func NewRankingCache(cache *Cache) *RankingCache {
	return &RankingCache{cache: cache}
}

// GetRanking returns ok == false on a miss.
func (r *RankingCache) GetRanking(ctx context.Context, key string) ([]matching.ScoredCandidate, bool, error) {
	var ranked []matching.ScoredCandidate
	err := r.cache.Get(ctx, key, &ranked)
	if errors.Is(err, ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapErr("GetRanking", "failed to read ranking", err)
	}
	return ranked, true, nil
}

// SetRanking stores a shortlist for ttl.
func (r *RankingCache) SetRanking(ctx context.Context, key string, ranked []matching.ScoredCandidate, ttl time.Duration) error {
	return wrapErr("SetRanking", "failed to store ranking", r.cache.Set(ctx, key, ranked, ttl))
}

// ══════════════════════════════════════════════════════════════════════════════
// INTENT STORE
// Односторонние намерения: intent:<from> - множество принятых ID.
// ══════════════════════════════════════════════════════════════════════════════

// IntentStore implements matching.IntentStore on Redis sets.
type IntentStore struct {
	cache *Cache
	ttl   time.Duration
}

// NewIntentStore creates a store; ttl <= 0 keeps intents forever.
func NewIntentStore(cache *Cache, ttl time.Duration) *IntentStore {
	return &IntentStore{cache: cache, ttl: ttl}
}

// RecordIntent records that fromID accepted toID. Idempotent.
func (s *IntentStore) RecordIntent(ctx context.Context, fromID, toID string) error {
	return wrapErr("RecordIntent", "failed to record intent", s.cache.SAdd(ctx, IntentKey(fromID), toID, s.ttl))
}

// HasIntent reports whether fromID accepted toID.
func (s *IntentStore) HasIntent(ctx context.Context, fromID, toID string) (bool, error) {
	ok, err := s.cache.SIsMember(ctx, IntentKey(fromID), toID)
	if err != nil {
		return false, wrapErr("HasIntent", "failed to read intent", err)
	}
	return ok, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EXPLANATION STORE
// ══════════════════════════════════════════════════════════════════════════════

// ExplanationStore implements matching.ExplanationStore with plain string keys.
type ExplanationStore struct {
	cache *Cache
	ttl   time.Duration
}

// NewExplanationStore creates a store; ttl <= 0 keeps texts forever.
func NewExplanationStore(cache *Cache, ttl time.Duration) *ExplanationStore {
	if ttl < 0 {
		ttl = 0
	}
	return &ExplanationStore{cache: cache, ttl: ttl}
}

// SaveExplanation stores the text for a pair.
func (s *ExplanationStore) SaveExplanation(ctx context.Context, requesterID, candidateID, text string) error {
	err := s.cache.SetString(ctx, ExplanationKey(requesterID, candidateID), text, s.ttl)
	return wrapErr("SaveExplanation", "failed to store explanation", err)
}

// GetExplanation returns ok == false when nothing is stored.
func (s *ExplanationStore) GetExplanation(ctx context.Context, requesterID, candidateID string) (string, bool, error) {
	text, err := s.cache.GetString(ctx, ExplanationKey(requesterID, candidateID))
	if errors.Is(err, ErrCacheMiss) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapErr("GetExplanation", "failed to read explanation", err)
	}
	return text, true, nil
}
