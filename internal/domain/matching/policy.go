package matching

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// MUTUAL MATCH POLICY
// Решает, превращается ли Accept во взаимное совпадение (Connection).
// Очередь не знает, как это решается: вероятностная заглушка и реальная
// проверка встречного интереса взаимозаменяемы.
// ══════════════════════════════════════════════════════════════════════════════

// MutualMatchPolicy определяет взаимность при Accept.
type MutualMatchPolicy interface {
	IsMutual(ctx context.Context, requesterID string, candidate Profile) (bool, error)
}

// MutualMatchFunc - адаптер функции к MutualMatchPolicy.
type MutualMatchFunc func(ctx context.Context, requesterID string, candidate Profile) (bool, error)

// IsMutual реализует MutualMatchPolicy.
func (f MutualMatchFunc) IsMutual(ctx context.Context, requesterID string, candidate Profile) (bool, error) {
	return f(ctx, requesterID, candidate)
}

// AlwaysMutual - каждый Accept становится Connection.
var AlwaysMutual MutualMatchPolicy = MutualMatchFunc(func(context.Context, string, Profile) (bool, error) {
	return true, nil
})

// NeverMutual - Accept никогда не становится Connection.
var NeverMutual MutualMatchPolicy = MutualMatchFunc(func(context.Context, string, Profile) (bool, error) {
	return false, nil
})

// ─────────────────────────────────────────────────────────────────────────────
// RandomPolicy
// ─────────────────────────────────────────────────────────────────────────────

// DefaultMutualProbability - вероятность "взаимного" совпадения по умолчанию.
const DefaultMutualProbability = 0.5

// RandomSource - источник равномерных чисел в [0,1).
type RandomSource interface {
	Float64() float64
}

// RandomPolicy - вероятностная заглушка взаимности.
type RandomPolicy struct {
	mu          sync.Mutex
	probability float64
	src         RandomSource
}

// NewRandomPolicy создаёт политику с вероятностью p (ограничивается [0,1]).
// src == nil - источник, засеянный текущим временем.
func NewRandomPolicy(p float64, src RandomSource) *RandomPolicy {
	if src == nil {
		src = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &RandomPolicy{
		probability: clamp01(p),
		src:         src,
	}
}

// Probability возвращает вероятность взаимности.
func (p *RandomPolicy) Probability() float64 {
	return p.probability
}

// IsMutual реализует MutualMatchPolicy.
func (p *RandomPolicy) IsMutual(_ context.Context, _ string, _ Profile) (bool, error) {
	// *rand.Rand не потокобезопасен.
	p.mu.Lock()
	v := p.src.Float64()
	p.mu.Unlock()
	return v < p.probability, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// IntentPolicy
// ─────────────────────────────────────────────────────────────────────────────

// IntentPolicy - реальная проверка встречного интереса.
// Accept записывает намерение requester -> candidate, и совпадение
// взаимно, если кандидат ранее принял requester.
type IntentPolicy struct {
	store IntentStore
}

// NewIntentPolicy создаёт политику поверх хранилища намерений.
func NewIntentPolicy(store IntentStore) *IntentPolicy {
	return &IntentPolicy{store: store}
}

// IsMutual реализует MutualMatchPolicy.
func (p *IntentPolicy) IsMutual(ctx context.Context, requesterID string, candidate Profile) (bool, error) {
	if err := p.store.RecordIntent(ctx, requesterID, candidate.ID); err != nil {
		return false, err
	}
	return p.store.HasIntent(ctx, candidate.ID, requesterID)
}
