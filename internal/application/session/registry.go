// Package session хранит активные сессии свайпов по requester.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/founderlink/founder-match/internal/domain/matching"
	"github.com/founderlink/founder-match/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION REGISTRY
// Явный реестр вместо глобального состояния процесса.
// Каждый requester имеет не более одной активной очереди; новая выдача
// заменяет старую очередь, но Connections requester переживают смену сессий.
// RWMutex защищает только поиск и создание записей: мутации очереди
// сериализуются мьютексом самой очереди.
// ══════════════════════════════════════════════════════════════════════════════

// ErrSessionNotFound - у requester нет активной сессии.
var ErrSessionNotFound = shared.NewDomainError("session", "Get", shared.ErrNotFound, "no active session for requester")

// Session - одна выдача ранжирования, потребляемая свайпами.
type Session struct {
	ID          string
	RequesterID string
	Requester   matching.Profile
	Queue       *matching.CandidateQueue
	CreatedAt   time.Time

	lastActive atomic.Int64 // unix nanos
}

// LastActive возвращает время последнего обращения к сессии.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load()).UTC()
}

func (s *Session) touch(at time.Time) {
	s.lastActive.Store(at.UnixNano())
}

// Registry - реестр сессий.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*Session              // requesterID -> session
	connections map[string]*matching.Connections // requesterID -> connections

	policy matching.MutualMatchPolicy
	now    func() time.Time
	newID  func() string
}

// Option настраивает Registry.
type Option func(*Registry)

// WithPolicy задаёт политику взаимности для новых очередей.
func WithPolicy(p matching.MutualMatchPolicy) Option {
	return func(r *Registry) {
		if p != nil {
			r.policy = p
		}
	}
}

// WithClock подменяет часы (тесты).
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator подменяет генератор ID сессий.
func WithIDGenerator(gen func() string) Option {
	return func(r *Registry) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// NewRegistry создаёт пустой реестр.
// Без WithPolicy используется случайная политика с вероятностью 0.5.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		sessions:    make(map[string]*Session),
		connections: make(map[string]*matching.Connections),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.policy == nil {
		r.policy = matching.NewRandomPolicy(matching.DefaultMutualProbability, nil)
	}
	return r
}

// Open открывает новую сессию для requester поверх ранжированного списка.
// Предыдущая сессия того же requester закрывается.
func (r *Registry) Open(requester matching.Profile, ranked []matching.ScoredCandidate) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := r.connectionsLocked(requester.ID)
	s := &Session{
		ID:          r.newID(),
		RequesterID: requester.ID,
		Requester:   requester,
		CreatedAt:   r.now(),
		Queue: matching.NewCandidateQueue(requester.ID, ranked,
			matching.WithMutualMatchPolicy(r.policy),
			matching.WithConnections(conns),
			matching.WithMutualMatchHook(func(res matching.SwipeResult) {
				r.reciprocate(requester, res.Candidate.ID())
			}),
			matching.WithClock(r.now),
		),
	}
	s.touch(s.CreatedAt)
	r.sessions[requester.ID] = s
	return s
}

// reciprocate добавляет requester в связи кандидата: взаимное совпадение
// видно обеим сторонам. Вызывается под мьютексом очереди requester и
// берёт только мьютекс реестра.
func (r *Registry) reciprocate(requester matching.Profile, candidateID string) {
	r.Connections(candidateID).Add(requester)
}

// Get возвращает активную сессию requester и отмечает её активной.
func (r *Registry) Get(requesterID string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[requesterID]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch(r.now())
	return s, nil
}

// Connections возвращает связи requester (пустые, если их ещё нет).
func (r *Registry) Connections(requesterID string) *matching.Connections {
	r.mu.RLock()
	conns, ok := r.connections[requesterID]
	r.mu.RUnlock()
	if ok {
		return conns
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connectionsLocked(requesterID)
}

// Close закрывает сессию requester. Connections сохраняются.
func (r *Registry) Close(requesterID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[requesterID]; !ok {
		return false
	}
	delete(r.sessions, requesterID)
	return true
}

// SweepIdle закрывает сессии, к которым не обращались дольше maxAge,
// и возвращает их число. maxAge <= 0 ничего не закрывает.
func (r *Registry) SweepIdle(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	cutoff := r.now().Add(-maxAge)

	r.mu.Lock()
	defer r.mu.Unlock()

	closed := 0
	for id, s := range r.sessions {
		if s.LastActive().Before(cutoff) {
			delete(r.sessions, id)
			closed++
		}
	}
	return closed
}

// Len возвращает число активных сессий.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) connectionsLocked(requesterID string) *matching.Connections {
	conns, ok := r.connections[requesterID]
	if !ok {
		conns = matching.NewConnections(requesterID)
		r.connections[requesterID] = conns
	}
	return conns
}
