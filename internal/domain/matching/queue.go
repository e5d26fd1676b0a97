package matching

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/founderlink/founder-match/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CANDIDATE QUEUE
// Очередь свайпов одной сессии requester. Accept/Reject всегда снимают
// голову очереди; Accept может продвинуть кандидата в Connections.
// Все мутации сериализуются мьютексом очереди; очереди разных requester
// друг с другом не конкурируют.
// ══════════════════════════════════════════════════════════════════════════════

// QueueState - состояние очереди.
type QueueState string

const (
	// QueueActive - есть текущий кандидат (cursor < len).
	QueueActive QueueState = "active"

	// QueueExhausted - кандидаты закончились (cursor >= len).
	QueueExhausted QueueState = "exhausted"
)

// SwipeAction - действие пользователя над кандидатом.
type SwipeAction string

const (
	SwipeAccept  SwipeAction = "accept"
	SwipeReject  SwipeAction = "reject"
	SwipeConnect SwipeAction = "connect"
)

// IsValid проверяет корректность действия.
func (a SwipeAction) IsValid() bool {
	switch a {
	case SwipeAccept, SwipeReject, SwipeConnect:
		return true
	default:
		return false
	}
}

// SwipeResult - факт перехода очереди, который вызывающий сохраняет сам.
type SwipeResult struct {
	RequesterID string          `json:"requester_id"`
	Action      SwipeAction     `json:"action"`
	Candidate   ScoredCandidate `json:"candidate"`

	// Connected - кандидат добавлен в Connections этим действием.
	Connected bool `json:"connected"`

	// AlreadyConnected - связь существовала ещё до действия.
	AlreadyConnected bool `json:"already_connected,omitempty"`

	// Cursor - позиция курсора после действия.
	Cursor int `json:"cursor"`

	OccurredAt time.Time `json:"occurred_at"`
}

// CandidateQueue - упорядоченная потребляемая выдача ранжирования.
type CandidateQueue struct {
	mu          sync.Mutex
	requesterID string
	items       []ScoredCandidate
	cursor      int
	policy      MutualMatchPolicy
	connections *Connections
	onMutual    func(SwipeResult)
	now         func() time.Time
}

// QueueOption настраивает CandidateQueue.
type QueueOption func(*CandidateQueue)

// WithMutualMatchPolicy задаёт политику взаимности.
func WithMutualMatchPolicy(p MutualMatchPolicy) QueueOption {
	return func(q *CandidateQueue) {
		if p != nil {
			q.policy = p
		}
	}
}

// WithConnections задаёт множество связей requester (общее для его сессий).
func WithConnections(c *Connections) QueueOption {
	return func(q *CandidateQueue) {
		if c != nil {
			q.connections = c
		}
	}
}

// WithMutualMatchHook вызывается после каждого взаимного Accept, уже под
// мьютексом очереди. Взаимность симметрична: хук отдаёт связь второй стороне.
func WithMutualMatchHook(fn func(SwipeResult)) QueueOption {
	return func(q *CandidateQueue) { q.onMutual = fn }
}

// WithClock задаёт источник времени.
func WithClock(now func() time.Time) QueueOption {
	return func(q *CandidateQueue) {
		if now != nil {
			q.now = now
		}
	}
}

// NewCandidateQueue создаёт очередь из ранжированного списка.
// Список копируется: внешние изменения на очередь не влияют.
func NewCandidateQueue(requesterID string, ranked []ScoredCandidate, opts ...QueueOption) *CandidateQueue {
	items := make([]ScoredCandidate, len(ranked))
	copy(items, ranked)

	q := &CandidateQueue{
		requesterID: requesterID,
		items:       items,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.policy == nil {
		q.policy = NewRandomPolicy(DefaultMutualProbability, nil)
	}
	if q.connections == nil {
		q.connections = NewConnections(requesterID)
	}
	return q
}

// RequesterID возвращает владельца очереди.
func (q *CandidateQueue) RequesterID() string {
	return q.requesterID
}

// Current возвращает текущего кандидата или false, если очередь исчерпана.
func (q *CandidateQueue) Current() (ScoredCandidate, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cursor >= len(q.items) {
		return ScoredCandidate{}, false
	}
	return q.items[q.cursor], true
}

// State возвращает состояние очереди.
func (q *CandidateQueue) State() QueueState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stateLocked()
}

func (q *CandidateQueue) stateLocked() QueueState {
	if q.cursor >= len(q.items) {
		return QueueExhausted
	}
	return QueueActive
}

// Cursor возвращает число обработанных кандидатов.
func (q *CandidateQueue) Cursor() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cursor
}

// Len возвращает исходную длину очереди.
func (q *CandidateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Remaining возвращает копию ещё не обработанных кандидатов.
func (q *CandidateQueue) Remaining() []ScoredCandidate {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]ScoredCandidate, len(q.items)-q.cursor)
	copy(out, q.items[q.cursor:])
	return out
}

// Connections возвращает множество связей requester.
func (q *CandidateQueue) Connections() *Connections {
	return q.connections
}

// Accept принимает текущего кандидата. Политика взаимности решает,
// станет ли он Connection. Ошибка политики оставляет очередь без изменений.
func (q *CandidateQueue) Accept(ctx context.Context, id string) (SwipeResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	head, err := q.headLocked(id)
	if err != nil {
		return SwipeResult{}, err
	}

	mutual, err := q.policy.IsMutual(ctx, q.requesterID, head.Profile)
	if err != nil {
		return SwipeResult{}, shared.WrapError("matching", "Accept", shared.ErrExternalService, "mutual match check failed", err)
	}

	q.cursor++
	result := q.resultLocked(SwipeAccept, head)
	if mutual {
		result.Connected = q.connections.Add(head.Profile)
		result.AlreadyConnected = !result.Connected
		if q.onMutual != nil {
			q.onMutual(result)
		}
	}
	return result, nil
}

// Reject отклоняет текущего кандидата. Никогда не создаёт Connection.
func (q *CandidateQueue) Reject(_ context.Context, id string) (SwipeResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	head, err := q.headLocked(id)
	if err != nil {
		return SwipeResult{}, err
	}

	q.cursor++
	return q.resultLocked(SwipeReject, head), nil
}

// Connect безусловно добавляет кандидата сессии в Connections,
// независимо от положения курсора. Курсор не двигается.
func (q *CandidateQueue) Connect(id string) (SwipeResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, item := range q.items {
		if item.Profile.ID != id {
			continue
		}
		result := q.resultLocked(SwipeConnect, item)
		result.Connected = q.connections.Add(item.Profile)
		result.AlreadyConnected = !result.Connected
		return result, nil
	}
	return SwipeResult{}, shared.Detail(ErrCandidateNotFound, fmt.Errorf("candidate %q", id))
}

// headLocked проверяет, что очередь активна и id совпадает с головой.
func (q *CandidateQueue) headLocked(id string) (ScoredCandidate, error) {
	if q.stateLocked() == QueueExhausted {
		return ScoredCandidate{}, ErrQueueExhausted
	}
	head := q.items[q.cursor]
	if head.Profile.ID != id {
		return ScoredCandidate{}, shared.Detail(ErrCandidateMismatch,
			fmt.Errorf("expected %q, got %q", head.Profile.ID, id))
	}
	return head, nil
}

func (q *CandidateQueue) resultLocked(action SwipeAction, c ScoredCandidate) SwipeResult {
	return SwipeResult{
		RequesterID: q.requesterID,
		Action:      action,
		Candidate:   c,
		Cursor:      q.cursor,
		OccurredAt:  q.now(),
	}
}
