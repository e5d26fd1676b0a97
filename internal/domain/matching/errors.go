package matching

import (
	"github.com/founderlink/founder-match/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// Только структурные нарушения являются ошибками. Отсутствие опциональных
// полей профиля - это нейтральное значение фактора, а не ошибка.
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidProfile - у профиля нет ID или роли.
	// Кандидат с такой ошибкой выбрасывается из пула, ранжирование продолжается.
	ErrInvalidProfile = shared.NewDomainError("matching", "Score", shared.ErrInvalidInput, "profile must have a non-empty id and a known role")

	// ErrCandidateMismatch - Accept/Reject вызван не для текущего кандидата.
	ErrCandidateMismatch = shared.NewDomainError("matching", "Swipe", shared.ErrStateTransition, "candidate is not at the head of the queue")

	// ErrQueueExhausted - очередь пуста.
	ErrQueueExhausted = shared.NewDomainError("matching", "Swipe", shared.ErrInvalidState, "candidate queue is exhausted")

	// ErrRankingTimeout - ранжирование не уложилось в бюджет вызывающего.
	// Частичный результат никогда не возвращается.
	ErrRankingTimeout = shared.NewDomainError("matching", "Rank", shared.ErrTimeout, "ranking did not complete within the deadline")

	// ErrCandidateNotFound - кандидата нет в очереди сессии.
	ErrCandidateNotFound = shared.NewDomainError("matching", "Connect", shared.ErrNotFound, "candidate is not part of this session")
)
