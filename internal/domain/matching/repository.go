package matching

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXTERNAL COLLABORATORS
// Интерфейсы внешних систем. Реализации живут в infrastructure.
// Ядро скоринга ни один из них не вызывает.
// ══════════════════════════════════════════════════════════════════════════════

// ProfileProvider - источник read-only снимков профилей.
type ProfileProvider interface {
	// GetProfile возвращает профиль по ID.
	// Возвращает ошибку kind shared.ErrNotFound, если профиль не найден.
	GetProfile(ctx context.Context, id string) (*Profile, error)

	// ListCandidates возвращает пул кандидатов для requester.
	// Сам requester может попасть в пул: Ranker его отбросит.
	ListCandidates(ctx context.Context, requesterID string) ([]Profile, error)
}

// ConnectionStore сохраняет факты свайпов и связей.
// Сохранение - ответственность вызывающего, очередь только возвращает факты.
type ConnectionStore interface {
	// SaveSwipe сохраняет результат Accept/Reject/Connect.
	SaveSwipe(ctx context.Context, result SwipeResult) error

	// ListConnections возвращает ID связей requester в порядке создания.
	ListConnections(ctx context.Context, requesterID string) ([]string, error)
}

// IntentStore хранит односторонние намерения "A принял B".
type IntentStore interface {
	// RecordIntent записывает, что fromID принял toID. Идемпотентно.
	RecordIntent(ctx context.Context, fromID, toID string) error

	// HasIntent проверяет, принимал ли fromID кандидата toID.
	HasIntent(ctx context.Context, fromID, toID string) (bool, error)
}

// Explainer - внешний сервис обогащения объяснений (например, LLM).
// Вызывается асинхронно после ранжирования и никогда не влияет на оценку.
type Explainer interface {
	Explain(ctx context.Context, requester Profile, candidate ScoredCandidate) (string, error)
}

// ExplanationStore хранит тексты объяснений по паре (requester, кандидат).
type ExplanationStore interface {
	SaveExplanation(ctx context.Context, requesterID, candidateID, text string) error

	// GetExplanation возвращает ok == false, если объяснения нет.
	GetExplanation(ctx context.Context, requesterID, candidateID string) (text string, ok bool, err error)
}
