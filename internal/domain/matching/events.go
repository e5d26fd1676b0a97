package matching

import (
	"github.com/founderlink/founder-match/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN EVENTS
// События подбора, на которые реагируют другие части системы
// (обогащение объяснений, аналитика, уведомления).
// ══════════════════════════════════════════════════════════════════════════════

// CandidatesRankedEvent - для requester построена новая выдача.
type CandidatesRankedEvent struct {
	shared.BaseEvent
	SessionID  string
	Requester  Profile
	Candidates []ScoredCandidate
	PoolSize   int
	Cached     bool
}

// NewCandidatesRankedEvent создаёт событие ранжирования.
func NewCandidatesRankedEvent(sessionID string, requester Profile, candidates []ScoredCandidate, poolSize int, cached bool) CandidatesRankedEvent {
	return CandidatesRankedEvent{
		BaseEvent:  shared.NewBaseEvent(shared.EventCandidatesRanked, requester.ID).WithCorrelationID(sessionID),
		SessionID:  sessionID,
		Requester:  requester,
		Candidates: candidates,
		PoolSize:   poolSize,
		Cached:     cached,
	}
}

// Payload реализует shared.Event.
func (e CandidatesRankedEvent) Payload() map[string]interface{} {
	ids := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		ids[i] = c.Profile.ID
	}
	return map[string]interface{}{
		"session_id":    e.SessionID,
		"requester_id":  e.Requester.ID,
		"candidate_ids": ids,
		"pool_size":     e.PoolSize,
		"cached":        e.Cached,
	}
}

// CandidateSwipedEvent - requester обработал кандидата (accept/reject/connect).
type CandidateSwipedEvent struct {
	shared.BaseEvent
	SessionID string
	Result    SwipeResult
}

// NewCandidateSwipedEvent создаёт событие свайпа.
func NewCandidateSwipedEvent(sessionID string, result SwipeResult) CandidateSwipedEvent {
	base := shared.NewBaseEvent(shared.EventCandidateSwiped, result.RequesterID).WithCorrelationID(sessionID)
	base.Timestamp = result.OccurredAt
	return CandidateSwipedEvent{
		BaseEvent: base,
		SessionID: sessionID,
		Result:    result,
	}
}

// Payload реализует shared.Event.
func (e CandidateSwipedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"session_id":   e.SessionID,
		"requester_id": e.Result.RequesterID,
		"candidate_id": e.Result.Candidate.Profile.ID,
		"action":       string(e.Result.Action),
		"score":        int(e.Result.Candidate.Score),
		"connected":    e.Result.Connected,
		"cursor":       e.Result.Cursor,
	}
}

// ConnectionMadeEvent - между requester и кандидатом появилась связь.
type ConnectionMadeEvent struct {
	shared.BaseEvent
	SessionID   string
	RequesterID string
	Candidate   Profile
	Via         SwipeAction
}

// NewConnectionMadeEvent создаёт событие новой связи.
func NewConnectionMadeEvent(sessionID string, result SwipeResult) ConnectionMadeEvent {
	base := shared.NewBaseEvent(shared.EventConnectionMade, result.RequesterID).WithCorrelationID(sessionID)
	base.Timestamp = result.OccurredAt
	return ConnectionMadeEvent{
		BaseEvent:   base,
		SessionID:   sessionID,
		RequesterID: result.RequesterID,
		Candidate:   result.Candidate.Profile,
		Via:         result.Action,
	}
}

// Payload реализует shared.Event.
func (e ConnectionMadeEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"session_id":   e.SessionID,
		"requester_id": e.RequesterID,
		"candidate_id": e.Candidate.ID,
		"via":          string(e.Via),
	}
}

// ExplanationReadyEvent - внешний сервис вернул текст объяснения для пары.
type ExplanationReadyEvent struct {
	shared.BaseEvent
	SessionID   string
	RequesterID string
	CandidateID string
	Text        string
}

// NewExplanationReadyEvent создаёт событие готового объяснения.
func NewExplanationReadyEvent(sessionID, requesterID, candidateID, text string) ExplanationReadyEvent {
	return ExplanationReadyEvent{
		BaseEvent:   shared.NewBaseEvent(shared.EventExplanationReady, requesterID).WithCorrelationID(sessionID),
		SessionID:   sessionID,
		RequesterID: requesterID,
		CandidateID: candidateID,
		Text:        text,
	}
}

// Payload реализует shared.Event.
func (e ExplanationReadyEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"session_id":   e.SessionID,
		"requester_id": e.RequesterID,
		"candidate_id": e.CandidateID,
		"text":         e.Text,
	}
}
