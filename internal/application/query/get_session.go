package query

import (
	"context"

	"github.com/founderlink/founder-match/internal/application/session"
	"github.com/founderlink/founder-match/internal/domain/matching"
	"github.com/founderlink/founder-match/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION QUERIES
// Чтение состояния сессии: текущий кандидат и список связей.
// ══════════════════════════════════════════════════════════════════════════════

// CurrentCandidateResult - голова очереди сессии.
type CurrentCandidateResult struct {
	SessionID string                    `json:"session_id"`
	State     matching.QueueState       `json:"state"`
	Cursor    int                       `json:"cursor"`
	Total     int                       `json:"total"`
	Candidate *matching.ScoredCandidate `json:"candidate,omitempty"`
}

// GetCurrentCandidateHandler возвращает текущего кандидата.
type GetCurrentCandidateHandler struct {
	sessions *session.Registry
}

// NewGetCurrentCandidateHandler создаёт новый обработчик.
func NewGetCurrentCandidateHandler(sessions *session.Registry) *GetCurrentCandidateHandler {
	return &GetCurrentCandidateHandler{sessions: sessions}
}

// Handle возвращает голову очереди; у исчерпанной очереди Candidate == nil.
func (h *GetCurrentCandidateHandler) Handle(_ context.Context, requesterID string) (*CurrentCandidateResult, error) {
	sess, err := h.sessions.Get(requesterID)
	if err != nil {
		return nil, err
	}

	res := &CurrentCandidateResult{
		SessionID: sess.ID,
		State:     sess.Queue.State(),
		Cursor:    sess.Queue.Cursor(),
		Total:     sess.Queue.Len(),
	}
	if c, ok := sess.Queue.Current(); ok {
		res.Candidate = &c
	}
	return res, nil
}

// ConnectionsResult - связи requester.
type ConnectionsResult struct {
	RequesterID string             `json:"requester_id"`
	Connections []matching.Profile `json:"connections,omitempty"`

	// IDs - идентификаторы связей, включая сохранённые в прошлых сессиях.
	IDs []string `json:"ids"`
}

// ListConnectionsHandler возвращает связи requester.
type ListConnectionsHandler struct {
	sessions *session.Registry
	store    matching.ConnectionStore
	log      *logger.Logger
}

// NewListConnectionsHandler создаёт новый обработчик. store может быть nil.
func NewListConnectionsHandler(sessions *session.Registry, store matching.ConnectionStore, log *logger.Logger) *ListConnectionsHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &ListConnectionsHandler{sessions: sessions, store: store, log: log}
}

// Handle объединяет связи текущего процесса с сохранёнными.
// Ошибка хранилища не скрывает связи из памяти.
func (h *ListConnectionsHandler) Handle(ctx context.Context, requesterID string) (*ConnectionsResult, error) {
	conns := h.sessions.Connections(requesterID)
	res := &ConnectionsResult{
		RequesterID: requesterID,
		Connections: conns.List(),
		IDs:         conns.IDs(),
	}

	if h.store == nil {
		return res, nil
	}

	stored, err := h.store.ListConnections(ctx, requesterID)
	if err != nil {
		h.log.Warn("failed to load stored connections",
			logger.RequesterID(requesterID),
			logger.Err(err),
		)
		return res, nil
	}

	seen := make(map[string]struct{}, len(res.IDs))
	for _, id := range res.IDs {
		seen[id] = struct{}{}
	}
	for _, id := range stored {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		res.IDs = append(res.IDs, id)
	}
	return res, nil
}

// ExplanationResult - текст объяснения для пары.
type ExplanationResult struct {
	RequesterID string `json:"requester_id"`
	CandidateID string `json:"candidate_id"`
	Text        string `json:"text"`
	Ready       bool   `json:"ready"`
}

// GetExplanationHandler читает объяснения, подготовленные асинхронно.
type GetExplanationHandler struct {
	store matching.ExplanationStore
}

// NewGetExplanationHandler создаёт новый обработчик.
func NewGetExplanationHandler(store matching.ExplanationStore) *GetExplanationHandler {
	return &GetExplanationHandler{store: store}
}

// Handle возвращает Ready == false, пока объяснение не готово.
func (h *GetExplanationHandler) Handle(ctx context.Context, requesterID, candidateID string) (*ExplanationResult, error) {
	res := &ExplanationResult{RequesterID: requesterID, CandidateID: candidateID}
	if h.store == nil {
		return res, nil
	}

	text, ok, err := h.store.GetExplanation(ctx, requesterID, candidateID)
	if err != nil {
		return nil, err
	}
	res.Text, res.Ready = text, ok
	return res, nil
}
