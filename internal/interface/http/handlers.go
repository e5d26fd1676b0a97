package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/founderlink/founder-match/internal/application/command"
	"github.com/founderlink/founder-match/internal/application/query"
	"github.com/founderlink/founder-match/internal/domain/matching"
	"github.com/founderlink/founder-match/internal/domain/shared"
	"github.com/founderlink/founder-match/pkg/logger"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST BODIES
// ══════════════════════════════════════════════════════════════════════════════

// RankRequest is the body of POST /api/v1/rankings.
type RankRequest struct {
	RequesterID string `json:"requester_id" validate:"required,max=128"`
	Limit       int    `json:"limit" validate:"gte=0,lte=500"`
	SkipCache   bool   `json:"skip_cache"`
}

// SwipeRequest is the body of POST /api/v1/sessions/{requesterID}/{action}.
type SwipeRequest struct {
	CandidateID string `json:"candidate_id" validate:"required,max=128"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot returns basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"name":    "founder-match",
		"version": s.deps.Version,
		"endpoints": []string{
			"POST /api/v1/rankings",
			"GET  /api/v1/sessions/{requesterID}/current",
			"POST /api/v1/sessions/{requesterID}/{accept|reject|connect}",
			"GET  /api/v1/sessions/{requesterID}/connections",
			"GET  /api/v1/explanations/{requesterID}/{candidateID}",
		},
	}, nil)
}

// handleHealth returns the aggregated health status.
// Optional checks failing only mark the service degraded.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, r, code, status, nil)
}

// handleReady mirrors /health without the body details.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		s.writeJSONError(w, r, http.StatusServiceUnavailable, "not_ready", status.Message)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"}, nil)
}

// handleLive reports that the process is serving requests.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"}, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// MATCHING HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRank ranks the pool for a requester and opens a new swipe session.
func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	if s.deps.RankHandler == nil {
		s.writeJSONError(w, r, http.StatusServiceUnavailable, "unavailable", "Ranking is not configured")
		return
	}

	var req RankRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.deps.RankHandler.Handle(r.Context(), query.RankCandidatesQuery{
		RequesterID: req.RequesterID,
		Limit:       req.Limit,
		SkipCache:   req.SkipCache,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, res, &ResponseMeta{Total: len(res.Candidates)})
}

// handleCurrent returns the head of the requester's queue.
func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	if s.deps.CurrentHandler == nil {
		s.writeJSONError(w, r, http.StatusServiceUnavailable, "unavailable", "Sessions are not configured")
		return
	}

	res, err := s.deps.CurrentHandler.Handle(r.Context(), r.PathValue("requesterID"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, res, nil)
}

// handleSwipe applies accept, reject or connect to the session.
func (s *Server) handleSwipe(w http.ResponseWriter, r *http.Request) {
	if s.deps.SwipeHandler == nil {
		s.writeJSONError(w, r, http.StatusServiceUnavailable, "unavailable", "Sessions are not configured")
		return
	}

	action := matching.SwipeAction(strings.ToLower(r.PathValue("action")))
	if !action.IsValid() {
		s.writeJSONError(w, r, http.StatusNotFound, "not_found", "Unknown swipe action")
		return
	}

	var req SwipeRequest
	if !s.decode(w, r, &req) {
		return
	}

	outcome, err := s.deps.SwipeHandler.Handle(r.Context(), command.SwipeCommand{
		RequesterID: r.PathValue("requesterID"),
		CandidateID: req.CandidateID,
		Action:      action,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, outcome, nil)
}

// handleConnections lists the requester's connections.
func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	if s.deps.ConnectionsHandler == nil {
		s.writeJSONError(w, r, http.StatusServiceUnavailable, "unavailable", "Sessions are not configured")
		return
	}

	res, err := s.deps.ConnectionsHandler.Handle(r.Context(), r.PathValue("requesterID"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, res, &ResponseMeta{Total: len(res.IDs)})
}

// handleExplanation returns the explanation text for a pair, once ready.
func (s *Server) handleExplanation(w http.ResponseWriter, r *http.Request) {
	if s.deps.ExplanationHandler == nil {
		s.writeJSONError(w, r, http.StatusNotFound, "not_found", "Explanations are disabled")
		return
	}

	res, err := s.deps.ExplanationHandler.Handle(r.Context(), r.PathValue("requesterID"), r.PathValue("candidateID"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if !res.Ready {
		w.Header().Set("Retry-After", "2")
		s.writeJSON(w, r, http.StatusAccepted, res, nil)
		return
	}
	s.writeJSON(w, r, http.StatusOK, res, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler may continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeJSONError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
			return false
		}
		s.writeJSONError(w, r, http.StatusBadRequest, "invalid_json", "Request body is not valid JSON")
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				details[jsonFieldName(fe.Field())] = fe.Tag()
			}
			s.writeJSONErrorDetails(w, r, http.StatusBadRequest, "validation_error", "Request validation failed", details)
			return false
		}
		s.writeJSONError(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return false
	}
	return true
}

func jsonFieldName(field string) string {
	switch field {
	case "RequesterID":
		return "requester_id"
	case "CandidateID":
		return "candidate_id"
	case "SkipCache":
		return "skip_cache"
	default:
		return strings.ToLower(field)
	}
}

// writeDomainError maps the domain error taxonomy onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status >= 500 {
		logger.FromContext(r.Context()).Error("request failed",
			logger.String("path", r.URL.Path),
			logger.Err(err),
		)
		if status == http.StatusInternalServerError {
			message = "Internal server error"
		}
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	}
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" && status < 500 {
		message = de.Message
	}
	s.writeJSONError(w, r, status, code, message)
}

func statusFor(err error) (int, string) {
	switch {
	case shared.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsStateError(err):
		return http.StatusConflict, "conflict"
	case errors.Is(err, shared.ErrTimeout):
		return http.StatusGatewayTimeout, "timeout"
	case shared.IsExternalService(err):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// retryAfter is the hint sent with 503 responses.
const retryAfter = 5 * time.Second
