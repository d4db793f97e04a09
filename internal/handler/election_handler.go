package handler

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"ballot-engine/internal/domain"
	"ballot-engine/internal/middleware"
	"ballot-engine/internal/service"
	"ballot-engine/pkg/errors"
	"ballot-engine/pkg/logger"
)

// RejectRequest carries the reviewer's reason for sending setup back
type RejectRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// ElectionHandler serves the administrative election endpoints
type ElectionHandler struct {
	elections service.ElectionService
	logger    *logger.Logger
}

// NewElectionHandler creates a new election handler
func NewElectionHandler(elections service.ElectionService, logger *logger.Logger) *ElectionHandler {
	return &ElectionHandler{elections: elections, logger: logger}
}

// RegisterRoutes registers the admin routes. The caller applies AdminAuth.
func (h *ElectionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/elections", h.CreateElection)
	r.Get("/elections/{electionID}", h.GetElection)
	r.Delete("/elections/{electionID}", h.DeleteElection)
	r.Get("/elections/{electionID}/edit-status", h.EditStatus)
	r.Put("/elections/{electionID}/schedule", h.SetSchedule)

	r.Post("/elections/{electionID}/positions", h.AddPosition)
	r.Put("/elections/{electionID}/positions/{positionID}", h.UpdatePosition)
	r.Delete("/elections/{electionID}/positions/{positionID}", h.RemovePosition)
	r.Post("/elections/{electionID}/positions/{positionID}/candidates", h.AddCandidate)
	r.Delete("/elections/{electionID}/positions/{positionID}/candidates/{candidateID}", h.RemoveCandidate)

	r.Get("/elections/{electionID}/voters", h.ListVoters)
	r.Post("/elections/{electionID}/voters", h.RegisterVoter)
	r.Put("/elections/{electionID}/voters/{voterKey}", h.UpdateVoter)
	r.Post("/elections/{electionID}/voters/{voterKey}/replace", h.ReplaceVoter)
	r.Delete("/elections/{electionID}/voters/{voterKey}", h.RemoveVoter)

	r.Post("/elections/{electionID}/submit", h.Submit)
	r.Post("/elections/{electionID}/approve", h.Approve)
	r.Post("/elections/{electionID}/reject", h.Reject)
	r.Post("/elections/{electionID}/revoke", h.Revoke)
	r.Post("/elections/{electionID}/reconsider", h.Reconsider)
	r.Post("/elections/{electionID}/declare", h.Declare)
	r.Get("/elections/{electionID}/history", h.History)
	r.Get("/elections/{electionID}/results", h.Results)
}

// actor returns the authenticated administrator or writes a 401
func (h *ElectionHandler) actor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		respondError(w, r, errors.NewAuthenticationError("Authentication required"), h.logger)
	}
	return actor, ok
}

// voterKeyParam returns the unescaped voter key path segment
func voterKeyParam(r *http.Request) string {
	raw := chi.URLParam(r, "voterKey")
	if key, err := url.PathUnescape(raw); err == nil {
		return key
	}
	return raw
}

// CreateElection handles POST /elections
func (h *ElectionHandler) CreateElection(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req domain.CreateElectionRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		respondError(w, r, err, h.logger)
		return
	}

	e, err := h.elections.CreateElection(r.Context(), actor, &req)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusCreated, e)
}

// GetElection handles GET /elections/{electionID}
func (h *ElectionHandler) GetElection(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	e, err := h.elections.GetElection(r.Context(), actor, chi.URLParam(r, "electionID"))
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, e)
}

// DeleteElection handles DELETE /elections/{electionID}
func (h *ElectionHandler) DeleteElection(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.elections.DeleteElection(r.Context(), actor, chi.URLParam(r, "electionID")); err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EditStatus handles GET /elections/{electionID}/edit-status
func (h *ElectionHandler) EditStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}
	status, err := h.elections.CheckEditAllowed(r.Context(), chi.URLParam(r, "electionID"))
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// SetSchedule handles PUT /elections/{electionID}/schedule
func (h *ElectionHandler) SetSchedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req domain.ScheduleRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	e, err := h.elections.SetSchedule(r.Context(), actor, chi.URLParam(r, "electionID"), &req)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, e)
}

// AddPosition handles POST /elections/{electionID}/positions
func (h *ElectionHandler) AddPosition(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req domain.PositionRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	p, err := h.elections.AddPosition(r.Context(), actor, chi.URLParam(r, "electionID"), &req)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

// UpdatePosition handles PUT /elections/{electionID}/positions/{positionID}
func (h *ElectionHandler) UpdatePosition(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req domain.PositionRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	p, err := h.elections.UpdatePosition(r.Context(), actor, chi.URLParam(r, "electionID"), chi.URLParam(r, "positionID"), &req)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// RemovePosition handles DELETE /elections/{electionID}/positions/{positionID}
func (h *ElectionHandler) RemovePosition(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.elections.RemovePosition(r.Context(), actor, chi.URLParam(r, "electionID"), chi.URLParam(r, "positionID")); err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddCandidate handles POST /elections/{electionID}/positions/{positionID}/candidates
func (h *ElectionHandler) AddCandidate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req domain.CandidateRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	c, err := h.elections.AddCandidate(r.Context(), actor, chi.URLParam(r, "electionID"), chi.URLParam(r, "positionID"), &req)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

// RemoveCandidate handles DELETE .../candidates/{candidateID}
func (h *ElectionHandler) RemoveCandidate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	err := h.elections.RemoveCandidate(r.Context(), actor,
		chi.URLParam(r, "electionID"), chi.URLParam(r, "positionID"), chi.URLParam(r, "candidateID"))
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListVoters handles GET /elections/{electionID}/voters
func (h *ElectionHandler) ListVoters(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	includeReplaced := r.URL.Query().Get("include_replaced") == "true"
	voters, err := h.elections.ListVoters(r.Context(), actor, chi.URLParam(r, "electionID"), includeReplaced)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, voters)
}

// RegisterVoter handles POST /elections/{electionID}/voters
func (h *ElectionHandler) RegisterVoter(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req domain.RegisterVoterRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	v, err := h.elections.RegisterVoter(r.Context(), actor, chi.URLParam(r, "electionID"), &req)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusCreated, v)
}

// UpdateVoter handles PUT /elections/{electionID}/voters/{voterKey}
func (h *ElectionHandler) UpdateVoter(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req domain.UpdateVoterRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	v, err := h.elections.UpdateVoter(r.Context(), actor, chi.URLParam(r, "electionID"), voterKeyParam(r), &req)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// ReplaceVoter handles POST /elections/{electionID}/voters/{voterKey}/replace
func (h *ElectionHandler) ReplaceVoter(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req domain.ReplaceVoterRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	v, err := h.elections.ReplaceVoter(r.Context(), actor, chi.URLParam(r, "electionID"), voterKeyParam(r), &req)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusCreated, v)
}

// RemoveVoter handles DELETE /elections/{electionID}/voters/{voterKey}
func (h *ElectionHandler) RemoveVoter(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.elections.RemoveVoter(r.Context(), actor, chi.URLParam(r, "electionID"), voterKeyParam(r)); err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transitionFunc func(r *http.Request, actor domain.Actor, electionID string) (*domain.TransitionResult, error)

// transition runs one workflow step and reports no-ops with 200 as well
func (h *ElectionHandler) transition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := h.actor(w, r)
		if !ok {
			return
		}
		res, err := fn(r, actor, chi.URLParam(r, "electionID"))
		if err != nil {
			respondError(w, r, err, h.logger)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}

// Submit handles POST /elections/{electionID}/submit
func (h *ElectionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	h.transition(func(r *http.Request, actor domain.Actor, id string) (*domain.TransitionResult, error) {
		return h.elections.SubmitForApproval(r.Context(), actor, id)
	})(w, r)
}

// Approve handles POST /elections/{electionID}/approve
func (h *ElectionHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(func(r *http.Request, actor domain.Actor, id string) (*domain.TransitionResult, error) {
		return h.elections.Approve(r.Context(), actor, id)
	})(w, r)
}

// Reject handles POST /elections/{electionID}/reject
func (h *ElectionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(func(r *http.Request, actor domain.Actor, id string) (*domain.TransitionResult, error) {
		var req RejectRequest
		if err := decodeAndValidate(w, r, &req); err != nil {
			return nil, err
		}
		return h.elections.Reject(r.Context(), actor, id, req.Reason)
	})(w, r)
}

// Revoke handles POST /elections/{electionID}/revoke
func (h *ElectionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	h.transition(func(r *http.Request, actor domain.Actor, id string) (*domain.TransitionResult, error) {
		return h.elections.Revoke(r.Context(), actor, id)
	})(w, r)
}

// Reconsider handles POST /elections/{electionID}/reconsider
func (h *ElectionHandler) Reconsider(w http.ResponseWriter, r *http.Request) {
	h.transition(func(r *http.Request, actor domain.Actor, id string) (*domain.TransitionResult, error) {
		return h.elections.Reconsider(r.Context(), actor, id)
	})(w, r)
}

// Declare handles POST /elections/{electionID}/declare
func (h *ElectionHandler) Declare(w http.ResponseWriter, r *http.Request) {
	h.transition(func(r *http.Request, actor domain.Actor, id string) (*domain.TransitionResult, error) {
		return h.elections.DeclareResults(r.Context(), actor, id)
	})(w, r)
}

// History handles GET /elections/{electionID}/history
func (h *ElectionHandler) History(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	history, err := h.elections.History(r.Context(), actor, chi.URLParam(r, "electionID"))
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, history)
}

// Results handles GET /elections/{electionID}/results
func (h *ElectionHandler) Results(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	results, err := h.elections.Results(r.Context(), actor, chi.URLParam(r, "electionID"))
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, results)
}
