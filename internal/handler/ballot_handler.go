package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"ballot-engine/internal/domain"
	"ballot-engine/internal/middleware"
	"ballot-engine/internal/service"
	"ballot-engine/pkg/errors"
	"ballot-engine/pkg/logger"
)

// BallotHandler serves the voter-facing endpoints
type BallotHandler struct {
	ballots service.BallotService
	logger  *logger.Logger
}

// NewBallotHandler creates a new ballot handler
func NewBallotHandler(ballots service.BallotService, logger *logger.Logger) *BallotHandler {
	return &BallotHandler{ballots: ballots, logger: logger}
}

// RegisterRoutes registers the public routes and wraps the session routes in voterAuth
func (h *BallotHandler) RegisterRoutes(r chi.Router, voterAuth func(http.Handler) http.Handler) {
	r.Post("/credentials/resolve", h.ResolveCredential)
	r.Post("/elections/{electionID}/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(voterAuth)
		r.Post("/elections/{electionID}/ballot", h.SubmitBallot)
		r.Post("/elections/{electionID}/results-view", h.EnterResultsView)
	})
}

// session returns the voter identity when it belongs to the election in the path
func (h *BallotHandler) session(w http.ResponseWriter, r *http.Request) (domain.VoterIdentity, bool) {
	voter, ok := middleware.VoterFromContext(r.Context())
	if !ok {
		respondError(w, r, errors.NewAuthenticationError("Voter session required"), h.logger)
		return voter, false
	}
	if voter.ElectionID != chi.URLParam(r, "electionID") {
		respondError(w, r, errors.NewAuthorizationError("Session belongs to a different election"), h.logger)
		return voter, false
	}
	return voter, true
}

// ResolveCredential handles POST /credentials/resolve
func (h *BallotHandler) ResolveCredential(w http.ResponseWriter, r *http.Request) {
	var req domain.ResolveCredentialRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	key, err := h.ballots.ResolveCredential(req.Scheme, req.Credential)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, domain.ResolvedCredential{Scheme: req.Scheme, Key: key})
}

// Login handles POST /elections/{electionID}/login
func (h *BallotHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.VoterLoginRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	session, err := h.ballots.Login(r.Context(), chi.URLParam(r, "electionID"), &req)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

// SubmitBallot handles POST /elections/{electionID}/ballot
func (h *BallotHandler) SubmitBallot(w http.ResponseWriter, r *http.Request) {
	voter, ok := h.session(w, r)
	if !ok {
		return
	}
	var req domain.SubmitBallotRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	receipt, err := h.ballots.SubmitBallot(r.Context(), voter.ElectionID, voter.VoterKey, req.Choices)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusCreated, receipt)
}

// EnterResultsView handles POST /elections/{electionID}/results-view
func (h *BallotHandler) EnterResultsView(w http.ResponseWriter, r *http.Request) {
	voter, ok := h.session(w, r)
	if !ok {
		return
	}
	access, err := h.ballots.EnterResultsView(r.Context(), voter.ElectionID, voter.VoterKey)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, access)
}
