package handler

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"ballot-engine/internal/credential"
	"ballot-engine/internal/domain"
	"ballot-engine/internal/middleware"
	"ballot-engine/pkg/errors"
	"ballot-engine/pkg/logger"
)

// maxBodyBytes bounds every JSON request body
const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// Response is the success envelope shared by every endpoint
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, r *http.Request, err error, log *logger.Logger) {
	middleware.WriteError(w, r, toAppError(err), log)
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.NewValidationError("Invalid request body", map[string]interface{}{"body": err.Error()})
	}

	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if stderrors.As(err, &fieldErrs) {
			details := make(map[string]interface{}, len(fieldErrs))
			for _, fe := range fieldErrs {
				details[fe.Field()] = fe.Tag()
			}
			return errors.NewValidationError("Request validation failed", details)
		}
		return errors.NewValidationError("Request validation failed", nil)
	}
	return nil
}

// toAppError maps domain failures onto HTTP-facing application errors
func toAppError(err error) *errors.AppError {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	var locked *domain.EditLockedError
	if stderrors.As(err, &locked) {
		return errors.NewLockedError(locked.Error(), string(locked.Reason))
	}
	var unmet *domain.RequirementsNotMetError
	if stderrors.As(err, &unmet) {
		return errors.NewRequirementsError("Election is not ready for submission", unmet.Missing)
	}

	switch {
	case stderrors.Is(err, credential.ErrInvalidFormat),
		stderrors.Is(err, credential.ErrUnknownScheme),
		stderrors.Is(err, credential.ErrNoSecondary),
		stderrors.Is(err, domain.ErrInvalidInput),
		stderrors.Is(err, domain.ErrInvalidChoices),
		stderrors.Is(err, domain.ErrInvalidReason):
		return errors.NewValidationError(err.Error(), nil)

	case stderrors.Is(err, domain.ErrForbidden):
		return errors.NewAuthorizationError(err.Error())

	case stderrors.Is(err, domain.ErrSecondaryMismatch):
		return errors.NewAuthenticationError(err.Error())

	case stderrors.Is(err, domain.ErrElectionNotFound),
		stderrors.Is(err, domain.ErrVoterNotFound),
		stderrors.Is(err, domain.ErrPositionNotFound),
		stderrors.Is(err, domain.ErrCandidateNotFound):
		return errors.NewNotFoundError(err.Error())

	case stderrors.Is(err, domain.ErrAlreadyVoted),
		stderrors.Is(err, domain.ErrAlreadySubmitted),
		stderrors.Is(err, domain.ErrOrganizationHasElection),
		stderrors.Is(err, domain.ErrVoterExists),
		stderrors.Is(err, domain.ErrVoterHasVoted),
		stderrors.Is(err, domain.ErrInvalidTransition):
		return errors.NewConflictError(err.Error(), nil)

	case stderrors.Is(err, domain.ErrNotActive):
		return errors.NewVotingClosedError(err.Error(), "inactive")
	case stderrors.Is(err, domain.ErrNotYetStarted):
		return errors.NewVotingClosedError(err.Error(), "scheduled")
	case stderrors.Is(err, domain.ErrEnded):
		return errors.NewVotingClosedError(err.Error(), "ended")

	case stderrors.Is(err, domain.ErrViewLimitExceeded):
		return errors.NewRateLimitError(err.Error())

	case stderrors.Is(err, domain.ErrTransactionConflict),
		stderrors.Is(err, context.DeadlineExceeded):
		return errors.NewUnavailableError("Please retry the request", err)
	}

	return errors.NewInternalError("Internal server error", err)
}
