package errors

import (
	"fmt"
	"net/http"
)

// ErrorType represents different types of application errors
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeAuthorization  ErrorType = "authorization"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeConflict       ErrorType = "conflict"
	ErrorTypeLocked         ErrorType = "edit_locked"
	ErrorTypeRequirements   ErrorType = "requirements_not_met"
	ErrorTypeVotingClosed   ErrorType = "voting_closed"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeUnavailable    ErrorType = "unavailable"
	ErrorTypeInternal       ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	StatusCode int                    `json:"status_code"`
	Internal   error                  `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Internal.Error())
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Internal
}

// NewValidationError creates a new validation error
func NewValidationError(message string, details map[string]interface{}) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// NewAuthenticationError creates a new authentication error
func NewAuthenticationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewAuthorizationError creates a new authorization error
func NewAuthorizationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeAuthorization,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewConflictError reports a request that collides with current state.
func NewConflictError(message string, details map[string]interface{}) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
		Details:    details,
	}
}

// NewLockedError reports a setup mutation refused by the edit lock.
func NewLockedError(message string, reason string) *AppError {
	return &AppError{
		Type:       ErrorTypeLocked,
		Message:    message,
		StatusCode: http.StatusLocked,
		Details:    map[string]interface{}{"reason": reason},
	}
}

// NewRequirementsError lists every unmet submission requirement.
func NewRequirementsError(message string, missing []string) *AppError {
	return &AppError{
		Type:       ErrorTypeRequirements,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Details:    map[string]interface{}{"missing": missing},
	}
}

// NewVotingClosedError reports a ballot or view request outside the voting window.
func NewVotingClosedError(message string, phase string) *AppError {
	return &AppError{
		Type:       ErrorTypeVotingClosed,
		Message:    message,
		StatusCode: http.StatusForbidden,
		Details:    map[string]interface{}{"phase": phase},
	}
}

// NewRateLimitError creates a new rate limit error
func NewRateLimitError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeRateLimit,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
	}
}

// NewUnavailableError reports a transient failure the client may retry.
func NewUnavailableError(message string, internal error) *AppError {
	return &AppError{
		Type:       ErrorTypeUnavailable,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Internal:   internal,
	}
}

// NewInternalError creates a new internal server error
func NewInternalError(message string, internal error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   internal,
	}
}

// ErrorResponse represents the JSON error response
type ErrorResponse struct {
	Success bool `json:"success"`
	Error   struct {
		Type      ErrorType              `json:"type"`
		Message   string                 `json:"message"`
		Details   map[string]interface{} `json:"details,omitempty"`
		RequestID string                 `json:"request_id,omitempty"`
		Timestamp string                 `json:"timestamp"`
	} `json:"error"`
}
