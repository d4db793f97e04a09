package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ballot-engine/internal/domain"
	"ballot-engine/internal/service"
	"ballot-engine/pkg/errors"
	"ballot-engine/pkg/logger"
)

// ContextKey represents keys used in request context
type ContextKey string

const (
	// ActorContextKey is the key for the administrative actor in context
	ActorContextKey ContextKey = "actor"
	// VoterContextKey is the key for the voter identity in context
	VoterContextKey ContextKey = "voter"
	// RequestIDContextKey is the key for request ID in context
	RequestIDContextKey ContextKey = "request_id"
)

// AdminAuth requires a valid administrator token
func AdminAuth(authService service.AuthService, logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, appErr := bearerToken(r)
			if appErr != nil {
				writeErrorResponse(w, r, appErr, logger)
				return
			}

			ctx := r.Context()
			actor, err := authService.ValidateAdminToken(ctx, token)
			if err != nil {
				logger.WithError(err).Debug("Admin token validation failed")
				writeErrorResponse(w, r, errors.NewAuthenticationError("Invalid or expired token"), logger)
				return
			}

			ctx = context.WithValue(ctx, ActorContextKey, *actor)
			logger.WithFields(map[string]interface{}{
				"actor_id": actor.ID,
				"role":     actor.Role,
			}).Debug("Administrator authenticated")

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// VoterAuth requires a valid voter session token
func VoterAuth(authService service.AuthService, logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, appErr := bearerToken(r)
			if appErr != nil {
				writeErrorResponse(w, r, appErr, logger)
				return
			}

			ctx := r.Context()
			voter, err := authService.ValidateVoterToken(ctx, token)
			if err != nil {
				logger.WithError(err).Debug("Voter token validation failed")
				writeErrorResponse(w, r, errors.NewAuthenticationError("Invalid or expired session"), logger)
				return
			}

			ctx = context.WithValue(ctx, VoterContextKey, *voter)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, *errors.AppError) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.NewAuthenticationError("Authorization header is required")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", errors.NewAuthenticationError("Invalid authorization header format")
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", errors.NewAuthenticationError("Token is required")
	}
	return token, nil
}

// ActorFromContext returns the authenticated administrator
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(ActorContextKey).(domain.Actor)
	return actor, ok
}

// VoterFromContext returns the authenticated voter session
func VoterFromContext(ctx context.Context) (domain.VoterIdentity, bool) {
	voter, ok := ctx.Value(VoterContextKey).(domain.VoterIdentity)
	return voter, ok
}

// RequestIDFromContext returns the request ID or an empty string
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey).(string)
	return id
}

// RequestID creates a middleware that adds a unique request ID to each request.
// An incoming X-Request-ID header is kept.
func RequestID(logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" || len(requestID) > 64 {
				requestID = uuid.NewString()
			}

			ctx := context.WithValue(r.Context(), RequestIDContextKey, requestID)
			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WriteError writes appErr as the standard JSON error envelope
func WriteError(w http.ResponseWriter, r *http.Request, appErr *errors.AppError, logger *logger.Logger) {
	writeErrorResponse(w, r, appErr, logger)
}

// writeErrorResponse writes an error response to the client
func writeErrorResponse(w http.ResponseWriter, r *http.Request, appErr *errors.AppError, logger *logger.Logger) {
	requestID := RequestIDFromContext(r.Context())

	log := logger.WithError(appErr).WithField("request_id", requestID)
	if appErr.StatusCode >= http.StatusInternalServerError {
		log.Error("Request error", zap.String("path", r.URL.Path))
	} else {
		log.Debug("Request rejected", zap.String("path", r.URL.Path))
	}

	response := &errors.ErrorResponse{}
	response.Error.Type = appErr.Type
	response.Error.Message = appErr.Message
	response.Error.Details = appErr.Details
	response.Error.RequestID = requestID
	response.Error.Timestamp = time.Now().UTC().Format(time.RFC3339)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.WithError(err).Error("Failed to encode error response")
	}
}
