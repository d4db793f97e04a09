package handler

import (
	"context"
	"net/http"
	"time"

	"ballot-engine/internal/container"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	container *container.Container
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(container *container.Container) *HealthHandler {
	return &HealthHandler{
		container: container,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Service   string            `json:"service"`
	Checks    map[string]string `json:"checks"`
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   "1.0.0",
		Service:   "ballot-engine",
		Checks:    map[string]string{},
	}

	status := http.StatusOK
	for name, err := range h.container.Health(ctx) {
		if err != nil {
			logger.WithError(err).WithField("check", name).Warn("Health check failed")
			response.Checks[name] = "unhealthy"
			response.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		response.Checks[name] = "ok"
	}

	respondJSON(w, status, response)
}
