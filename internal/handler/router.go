package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"ballot-engine/internal/container"
	"ballot-engine/internal/middleware"
	"ballot-engine/pkg/errors"
)

// NewRouter configures and returns the HTTP router
func NewRouter(c *container.Container) *chi.Mux {
	cfg := c.GetConfig()
	log := c.GetLogger()
	authService := c.GetAuthService()

	r := chi.NewRouter()

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.AllowedOrigins
	corsConfig.AllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}

	r.Use(middleware.CORS(corsConfig, log))
	r.Use(middleware.RequestID(log))
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Compress(5))
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	healthHandler := NewHealthHandler(c)
	electionHandler := NewElectionHandler(c.GetElectionService(), log)
	ballotHandler := NewBallotHandler(c.GetBallotService(), log)

	// Health check (no auth required)
	r.Get("/health", healthHandler.Check)

	r.Route("/api/v1", func(r chi.Router) {
		// Voter routes: login is public, ballots need a voter session
		r.Route("/vote", func(r chi.Router) {
			ballotHandler.RegisterRoutes(r, middleware.VoterAuth(authService, log))
		})

		// Administrative routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminAuth(authService, log))
			electionHandler.RegisterRoutes(r)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, r, errors.NewNotFoundError("Endpoint not found"), log)
	})

	log.Info("Router configured successfully")
	return r
}
