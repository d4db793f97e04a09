package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ballot-engine/internal/config"
	"ballot-engine/internal/container"
	"ballot-engine/internal/handler"
	"ballot-engine/internal/service"
	"ballot-engine/pkg/logger"
)

// Resources holds all resources that need cleanup
type Resources struct {
	container *container.Container
	syncer    service.PhaseSyncer
	server    *http.Server
	log       *logger.Logger
	mu        sync.Mutex
	closed    bool
}

// Cleanup gracefully closes all resources
func (r *Resources) Cleanup(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errors []error

	r.log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server first to stop accepting new requests
	if r.server != nil {
		r.log.Info("Shutting down HTTP server...")
		if err := r.server.Shutdown(ctx); err != nil {
			r.log.WithError(err).Error("Failed to shutdown HTTP server")
			errors = append(errors, fmt.Errorf("HTTP server shutdown: %w", err))
		} else {
			r.log.Info("HTTP server shutdown complete")
		}
	}

	// Let a running phase sync finish before the store goes away
	if r.syncer != nil {
		r.log.Info("Stopping phase syncer...")
		if err := r.syncer.Stop(ctx); err != nil {
			r.log.WithError(err).Error("Failed to stop phase syncer")
			errors = append(errors, fmt.Errorf("phase syncer shutdown: %w", err))
		} else {
			r.log.Info("Phase syncer stopped successfully")
		}
	}

	// Drain notifications, then close Mongo, Redis and Postgres
	if r.container != nil {
		healthCtx, healthCancel := context.WithTimeout(ctx, 2*time.Second)
		for name, err := range r.container.Health(healthCtx) {
			if err != nil {
				r.log.WithError(err).WithField("backend", name).Warn("Health check failed before closing")
			}
		}
		healthCancel()

		if err := r.container.Close(ctx); err != nil {
			r.log.WithError(err).Error("Failed to close backends")
			errors = append(errors, err)
		} else {
			r.log.Info("Backend connections closed successfully")
		}
	}

	if len(errors) > 0 {
		r.log.WithField("error_count", len(errors)).Error("Cleanup completed with errors")
		return fmt.Errorf("cleanup completed with %d errors: %v", len(errors), errors)
	}

	r.log.Info("Graceful shutdown completed successfully")
	return nil
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(map[string]interface{}{
		"port":        cfg.Port,
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
		"store":       cfg.StoreBackend,
	}).Info("Starting ballot-engine server")

	ctx := context.Background()

	// Create dependency injection container; it connects every backend
	c, err := container.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create container")
	}

	syncer := c.GetPhaseSyncer()
	if err := syncer.Start(ctx); err != nil {
		_ = c.Close(ctx)
		log.WithError(err).Fatal("Failed to start phase syncer")
	}

	router := handler.NewRouter(c)

	// Ballot submission is short; keep timeouts tight to shed slow clients
	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	resources := &Resources{
		container: c,
		syncer:    syncer,
		server:    server,
		log:       log,
	}

	// Setup graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := resources.Cleanup(cleanupCtx); err != nil {
			log.WithError(err).Error("Cleanup completed with errors")
		}
	}()

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Server starting on port " + cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Server error occurred")
			serverErrChan <- err
		}
	}()

	// Wait for interrupt signal or server error
	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-serverErrChan:
		log.WithError(err).Error("Server failed, initiating shutdown")
	}

	log.Info("Initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := resources.Cleanup(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown completed with errors")
		os.Exit(1)
	}

	log.Info("Application shutdown complete")
}
