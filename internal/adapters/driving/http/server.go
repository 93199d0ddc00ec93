package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/custodia-labs/storesync/internal/core/ports/driven"
	"github.com/custodia-labs/storesync/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	logger     *slog.Logger

	// Services
	listService     driving.ListService
	settingsService driving.SettingsService

	// Infrastructure
	tokens driven.TokenAdapter // nil disables authentication
	checks map[string]Pinger
}

// Config holds server configuration
type Config struct {
	Host    string
	Port    int
	Version string
	Logger  *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:    "0.0.0.0",
		Port:    8080,
		Version: "dev",
	}
}

// NewServer creates a new HTTP server. checks are pinged by /ready,
// keyed by the name reported on failure.
func NewServer(
	cfg Config,
	listService driving.ListService,
	settingsService driving.SettingsService,
	tokens driven.TokenAdapter,
	checks map[string]Pinger,
) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:          http.NewServeMux(),
		version:         cfg.Version,
		logger:          logger,
		listService:     listService,
		settingsService: settingsService,
		tokens:          tokens,
		checks:          checks,
	}

	handler := NewRecoveryMiddleware(logger).Handler(
		NewLoggingMiddleware(logger).Handler(s.router))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	auth := NewAuthMiddleware(s.tokens)

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	site := func(h http.HandlerFunc) http.Handler {
		return auth.Authenticate(auth.RequireSiteAccess(h))
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return auth.Authenticate(auth.RequireSiteAccess(auth.RequireAdmin(h)))
	}

	// Lists
	s.router.Handle("GET /api/v1/sites/{site}/lists/{list}", site(s.handleGetList))
	s.router.Handle("POST /api/v1/sites/{site}/lists/{list}/sync", site(s.handleSyncList))
	s.router.Handle("POST /api/v1/sites/{site}/lists/{list}/visible", site(s.handleVisible))

	// Settings (mutations are admin-only)
	s.router.Handle("GET /api/v1/sites/{site}/settings", site(s.handleGetSettings))
	s.router.Handle("PUT /api/v1/sites/{site}/settings", admin(s.handleUpdateSettings))
	s.router.Handle("DELETE /api/v1/sites/{site}/settings", admin(s.handleResetSettings))
	s.router.Handle("GET /api/v1/sites/{site}/settings/{key}", site(s.handleGetSetting))
	s.router.Handle("PUT /api/v1/sites/{site}/settings/{key}", admin(s.handleSetSetting))
}

// Handler returns the root handler, middleware included
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
