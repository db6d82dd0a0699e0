// Package api exposes defined preferences over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/CreativeUnicorns/prefs"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	prefs      *prefs.Preferences
	logger     prefs.Logger
	router     *chi.Mux
	httpServer *http.Server
}

// Config holds configuration for the API server.
type Config struct {
	ListenAddress string
	Preferences   *prefs.Preferences
	Logger        prefs.Logger
}

// NewServer creates and configures a new API server instance.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Preferences == nil {
		return nil, fmt.Errorf("%w: preferences are required", prefs.ErrConfiguration)
	}
	if cfg.Logger == nil {
		cfg.Logger = prefs.NewDefaultLogger()
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}

	s := &Server{
		prefs:  cfg.Preferences,
		logger: cfg.Logger,
		router: chi.NewRouter(),
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server and blocks until it is shut down. A graceful
// shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("API server starting", "address", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("could not start server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("API server stopping")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("API server stopped gracefully")
	return nil
}
