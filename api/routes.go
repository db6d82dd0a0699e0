package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.SetHeader("Content-Type", "application/json"))

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/keys", s.handleListKeys)
		r.Post("/flush", s.handleFlushAll)

		r.Route("/{scope}", func(r chi.Router) {
			r.Post("/flush", s.handleFlushScope)
			r.Post("/sync", s.handleSyncScope)

			// The wildcard holds the namespace path followed by the key name.
			r.Get("/preferences/*", s.handleGetPreference)
			r.Put("/preferences/*", s.handleSetPreference)
			r.Delete("/preferences/*", s.handleClearPreference)

			r.Get("/namespaces/*", s.handleNamespaceExists)
			r.Delete("/namespaces/*", s.handleClearNamespace)
		})
	})
}
