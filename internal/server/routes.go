package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	// Session routes (dashboard API)
	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.listSessions)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Get("/history", s.getHistory)
			r.Post("/message", s.postMessage)
			r.Post("/stop", s.postStop)
			r.Post("/clear", s.postClear)
			r.Get("/configs", s.getConfigs)
		})
	})

	// Event streaming (SSE)
	r.Get("/event", s.events)

	// Websocket chat protocol
	r.Get("/ws", s.chatSocket)

	// Liveness and cache introspection
	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Get("/stats/cache", s.cacheStats)
}
