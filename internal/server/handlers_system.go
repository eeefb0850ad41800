package server

import (
	"net/http"
)

// health handles GET /health. Liveness only; readiness is the agent's.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "chatframe",
	})
}

// ready handles GET /ready. 503 until the agent is initialized so load
// balancers hold traffic during startup.
func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	if !s.agentReady.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"agent":  "initializing",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"agent":  "initialized",
	})
}

// cacheStats handles GET /stats/cache
func (s *Server) cacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Stats())
}
