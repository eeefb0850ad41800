// Package server provides the HTTP server for the chatframe API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/chatframe-ai/chatframe/internal/cache"
	"github.com/chatframe-ai/chatframe/internal/event"
	"github.com/chatframe-ai/chatframe/internal/session"
)

// SweepInterval is how often the server evicts expired sessions. Lazy expiry
// checks remain the correctness baseline; the sweep is hygiene.
const SweepInterval = 10 * time.Minute

// Config holds server configuration.
type Config struct {
	Host         string
	Port         int
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:         "127.0.0.1",
		Port:         8080,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No write timeout for SSE and websockets
	}
}

// Server is the HTTP server hosting both client surfaces: the websocket chat
// protocol and the JSON dashboard API (REST + SSE).
type Server struct {
	config     *Config
	router     *chi.Mux
	httpSrv    *http.Server
	store      *session.Store
	controller *session.Controller
	cache      *cache.Cache

	agentReady atomic.Bool
	sweepStop  chan struct{}
	sweepDone  chan struct{}
}

// New creates a new Server instance.
func New(cfg *Config, store *session.Store, controller *session.Controller, cacheStore *cache.Cache) *Server {
	s := &Server{
		config:     cfg,
		router:     chi.NewRouter(),
		store:      store,
		controller: controller,
		cache:      cacheStore,
		sweepStop:  make(chan struct{}),
		sweepDone:  make(chan struct{}),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// SetAgentReady flips the readiness flag reported by /health and /ready.
func (s *Server) SetAgentReady(ready bool) {
	s.agentReady.Store(ready)
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	// Request ID
	s.router.Use(middleware.RequestID)

	// Logging
	s.router.Use(middleware.Logger)

	// Recover from panics
	s.router.Use(middleware.Recoverer)

	// Real IP
	s.router.Use(middleware.RealIP)

	// CORS
	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Link", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// Start starts the HTTP server and the background session sweeper. It blocks
// until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	go s.sweepLoop()

	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.sweepStop)
	select {
	case <-s.sweepDone:
	case <-ctx.Done():
	}
	return s.httpSrv.Shutdown(ctx)
}

// sweepLoop periodically evicts expired sessions and announces each eviction
// on the bus so connected dashboards can drop stale entries.
func (s *Server) sweepLoop() {
	defer close(s.sweepDone)

	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.sweepStop:
			return
		case now := <-ticker.C:
			removed := s.store.Sweep(now)
			for _, id := range removed {
				event.Publish(event.Event{
					Type:      event.SessionExpired,
					SessionID: id,
					Data:      event.SessionExpiredData{SessionID: id},
				})
			}
		}
	}
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
