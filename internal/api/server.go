// Package api exposes the bridge's client-facing HTTP surface: the
// WebSocket endpoint plus health, config and metrics routes.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/gehchat/bridge/internal/bridge"
	"github.com/gehchat/bridge/internal/config"
	"github.com/gehchat/bridge/internal/keystore"
	"github.com/gehchat/bridge/internal/metrics"
)

// Version is set from main at startup via ldflags.
var Version = "dev"

// Server wires the HTTP routes to the bridge's shared state.
type Server struct {
	cfg        *config.Config
	keys       *keystore.Store
	registry   *bridge.Registry
	dispatcher *bridge.Dispatcher
}

// NewServer creates the HTTP server facade.
func NewServer(cfg *config.Config, keys *keystore.Store, registry *bridge.Registry) *Server {
	return &Server{
		cfg:        cfg,
		keys:       keys,
		registry:   registry,
		dispatcher: bridge.NewDispatcher(),
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/", s.handleRoot)
	r.Get("/api/health", s.handleHealth)
	r.Get("/api/config", s.handleConfig)
	r.Get("/api/users/{nickname}", s.handleUserLookup)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/ws", s.handleWebSocket)

	return r
}
