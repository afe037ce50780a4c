package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/gehchat/bridge/internal/logging"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "running",
		"message": "GehChat Bridge",
		"version": Version,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":             "healthy",
		"active_connections": s.registry.Len(),
		"irc_connections":    s.registry.ConnectedCount(),
	})
}

// handleConfig reports the static IRC target. Read-only: the connection
// target is never client-controlled.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"server":  s.cfg.IRC.Server,
		"port":    s.cfg.IRC.Port,
		"channel": s.cfg.IRC.Channel,
	})
}

func (s *Server) handleUserLookup(w http.ResponseWriter, r *http.Request) {
	nickname := chi.URLParam(r, "nickname")
	respondJSON(w, http.StatusOK, map[string]any{
		"nickname":            nickname,
		"is_application_user": s.keys.IsApplicationUser(nickname),
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("failed to encode response")
	}
}
