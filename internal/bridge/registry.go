package bridge

import (
	"sync"

	"github.com/gehchat/bridge/internal/metrics"
)

// Registry is the process-wide map from client connection id to its
// bridge session. Entries are created when a client connection is
// accepted and removed when it closes; no two entries ever share a
// session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a session under a connection id.
func (r *Registry) Add(id string, s *Session) {
	r.mu.Lock()
	r.sessions[id] = s
	total := len(r.sessions)
	r.mu.Unlock()
	metrics.ActiveSessions.Set(float64(total))
}

// Remove drops the session for a connection id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	total := len(r.sessions)
	r.mu.Unlock()
	metrics.ActiveSessions.Set(float64(total))
}

// Get returns the session for a connection id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of active client sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ConnectedCount returns how many sessions currently hold a live IRC
// connection.
func (r *Registry) ConnectedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, s := range r.sessions {
		if s.Connected() {
			n++
		}
	}
	return n
}
