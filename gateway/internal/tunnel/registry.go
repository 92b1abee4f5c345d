package tunnel

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/viaduct-io/viaduct/gateway/internal/metrics"
)

// Registry is the Session Registry: the single source of truth for
// "is this database's Agent currently connected, and through which
// Session". One entry per connected agent, replace-on-reconnect
// semantics, and a staleness-aware lookup.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session // keyed by database_id, not session_id
	logger   *zap.Logger
	metrics  *metrics.Collectors
}

// NewRegistry constructs an empty Registry. collectors may be nil in tests.
func NewRegistry(collectors *metrics.Collectors, logger *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*Session),
		logger:   logger.Named("registry"),
		metrics:  collectors,
	}
}

// Install registers a new Session for its database_id. If a previous
// Session is already registered for that database, the new connection
// wins: the old Session is terminated and replaced — last writer wins,
// old stream torn down.
func (r *Registry) Install(s *Session) {
	r.mu.Lock()
	old, had := r.sessions[s.DatabaseID()]
	r.sessions[s.DatabaseID()] = s
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ActiveSessions.Inc()
	}

	if had && old.Active() {
		r.logger.Info("replacing existing session for database",
			zap.String("database_id", s.DatabaseID().String()),
			zap.String("old_session_id", old.ID().String()),
			zap.String("new_session_id", s.ID().String()),
		)
		old.Terminate("superseded by new connection")
	}
}

// Lookup returns the active, non-stale Session for a database_id. A Session
// that exists but has gone longer than tStale without a heartbeat is
// treated as absent — it still occupies a slot in the map until the
// Liveness Monitor's next sweep, but Lookup callers never see it, which is
// what makes the "lookup after T_stale returns no Session" invariant hold
// without the caller racing a sweep goroutine.
func (r *Registry) Lookup(databaseID uuid.UUID, tStale time.Duration) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.sessions[databaseID]
	r.mu.RUnlock()

	if !ok || !s.Active() || s.IsStale(tStale) {
		return nil, false
	}
	return s, true
}

// Remove drops a Session from the registry if it is still the one
// installed for its database_id. It is a no-op if the Session has already
// been superseded by a newer one, so an out-of-order terminate from a
// stale goroutine can never evict a live replacement.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	cur, ok := r.sessions[s.DatabaseID()]
	removed := ok && cur.ID() == s.ID()
	if removed {
		delete(r.sessions, s.DatabaseID())
	}
	r.mu.Unlock()

	if removed && r.metrics != nil {
		r.metrics.ActiveSessions.Dec()
	}
}

// Snapshot returns every Session currently installed, for the Liveness
// Monitor's sweep and for diagnostics endpoints. The returned slice is a
// copy; it is safe to range over without holding any lock.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of installed Sessions, active or not.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
