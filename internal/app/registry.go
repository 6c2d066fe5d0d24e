package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
)

type regEntry struct {
	ConnID   core.ConnID
	Username string
	Conn     core.SignalConnection
}

// Registry maps a user identity to exactly one live connection. It is the
// ground truth for reachability; everything that needs to deliver an event
// resolves the target here.
type Registry struct {
	mu     sync.RWMutex
	byUser map[domain.UserID]*regEntry
}

func NewRegistry() *Registry {
	return &Registry{byUser: make(map[domain.UserID]*regEntry)}
}

// Register installs the connection as the single entry for the user. If a
// different connection already holds the slot it is returned so the caller
// can signal force-logout and close it ("last login wins").
func (r *Registry) Register(uid domain.UserID, username string, connID core.ConnID, conn core.SignalConnection) (evicted core.SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byUser[uid]; ok && old.ConnID != connID {
		evicted = old.Conn
		log.Info().Str("module", "app.registry").Str("user", string(uid)).
			Str("old_conn", string(old.ConnID)).Str("new_conn", string(connID)).
			Msg("evicting previous connection")
	}
	r.byUser[uid] = &regEntry{ConnID: connID, Username: username, Conn: conn}
	log.Info().Str("module", "app.registry").Str("user", string(uid)).
		Str("conn", string(connID)).Msg("registered")
	return evicted
}

// Resolve returns the user's live connection, if any.
func (r *Registry) Resolve(uid domain.UserID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byUser[uid]; ok {
		return e.Conn, true
	}
	return nil, false
}

func (r *Registry) UsernameOf(uid domain.UserID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byUser[uid]; ok {
		return e.Username, true
	}
	return "", false
}

// Unregister removes the entry only if connID is still the registered
// holder. A fast reconnect may already have replaced the entry; in that
// case the stale disconnect must not fire an offline broadcast.
func (r *Registry) Unregister(uid domain.UserID, connID core.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byUser[uid]
	if !ok || e.ConnID != connID {
		log.Debug().Str("module", "app.registry").Str("user", string(uid)).
			Str("conn", string(connID)).Msg("stale unregister ignored")
		return false
	}
	delete(r.byUser, uid)
	log.Info().Str("module", "app.registry").Str("user", string(uid)).
		Str("conn", string(connID)).Msg("unregistered")
	return true
}

// Snapshot is the online-identity list sent to a freshly registered client.
func (r *Registry) Snapshot() []core.PresenceDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.PresenceDTO, 0, len(r.byUser))
	for uid, e := range r.byUser {
		out = append(out, core.PresenceDTO{ID: uid, Username: e.Username})
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// Broadcast pushes a pre-marshaled frame to every live connection except
// the named one. Slow consumers just miss the frame.
func (r *Registry) Broadcast(frame core.Frame, except domain.UserID) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for uid, e := range r.byUser {
		if uid == except {
			continue
		}
		_ = e.Conn.TrySend(frame)
	}
}
