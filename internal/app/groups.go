package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
)

type groupSession struct {
	id           domain.GroupID
	participants map[domain.UserID]string // userID -> username
}

// GroupManager owns the full-mesh group-call sessions. A session exists
// only while it has participants; capacity is enforced atomically so a
// join at the limit creates no partial state.
type GroupManager struct {
	mu       sync.RWMutex
	sessions map[domain.GroupID]*groupSession
	capacity int
}

func NewGroupManager(capacity int) *GroupManager {
	if capacity <= 0 {
		capacity = domain.DefaultGroupCapacity
	}
	return &GroupManager{
		sessions: make(map[domain.GroupID]*groupSession),
		capacity: capacity,
	}
}

// Join adds the user and returns the peers that were already in the call
// (the joiner initiates offers toward them). first reports whether this
// join started the call.
func (g *GroupManager) Join(gid domain.GroupID, uid domain.UserID, username string) (existing []core.ParticipantDTO, first bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[gid]
	if !ok {
		s = &groupSession{id: gid, participants: make(map[domain.UserID]string)}
	}

	if _, already := s.participants[uid]; !already && len(s.participants) >= g.capacity {
		return nil, false, domain.ErrGroupFull
	}

	existing = make([]core.ParticipantDTO, 0, len(s.participants))
	for id, name := range s.participants {
		if id == uid {
			continue
		}
		existing = append(existing, core.ParticipantDTO{ID: id, Username: name})
	}

	first = len(s.participants) == 0
	s.participants[uid] = username
	g.sessions[gid] = s

	log.Info().Str("module", "app.groups").Str("group", string(gid)).
		Str("user", string(uid)).Int("size", len(s.participants)).Msg("joined group call")
	return existing, first, nil
}

// Leave removes the user. empty reports whether the session was destroyed.
func (g *GroupManager) Leave(gid domain.GroupID, uid domain.UserID) (remaining []core.ParticipantDTO, empty, was bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[gid]
	if !ok {
		return nil, false, false
	}
	if _, was = s.participants[uid]; !was {
		return nil, false, false
	}
	delete(s.participants, uid)

	if len(s.participants) == 0 {
		delete(g.sessions, gid)
		log.Info().Str("module", "app.groups").Str("group", string(gid)).Msg("group call ended")
		return nil, true, true
	}

	remaining = make([]core.ParticipantDTO, 0, len(s.participants))
	for id, name := range s.participants {
		remaining = append(remaining, core.ParticipantDTO{ID: id, Username: name})
	}
	log.Info().Str("module", "app.groups").Str("group", string(gid)).
		Str("user", string(uid)).Int("size", len(remaining)).Msg("left group call")
	return remaining, false, true
}

func (g *GroupManager) IsParticipant(gid domain.GroupID, uid domain.UserID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.sessions[gid]
	if !ok {
		return false
	}
	_, in := s.participants[uid]
	return in
}

func (g *GroupManager) Participants(gid domain.GroupID) []core.ParticipantDTO {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.sessions[gid]
	if !ok {
		return nil
	}
	out := make([]core.ParticipantDTO, 0, len(s.participants))
	for id, name := range s.participants {
		out = append(out, core.ParticipantDTO{ID: id, Username: name})
	}
	return out
}

func (g *GroupManager) Count(gid domain.GroupID) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if s, ok := g.sessions[gid]; ok {
		return len(s.participants)
	}
	return 0
}

// GroupsOf lists every call the user currently sits in; disconnect
// handling treats each exactly like a leave.
func (g *GroupManager) GroupsOf(uid domain.UserID) []domain.GroupID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []domain.GroupID
	for gid, s := range g.sessions {
		if _, in := s.participants[uid]; in {
			out = append(out, gid)
		}
	}
	return out
}
