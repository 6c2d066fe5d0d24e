// Package membership adapts the external group-membership source. The
// authoritative data lives in the main application database; this process
// only asks yes/no questions about it.
package membership

import (
	"sync"

	"github.com/dkeye/Mesh/internal/domain"
)

// Permissive treats every identity as a member of every group. Useful for
// development and for deployments where membership is enforced upstream.
type Permissive struct{}

func (Permissive) IsMember(domain.GroupID, domain.UserID) bool { return true }

func (Permissive) Members(domain.GroupID) []domain.UserID { return nil }

// Static serves a fixed membership table, mainly for tests and small
// self-hosted setups configured from file.
type Static struct {
	mu     sync.RWMutex
	groups map[domain.GroupID]map[domain.UserID]struct{}
}

func NewStatic() *Static {
	return &Static{groups: make(map[domain.GroupID]map[domain.UserID]struct{})}
}

func (s *Static) Add(gid domain.GroupID, uids ...domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[gid]
	if !ok {
		g = make(map[domain.UserID]struct{})
		s.groups[gid] = g
	}
	for _, uid := range uids {
		g[uid] = struct{}{}
	}
}

func (s *Static) IsMember(gid domain.GroupID, uid domain.UserID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.groups[gid][uid]
	return ok
}

func (s *Static) Members(gid domain.GroupID) []domain.UserID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UserID, 0, len(s.groups[gid]))
	for uid := range s.groups[gid] {
		out = append(out, uid)
	}
	return out
}
