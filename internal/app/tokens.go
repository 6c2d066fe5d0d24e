package app

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
)

// TokenService issues short-lived single-use tokens binding a
// (caller, callee) pair before a call offer is trusted. Consumption failure
// is soft: handlers degrade to identity checks, they never hard-block.
type TokenService struct {
	mu     sync.Mutex
	tokens map[string]*domain.CallToken
	ttl    time.Duration
	clock  core.Clock
}

func NewTokenService(ttl time.Duration, clock core.Clock) *TokenService {
	if clock == nil {
		clock = core.RealClock{}
	}
	return &TokenService{
		tokens: make(map[string]*domain.CallToken),
		ttl:    ttl,
		clock:  clock,
	}
}

func (s *TokenService) Issue(callerID, calleeID domain.UserID, callType domain.CallType) *domain.CallToken {
	now := s.clock.Now()
	t := &domain.CallToken{
		ID:        uuid.NewString(),
		CallerID:  callerID,
		CalleeID:  calleeID,
		CallType:  callType,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	s.sweepLocked(now)
	s.tokens[t.ID] = t
	s.mu.Unlock()

	log.Debug().Str("module", "app.tokens").Str("caller", string(callerID)).
		Str("callee", string(calleeID)).Msg("token issued")
	return t
}

// Consume succeeds exactly once, only for the minted pair, only within TTL.
func (s *TokenService) Consume(tokenID string, callerID, calleeID domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[tokenID]
	if !ok {
		return domain.ErrTokenNotFound
	}
	if t.Consumed {
		return domain.ErrTokenConsumed
	}
	if s.clock.Now().After(t.ExpiresAt) {
		delete(s.tokens, tokenID)
		return domain.ErrTokenExpired
	}
	if t.CallerID != callerID || t.CalleeID != calleeID {
		return domain.ErrTokenMismatch
	}
	t.Consumed = true
	delete(s.tokens, tokenID)
	return nil
}

// sweepLocked drops expired tokens lazily; the map stays small because
// tokens live for a minute.
func (s *TokenService) sweepLocked(now time.Time) {
	for id, t := range s.tokens {
		if now.After(t.ExpiresAt) {
			delete(s.tokens, id)
		}
	}
}
