// Package guard wraps every inbound signaling event: rate limiting, payload
// shape and size validation, banned-identity short-circuit, audit logging.
package guard

import (
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/config"
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
)

type Action int

const (
	ActionAllow Action = iota
	// ActionDrop: discard silently, nothing goes back to the client.
	ActionDrop
	// ActionNotify: discard but tell the client it is being throttled.
	ActionNotify
	// ActionDisconnect: discard and tear the connection down.
	ActionDisconnect
)

type Verdict struct {
	Action Action
	Reason string
}

var allow = Verdict{Action: ActionAllow}

// Guard screens every inbound event before it reaches a handler.
type Guard struct {
	events   *SlidingLimiter
	calls    *SlidingLimiter
	validate *validator.Validate

	maxPayload int

	mu     sync.RWMutex
	banned map[domain.UserID]struct{}
}

func New(cfg config.GuardConfig) *Guard {
	return NewWithClock(cfg, core.RealClock{})
}

func NewWithClock(cfg config.GuardConfig, clock core.Clock) *Guard {
	g := &Guard{
		events:     NewSlidingLimiter(cfg.EventLimit, cfg.EventWindow, clock),
		calls:      NewSlidingLimiter(cfg.CallLimit, cfg.CallWindow, clock),
		validate:   validator.New(),
		maxPayload: cfg.MaxPayloadBytes,
		banned:     make(map[domain.UserID]struct{}),
	}
	for _, id := range cfg.BannedUsers {
		g.banned[domain.UserID(id)] = struct{}{}
	}
	return g
}

// expensive events get the tighter call-class window on top of the
// general per-connection limit.
var callClass = map[string]bool{
	core.EvCallRequestToken: true,
	core.EvCallOffer:        true,
	core.EvGroupJoin:        true,
	core.EvTransferRequest:  true,
}

// Screen decides the fate of a raw inbound event before decode.
func (g *Guard) Screen(uid domain.UserID, evType string, size int) Verdict {
	if g.IsBanned(uid) {
		g.audit(uid, evType, "banned identity")
		return Verdict{Action: ActionDisconnect, Reason: "banned"}
	}
	if size > g.maxPayload {
		g.audit(uid, evType, "payload over size ceiling")
		return Verdict{Action: ActionDrop, Reason: "oversized"}
	}
	if !g.events.Allow(uid) {
		g.audit(uid, evType, "event rate exceeded")
		return Verdict{Action: ActionNotify, Reason: "rate limited"}
	}
	if callClass[evType] && !g.calls.Allow(uid) {
		g.audit(uid, evType, "call rate exceeded")
		return Verdict{Action: ActionNotify, Reason: "rate limited"}
	}
	return allow
}

// ValidatePayload runs struct-tag validation on a decoded payload.
func (g *Guard) ValidatePayload(uid domain.UserID, evType string, v any) error {
	if err := g.validate.Struct(v); err != nil {
		g.audit(uid, evType, "payload validation failed")
		return err
	}
	return nil
}

func (g *Guard) Ban(uid domain.UserID) {
	g.mu.Lock()
	g.banned[uid] = struct{}{}
	g.mu.Unlock()
	log.Warn().Str("module", "guard").Str("user", string(uid)).Msg("identity banned")
}

func (g *Guard) IsBanned(uid domain.UserID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.banned[uid]
	return ok
}

// Forget clears per-identity limiter state on disconnect.
func (g *Guard) Forget(uid domain.UserID) {
	g.events.Forget(uid)
	g.calls.Forget(uid)
}

// GC prunes idle limiter windows; called from a periodic ticker.
func (g *Guard) GC() {
	g.events.GC()
	g.calls.GC()
}

func (g *Guard) audit(uid domain.UserID, evType, reason string) {
	log.Warn().
		Str("module", "guard").
		Str("user", string(uid)).
		Str("event", evType).
		Str("audit", reason).
		Msg("event rejected")
}
