package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
)

type pendingEntry struct {
	call  *domain.PendingCall
	timer *time.Timer
}

// PendingCalls queues one offer per unreachable-but-notifiable callee. The
// entry owns its expiry timer; any transition that moots the entry stops it.
type PendingCalls struct {
	mu       sync.Mutex
	byCallee map[domain.UserID]*pendingEntry
	ttl      time.Duration
	clock    core.Clock

	// OnExpire fires on the timer goroutine after the entry is removed.
	OnExpire func(pc *domain.PendingCall)
}

func NewPendingCalls(ttl time.Duration, clock core.Clock) *PendingCalls {
	if clock == nil {
		clock = core.RealClock{}
	}
	return &PendingCalls{
		byCallee: make(map[domain.UserID]*pendingEntry),
		ttl:      ttl,
		clock:    clock,
	}
}

// Put queues the offer, superseding any prior entry for the same callee.
func (p *PendingCalls) Put(pc *domain.PendingCall) {
	now := p.clock.Now()
	pc.CreatedAt = now
	pc.ExpiresAt = now.Add(p.ttl)

	p.mu.Lock()
	if old, ok := p.byCallee[pc.CalleeID]; ok {
		old.timer.Stop()
		log.Debug().Str("module", "app.pending").Str("callee", string(pc.CalleeID)).
			Msg("superseding queued offer")
	}
	entry := &pendingEntry{call: pc}
	entry.timer = time.AfterFunc(p.ttl, func() { p.expire(pc) })
	p.byCallee[pc.CalleeID] = entry
	p.mu.Unlock()

	log.Info().Str("module", "app.pending").Str("caller", string(pc.CallerID)).
		Str("callee", string(pc.CalleeID)).Msg("offer queued")
}

// Take removes and returns the queued offer for the callee, stopping its
// timer. Used when the callee reconnects in time.
func (p *PendingCalls) Take(calleeID domain.UserID) (*domain.PendingCall, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.byCallee[calleeID]
	if !ok {
		return nil, false
	}
	entry.timer.Stop()
	delete(p.byCallee, calleeID)
	return entry.call, true
}

// TakeFrom removes the entry only when it was queued by callerID, so a
// reject for an old call cannot clear a superseding one.
func (p *PendingCalls) TakeFrom(calleeID, callerID domain.UserID) (*domain.PendingCall, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.byCallee[calleeID]
	if !ok || entry.call.CallerID != callerID {
		return nil, false
	}
	entry.timer.Stop()
	delete(p.byCallee, calleeID)
	return entry.call, true
}

func (p *PendingCalls) expire(pc *domain.PendingCall) {
	p.mu.Lock()
	entry, ok := p.byCallee[pc.CalleeID]
	if !ok || entry.call != pc {
		// Superseded or taken between fire and lock.
		p.mu.Unlock()
		return
	}
	delete(p.byCallee, pc.CalleeID)
	p.mu.Unlock()

	log.Info().Str("module", "app.pending").Str("caller", string(pc.CallerID)).
		Str("callee", string(pc.CalleeID)).Msg("queued offer expired")
	if p.OnExpire != nil {
		p.OnExpire(pc)
	}
}
