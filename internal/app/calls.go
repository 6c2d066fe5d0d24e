package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/config"
	"github.com/dkeye/Mesh/internal/domain"
)

type callEntry struct {
	caller   domain.UserID
	callee   domain.UserID
	callType domain.CallType
	state    domain.CallState

	connectedOnce bool
	restartUsed   bool

	failTimer  *time.Timer // force-end fallback
	graceTimer *time.Timer // disconnected grace before restart
}

func (e *callEntry) peerOf(uid domain.UserID) domain.UserID {
	if uid == e.caller {
		return e.callee
	}
	return e.caller
}

func (e *callEntry) stopTimersLocked() {
	if e.failTimer != nil {
		e.failTimer.Stop()
		e.failTimer = nil
	}
	if e.graceTimer != nil {
		e.graceTimer.Stop()
		e.graceTimer = nil
	}
}

// CallIndex tracks active 1:1 call pairs for disconnect cleanup and owns
// the ICE-recovery timers. Both ends map to the same entry.
type CallIndex struct {
	mu     sync.Mutex
	byUser map[domain.UserID]*callEntry
	cfg    config.CallConfig

	// Set once at wiring, before any traffic.
	OnRestartICE func(target domain.UserID)
	OnForceEnd   func(caller, callee domain.UserID, callType domain.CallType, reason string)
}

func NewCallIndex(cfg config.CallConfig) *CallIndex {
	return &CallIndex{
		byUser: make(map[domain.UserID]*callEntry),
		cfg:    cfg,
	}
}

// MarkActive records the pair on answer. Either end already being in a
// different call supersedes that call's tracking.
func (ci *CallIndex) MarkActive(caller, callee domain.UserID, callType domain.CallType) {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	ci.dropLocked(caller)
	ci.dropLocked(callee)
	e := &callEntry{caller: caller, callee: callee, callType: callType, state: domain.CallConnecting}
	ci.byUser[caller] = e
	ci.byUser[callee] = e
	log.Info().Str("module", "app.calls").Str("caller", string(caller)).
		Str("callee", string(callee)).Msg("call pair active")
}

// PeerOf returns the other end of the user's active call.
func (ci *CallIndex) PeerOf(uid domain.UserID) (domain.UserID, domain.CallType, bool) {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	if e, ok := ci.byUser[uid]; ok {
		return e.peerOf(uid), e.callType, true
	}
	return "", "", false
}

// Clear removes the pair tracking for the user's call and cancels timers.
func (ci *CallIndex) Clear(uid domain.UserID) {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	ci.dropLocked(uid)
}

func (ci *CallIndex) dropLocked(uid domain.UserID) {
	e, ok := ci.byUser[uid]
	if !ok {
		return
	}
	e.stopTimersLocked()
	delete(ci.byUser, e.caller)
	delete(ci.byUser, e.callee)
}

// HandleConnectionState drives the server side of ICE recovery:
//   - "connected": cancel pending fallbacks; the first report transitions
//     the pair to CONNECTED, repeats are no-ops.
//   - "failed": instruct exactly one ICE restart and arm a fallback that
//     force-ends the call if recovery does not land in time.
//   - "disconnected": wait a grace period, then instruct a restart; the
//     call is force-ended if not recovered within the longer window.
//   - "closed": force-end immediately.
//
// Returns true when this report connected the pair for the first time.
func (ci *CallIndex) HandleConnectionState(uid domain.UserID, state string) (firstConnect bool) {
	ci.mu.Lock()
	e, ok := ci.byUser[uid]
	if !ok {
		ci.mu.Unlock()
		return false
	}

	switch state {
	case "connected":
		e.stopTimersLocked()
		e.state = domain.CallConnected
		if !e.connectedOnce {
			e.connectedOnce = true
			firstConnect = true
		}
		ci.mu.Unlock()
		return firstConnect

	case "failed":
		if e.restartUsed {
			ci.mu.Unlock()
			ci.forceEnd(e, "ice failed")
			return false
		}
		e.restartUsed = true
		e.state = domain.CallReconnecting
		e.stopTimersLocked()
		e.failTimer = time.AfterFunc(ci.cfg.ICEFailTimeout, func() { ci.timerForceEnd(e, "ice restart timed out") })
		ci.mu.Unlock()
		if ci.OnRestartICE != nil {
			ci.OnRestartICE(uid)
		}
		return false

	case "disconnected":
		e.state = domain.CallReconnecting
		e.stopTimersLocked()
		e.graceTimer = time.AfterFunc(ci.cfg.ICEDiscGrace, func() { ci.timerRestart(e, uid) })
		e.failTimer = time.AfterFunc(ci.cfg.ICEDiscTimeout, func() { ci.timerForceEnd(e, "ice disconnected") })
		ci.mu.Unlock()
		return false

	case "closed":
		ci.mu.Unlock()
		ci.forceEnd(e, "connection closed")
		return false
	}

	ci.mu.Unlock()
	return false
}

// timerRestart fires on the grace timer: the pair is still tracked and
// still reconnecting, so instruct a restart.
func (ci *CallIndex) timerRestart(e *callEntry, uid domain.UserID) {
	ci.mu.Lock()
	cur, ok := ci.byUser[uid]
	if !ok || cur != e || e.state != domain.CallReconnecting {
		ci.mu.Unlock()
		return
	}
	ci.mu.Unlock()
	log.Info().Str("module", "app.calls").Str("user", string(uid)).Msg("instructing ice restart after grace")
	if ci.OnRestartICE != nil {
		ci.OnRestartICE(uid)
	}
}

func (ci *CallIndex) timerForceEnd(e *callEntry, reason string) {
	ci.mu.Lock()
	cur, ok := ci.byUser[e.caller]
	if !ok || cur != e {
		ci.mu.Unlock()
		return
	}
	ci.mu.Unlock()
	ci.forceEnd(e, reason)
}

func (ci *CallIndex) forceEnd(e *callEntry, reason string) {
	ci.mu.Lock()
	cur, ok := ci.byUser[e.caller]
	if !ok || cur != e {
		ci.mu.Unlock()
		return
	}
	e.stopTimersLocked()
	delete(ci.byUser, e.caller)
	delete(ci.byUser, e.callee)
	ci.mu.Unlock()

	log.Info().Str("module", "app.calls").Str("caller", string(e.caller)).
		Str("callee", string(e.callee)).Str("reason", reason).Msg("force-ending call")
	if ci.OnForceEnd != nil {
		ci.OnForceEnd(e.caller, e.callee, e.callType, reason)
	}
}
