// Package orch coordinates the signaling components: presence, 1:1 calls,
// group calls and file transfers. It owns no transport; delivery is always
// a registry lookup plus a push onto the target's outbound queue.
package orch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/app"
	"github.com/dkeye/Mesh/internal/config"
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/sdp"
)

type Orchestrator struct {
	Registry   *app.Registry
	Pending    *app.PendingCalls
	Tokens     *app.TokenService
	Calls      *app.CallIndex
	Groups     *app.GroupManager
	Store      core.TransferStore
	CallLogs   core.CallLogStore
	Sanitizer  *sdp.Sanitizer
	Membership core.MembershipProvider
	Waker      core.Waker
	Clock      core.Clock
	Transfer   config.TransferConfig
}

func (o *Orchestrator) now() time.Time {
	if o.Clock != nil {
		return o.Clock.Now()
	}
	return time.Now()
}

// Wire installs the cross-component callbacks. Must run once before any
// traffic is handled.
func (o *Orchestrator) Wire() {
	o.Pending.OnExpire = o.onPendingCallExpired
	o.Calls.OnRestartICE = o.onRestartICE
	o.Calls.OnForceEnd = o.onForceEnd
}

func encode(v any) (core.Frame, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode")
		return nil, false
	}
	return b, true
}

// push delivers an event to the user's live connection, if any.
func (o *Orchestrator) push(uid domain.UserID, v any) bool {
	conn, ok := o.Registry.Resolve(uid)
	if !ok {
		return false
	}
	frame, ok := encode(v)
	if !ok {
		return false
	}
	return conn.TrySend(frame) == nil
}

func (o *Orchestrator) pushConn(conn core.SignalConnection, v any) {
	if frame, ok := encode(v); ok {
		_ = conn.TrySend(frame)
	}
}

// OnConnect installs the new connection as the user's single live entry,
// announces presence and replays anything queued for the identity.
func (o *Orchestrator) OnConnect(uid domain.UserID, username string, connID core.ConnID, conn core.SignalConnection) {
	if evicted := o.Registry.Register(uid, username, connID, conn); evicted != nil {
		o.pushConn(evicted, struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		}{core.EvForceLogout, "signed in from another device"})
		evicted.Close()
	}

	if frame, ok := encode(struct {
		Type     string        `json:"type"`
		UserID   domain.UserID `json:"userId"`
		Username string        `json:"username"`
	}{core.EvUserOnline, uid, username}); ok {
		o.Registry.Broadcast(frame, uid)
	}

	o.pushConn(conn, struct {
		Type  string             `json:"type"`
		Users []core.PresenceDTO `json:"users"`
	}{core.EvOnlineList, o.Registry.Snapshot()})

	// A caller may still be waiting inside the pending window.
	if pc, ok := o.Pending.Take(uid); ok {
		o.pushConn(conn, struct {
			Type           string          `json:"type"`
			CallerID       domain.UserID   `json:"callerId"`
			CallerUsername string          `json:"callerUsername"`
			Offer          string          `json:"offer"`
			CallType       domain.CallType `json:"callType"`
			Queued         bool            `json:"queued"`
		}{core.EvCallIncoming, pc.CallerID, pc.CallerUsername, pc.Offer, pc.CallType, true})
		log.Info().Str("module", "orch").Str("callee", string(uid)).
			Str("caller", string(pc.CallerID)).Msg("delivered queued offer on connect")
	}
}

// OnDisconnect tears down everything the identity was involved in. A stale
// disconnect (fast reconnect already replaced the entry) does nothing.
func (o *Orchestrator) OnDisconnect(uid domain.UserID, connID core.ConnID) {
	if !o.Registry.Unregister(uid, connID) {
		return
	}

	if frame, ok := encode(struct {
		Type   string        `json:"type"`
		UserID domain.UserID `json:"userId"`
	}{core.EvUserOffline, uid}); ok {
		o.Registry.Broadcast(frame, uid)
	}

	// Never leave a one-sided "connected" orphan.
	if peer, callType, ok := o.Calls.PeerOf(uid); ok {
		o.Calls.Clear(uid)
		o.push(peer, struct {
			Type     string          `json:"type"`
			UserID   domain.UserID   `json:"userId"`
			CallType domain.CallType `json:"callType"`
			Reason   string          `json:"reason"`
		}{core.EvCallEnded, uid, callType, "peer disconnected"})
		o.logCall(domain.CallLogRecord{
			CallerID: uid, CalleeID: peer, CallType: callType,
			Outcome: domain.CallLogCompleted, Reason: "peer disconnected",
		})
	}

	for _, gid := range o.Groups.GroupsOf(uid) {
		o.leaveGroup(uid, gid)
	}

	o.pauseTransfersOnDisconnect(uid)
}

func (o *Orchestrator) logCall(rec domain.CallLogRecord) {
	if o.CallLogs == nil {
		return
	}
	if err := o.CallLogs.InsertCallLog(context.Background(), rec); err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("call log write failed")
	}
}

func (o *Orchestrator) pushError(uid domain.UserID, code string) {
	o.push(uid, struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}{core.EvError, code})
}
