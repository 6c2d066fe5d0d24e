package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/sdp"
)

// RequestToken mints a single-use token for the (caller, callee) pair.
func (o *Orchestrator) RequestToken(uid domain.UserID, p core.CallRequestTokenPayload) {
	tok := o.Tokens.Issue(uid, p.TargetUserID, p.CallType)
	o.push(uid, struct {
		Type      string `json:"type"`
		Token     string `json:"token"`
		ExpiresAt int64  `json:"expiresAt"`
	}{core.EvCallToken, tok.ID, tok.ExpiresAt.UnixMilli()})
}

// Offer relays a call offer to a reachable callee or queues it as a
// pending call with a bounded wait.
func (o *Orchestrator) Offer(uid domain.UserID, p core.CallOfferPayload) {
	// A bad or missing token degrades to identity-only checks; it is a
	// defense layer, not the sole gate.
	if p.CallToken != "" {
		if err := o.Tokens.Consume(p.CallToken, uid, p.TargetUserID); err != nil {
			log.Warn().Str("module", "orch").Str("caller", string(uid)).
				Err(err).Msg("call token check failed, degrading to identity check")
		}
	}

	res := o.Sanitizer.SanitizeSDP(p.Offer, sdp.RoleOffer)
	if !res.Valid {
		log.Warn().Str("module", "orch").Str("caller", string(uid)).
			Strs("warnings", res.Warnings).Msg("offer sdp rejected")
		o.pushError(uid, "invalid_sdp")
		return
	}

	username, _ := o.Registry.UsernameOf(uid)

	if conn, ok := o.Registry.Resolve(p.TargetUserID); ok {
		o.pushConn(conn, struct {
			Type           string          `json:"type"`
			CallerID       domain.UserID   `json:"callerId"`
			CallerUsername string          `json:"callerUsername"`
			Offer          string          `json:"offer"`
			CallType       domain.CallType `json:"callType"`
			IsReconnect    bool            `json:"isReconnect,omitempty"`
		}{core.EvCallIncoming, uid, username, res.SDP, p.CallType, p.IsReconnect})
		return
	}

	// Unreachable but notifiable: queue, arm expiry, nudge out of band.
	// The caller learns "offline" only if the window closes unanswered.
	o.Pending.Put(&domain.PendingCall{
		CallerID:       uid,
		CallerUsername: username,
		CalleeID:       p.TargetUserID,
		Offer:          res.SDP,
		CallType:       p.CallType,
	})
	o.Waker.Wake(p.TargetUserID, core.EvCallIncoming, map[string]any{
		"callerId": uid, "callType": p.CallType,
	})
}

func (o *Orchestrator) onPendingCallExpired(pc *domain.PendingCall) {
	o.push(pc.CallerID, struct {
		Type   string        `json:"type"`
		UserID domain.UserID `json:"userId"`
	}{core.EvCallUserOffline, pc.CalleeID})
	o.logCall(domain.CallLogRecord{
		CallerID: pc.CallerID, CalleeID: pc.CalleeID, CallType: pc.CallType,
		Outcome: domain.CallLogMissed, Reason: "callee unreachable",
	})
}

// Answer relays the callee's answer and marks the pair active so a later
// disconnect of either end can be cleaned up.
func (o *Orchestrator) Answer(uid domain.UserID, p core.CallAnswerPayload) {
	res := o.Sanitizer.SanitizeSDP(p.Answer, sdp.RoleAnswer)
	if !res.Valid {
		o.pushError(uid, "invalid_sdp")
		return
	}

	if !o.push(p.CallerID, struct {
		Type     string        `json:"type"`
		CalleeID domain.UserID `json:"calleeId"`
		Answer   string        `json:"answer"`
	}{core.EvCallAnswered, uid, res.SDP}) {
		o.pushError(uid, "caller_gone")
		return
	}
	o.Calls.MarkActive(p.CallerID, uid, "")
}

// ICECandidate sanitizes and relays; candidates for unreachable peers are
// dropped, never queued.
func (o *Orchestrator) ICECandidate(uid domain.UserID, p core.CallICEPayload) {
	res := o.Sanitizer.SanitizeCandidate(p.Candidate)
	if !res.Valid {
		log.Debug().Str("module", "orch").Str("from", string(uid)).
			Strs("warnings", res.Warnings).Msg("ice candidate rejected")
		return
	}
	o.push(p.TargetUserID, struct {
		Type      string        `json:"type"`
		UserID    domain.UserID `json:"userId"`
		Candidate any           `json:"candidate"`
	}{core.EvCallICECandidate, uid, res.Candidate})
}

// Reject relays the rejection, clears any queued entry from that caller
// and settles the call log.
func (o *Orchestrator) Reject(uid domain.UserID, p core.CallRejectPayload) {
	o.Pending.TakeFrom(uid, p.CallerID)
	o.Calls.Clear(uid)
	o.push(p.CallerID, struct {
		Type     string          `json:"type"`
		CalleeID domain.UserID   `json:"calleeId"`
		Reason   string          `json:"reason"`
		CallType domain.CallType `json:"callType"`
	}{core.EvCallRejected, uid, p.Reason, p.CallType})
	o.logCall(domain.CallLogRecord{
		CallerID: p.CallerID, CalleeID: uid, CallType: p.CallType,
		Outcome: domain.CallLogRejected, Reason: p.Reason,
	})
}

// End relays the hang-up and settles the call log, crediting direction via
// isIncoming: the ender is the callee when the call came in to them.
func (o *Orchestrator) End(uid domain.UserID, p core.CallEndPayload) {
	o.Calls.Clear(uid)
	o.push(p.TargetUserID, struct {
		Type     string          `json:"type"`
		UserID   domain.UserID   `json:"userId"`
		CallType domain.CallType `json:"callType"`
		Duration int64           `json:"callDuration"`
		Reason   string          `json:"reason"`
	}{core.EvCallEnded, uid, p.CallType, p.CallDuration, "ended"})

	caller, callee := uid, p.TargetUserID
	if p.IsIncoming {
		caller, callee = p.TargetUserID, uid
	}
	outcome := domain.CallLogCompleted
	if p.CallDuration <= 0 {
		outcome = domain.CallLogMissed
	}
	o.logCall(domain.CallLogRecord{
		CallerID: caller, CalleeID: callee, CallType: p.CallType,
		Outcome: outcome, DurationSecs: p.CallDuration,
	})
}

// ConnectionState feeds the server-side ICE recovery state machine.
func (o *Orchestrator) ConnectionState(uid domain.UserID, p core.CallConnectionStatePayload) {
	if first := o.Calls.HandleConnectionState(uid, p.State); first {
		log.Info().Str("module", "orch").Str("user", string(uid)).
			Str("peer", string(p.TargetUserID)).Msg("call connected")
	}
}

func (o *Orchestrator) onRestartICE(target domain.UserID) {
	o.push(target, struct {
		Type string `json:"type"`
	}{core.EvCallRestartICE})
}

func (o *Orchestrator) onForceEnd(caller, callee domain.UserID, callType domain.CallType, reason string) {
	ended := struct {
		Type     string          `json:"type"`
		CallType domain.CallType `json:"callType"`
		Reason   string          `json:"reason"`
	}{core.EvCallEnded, callType, reason}
	o.push(caller, ended)
	o.push(callee, ended)
	o.logCall(domain.CallLogRecord{
		CallerID: caller, CalleeID: callee, CallType: callType,
		Outcome: domain.CallLogCompleted, Reason: reason,
	})
}

// ToggleMedia, ScreenShare and Renegotiate are thin relays; no state
// transition on the server.
func (o *Orchestrator) ToggleMedia(uid domain.UserID, p core.CallToggleMediaPayload) {
	o.push(p.TargetUserID, struct {
		Type    string        `json:"type"`
		UserID  domain.UserID `json:"userId"`
		Kind    string        `json:"kind"`
		Enabled bool          `json:"enabled"`
	}{core.EvCallToggleMedia, uid, p.Kind, p.Enabled})
}

func (o *Orchestrator) ScreenShare(uid domain.UserID, p core.CallScreenSharePayload) {
	o.push(p.TargetUserID, struct {
		Type   string        `json:"type"`
		UserID domain.UserID `json:"userId"`
		Active bool          `json:"active"`
	}{core.EvCallScreenShare, uid, p.Active})
}

func (o *Orchestrator) Renegotiate(uid domain.UserID, p core.CallRenegotiatePayload) {
	res := o.Sanitizer.SanitizeSDP(p.Offer, sdp.RoleOffer)
	if !res.Valid {
		o.pushError(uid, "invalid_sdp")
		return
	}
	o.push(p.TargetUserID, struct {
		Type   string        `json:"type"`
		UserID domain.UserID `json:"userId"`
		Offer  string        `json:"offer"`
	}{core.EvCallRenegotiate, uid, res.SDP})
}
