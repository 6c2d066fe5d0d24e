package orch

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/sdp"
)

// JoinGroup adds the user to the full-mesh call. The joiner initiates
// offers to every existing participant; existing participants only await.
// The fixed rule prevents offer glare without any ID comparison.
func (o *Orchestrator) JoinGroup(uid domain.UserID, p core.GroupJoinPayload) {
	if !o.Membership.IsMember(p.GroupID, uid) {
		log.Warn().Str("module", "orch").Str("user", string(uid)).
			Str("group", string(p.GroupID)).Str("audit", "non-member join").
			Msg("group join dropped")
		return
	}
	username, _ := o.Registry.UsernameOf(uid)

	existing, first, err := o.Groups.Join(p.GroupID, uid, username)
	if errors.Is(err, domain.ErrGroupFull) {
		o.pushError(uid, "group_call_full")
		return
	}
	if err != nil {
		o.pushError(uid, "join_failed")
		return
	}

	if first {
		o.ringGroup(p.GroupID, uid, username)
	}

	o.push(uid, struct {
		Type    string                `json:"type"`
		GroupID domain.GroupID        `json:"groupId"`
		Peers   []core.ParticipantDTO `json:"peers"`
	}{core.EvGroupExistingPeers, p.GroupID, existing})

	joined := struct {
		Type     string         `json:"type"`
		GroupID  domain.GroupID `json:"groupId"`
		UserID   domain.UserID  `json:"userId"`
		Username string         `json:"username"`
	}{core.EvGroupPeerJoined, p.GroupID, uid, username}
	for _, peer := range existing {
		o.push(peer.ID, joined)
	}

	o.broadcastParticipants(p.GroupID)
}

// ringGroup notifies every group member that a call just started.
func (o *Orchestrator) ringGroup(gid domain.GroupID, starter domain.UserID, starterName string) {
	ring := struct {
		Type      string         `json:"type"`
		GroupID   domain.GroupID `json:"groupId"`
		StartedBy domain.UserID  `json:"startedBy"`
		Username  string         `json:"username"`
	}{core.EvGroupStarted, gid, starter, starterName}

	for _, member := range o.Membership.Members(gid) {
		if member == starter {
			continue
		}
		if !o.push(member, ring) {
			o.Waker.Wake(member, core.EvGroupStarted, map[string]any{
				"groupId": gid, "startedBy": starter,
			})
		}
	}
}

// LeaveGroup removes the user and tears the session down when empty.
func (o *Orchestrator) LeaveGroup(uid domain.UserID, p core.GroupLeavePayload) {
	o.leaveGroup(uid, p.GroupID)
}

func (o *Orchestrator) leaveGroup(uid domain.UserID, gid domain.GroupID) {
	remaining, empty, was := o.Groups.Leave(gid, uid)
	if !was {
		return
	}

	if empty {
		ended := struct {
			Type    string         `json:"type"`
			GroupID domain.GroupID `json:"groupId"`
		}{core.EvGroupEnded, gid}
		for _, member := range o.Membership.Members(gid) {
			if member != uid {
				o.push(member, ended)
			}
		}
		return
	}

	left := struct {
		Type    string         `json:"type"`
		GroupID domain.GroupID `json:"groupId"`
		UserID  domain.UserID  `json:"userId"`
	}{core.EvGroupPeerLeft, gid, uid}
	for _, peer := range remaining {
		o.push(peer.ID, left)
	}
	o.broadcastParticipants(gid)
}

func (o *Orchestrator) broadcastParticipants(gid domain.GroupID) {
	participants := o.Groups.Participants(gid)
	update := struct {
		Type         string                `json:"type"`
		GroupID      domain.GroupID        `json:"groupId"`
		Count        int                   `json:"count"`
		Participants []core.ParticipantDTO `json:"participants"`
	}{core.EvGroupParticipants, gid, len(participants), participants}
	for _, p := range participants {
		o.push(p.ID, update)
	}
}

// GroupSignal relays pairwise offer/answer/ICE inside the call, gated on
// both ends being verified current participants.
func (o *Orchestrator) GroupSignal(uid domain.UserID, evType string, p core.GroupSignalPayload) {
	if !o.Groups.IsParticipant(p.GroupID, uid) || !o.Groups.IsParticipant(p.GroupID, p.TargetUserID) {
		log.Warn().Str("module", "orch").Str("user", string(uid)).
			Str("group", string(p.GroupID)).Str("audit", "non-participant signaling").
			Msg("group signal dropped")
		return
	}

	payload, ok := o.sanitizeSignalBody(uid, evType, p.Payload)
	if !ok {
		return
	}

	o.push(p.TargetUserID, struct {
		Type    string          `json:"type"`
		GroupID domain.GroupID  `json:"groupId"`
		UserID  domain.UserID   `json:"userId"`
		Payload json.RawMessage `json:"payload"`
	}{evType, p.GroupID, uid, payload})
}

// sanitizeSignalBody applies SDP or candidate sanitization to an opaque
// pairwise signaling body, picking the check by event kind.
func (o *Orchestrator) sanitizeSignalBody(uid domain.UserID, evType string, raw json.RawMessage) (json.RawMessage, bool) {
	var body core.SignalBody
	if err := json.Unmarshal(raw, &body); err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("from", string(uid)).Msg("bad signal body")
		return nil, false
	}

	switch evType {
	case core.EvGroupOffer, core.EvTransferOffer:
		if res := o.Sanitizer.SanitizeSDP(body.SDP, sdp.RoleOffer); !res.Valid {
			o.pushError(uid, "invalid_sdp")
			return nil, false
		}
	case core.EvGroupAnswer, core.EvTransferAnswer:
		if res := o.Sanitizer.SanitizeSDP(body.SDP, sdp.RoleAnswer); !res.Valid {
			o.pushError(uid, "invalid_sdp")
			return nil, false
		}
	case core.EvGroupICECandidate, core.EvTransferICECandidate:
		if body.Candidate == nil {
			return nil, false
		}
		if res := o.Sanitizer.SanitizeCandidate(*body.Candidate); !res.Valid {
			return nil, false
		}
	}
	return raw, true
}

// GroupBroadcast fans a media-toggle or screen-share notice to the whole
// call room, not pairwise.
func (o *Orchestrator) GroupBroadcast(uid domain.UserID, evType string, p core.GroupBroadcastPayload) {
	if !o.Groups.IsParticipant(p.GroupID, uid) {
		return
	}
	notice := struct {
		Type    string         `json:"type"`
		GroupID domain.GroupID `json:"groupId"`
		UserID  domain.UserID  `json:"userId"`
		Kind    string         `json:"kind,omitempty"`
		Enabled bool           `json:"enabled"`
		Active  bool           `json:"active"`
	}{evType, p.GroupID, uid, p.Kind, p.Enabled, p.Active}
	for _, peer := range o.Groups.Participants(p.GroupID) {
		if peer.ID == uid {
			continue
		}
		o.push(peer.ID, notice)
	}
}
