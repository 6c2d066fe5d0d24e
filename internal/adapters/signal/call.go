package signal

import (
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
)

func (ctl *Controller) handleRequestToken(uid domain.UserID, c *WsSignalConn, data []byte) {
	var p core.CallRequestTokenPayload
	if ctl.decode(uid, c, core.EvCallRequestToken, data, &p) {
		ctl.Orch.RequestToken(uid, p)
	}
}

func (ctl *Controller) handleOffer(uid domain.UserID, c *WsSignalConn, data []byte) {
	var p core.CallOfferPayload
	if ctl.decode(uid, c, core.EvCallOffer, data, &p) {
		ctl.Orch.Offer(uid, p)
	}
}

func (ctl *Controller) handleAnswer(uid domain.UserID, c *WsSignalConn, data []byte) {
	var p core.CallAnswerPayload
	if ctl.decode(uid, c, core.EvCallAnswer, data, &p) {
		ctl.Orch.Answer(uid, p)
	}
}

func (ctl *Controller) handleCandidate(uid domain.UserID, c *WsSignalConn, data []byte) {
	var p core.CallICEPayload
	if ctl.decode(uid, c, core.EvCallICECandidate, data, &p) {
		ctl.Orch.ICECandidate(uid, p)
	}
}

func (ctl *Controller) handleReject(uid domain.UserID, c *WsSignalConn, data []byte) {
	var p core.CallRejectPayload
	if ctl.decode(uid, c, core.EvCallReject, data, &p) {
		ctl.Orch.Reject(uid, p)
	}
}

func (ctl *Controller) handleEnd(uid domain.UserID, c *WsSignalConn, data []byte) {
	var p core.CallEndPayload
	if ctl.decode(uid, c, core.EvCallEnd, data, &p) {
		ctl.Orch.End(uid, p)
	}
}

func (ctl *Controller) handleToggleMedia(uid domain.UserID, c *WsSignalConn, data []byte) {
	var p core.CallToggleMediaPayload
	if ctl.decode(uid, c, core.EvCallToggleMedia, data, &p) {
		ctl.Orch.ToggleMedia(uid, p)
	}
}

func (ctl *Controller) handleScreenShare(uid domain.UserID, c *WsSignalConn, data []byte) {
	var p core.CallScreenSharePayload
	if ctl.decode(uid, c, core.EvCallScreenShare, data, &p) {
		ctl.Orch.ScreenShare(uid, p)
	}
}

func (ctl *Controller) handleRenegotiate(uid domain.UserID, c *WsSignalConn, data []byte) {
	var p core.CallRenegotiatePayload
	if ctl.decode(uid, c, core.EvCallRenegotiate, data, &p) {
		ctl.Orch.Renegotiate(uid, p)
	}
}

func (ctl *Controller) handleConnectionState(uid domain.UserID, c *WsSignalConn, data []byte) {
	var p core.CallConnectionStatePayload
	if ctl.decode(uid, c, core.EvCallConnectionState, data, &p) {
		ctl.Orch.ConnectionState(uid, p)
	}
}
