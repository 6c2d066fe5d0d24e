package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
)

// dispatch routes a screened frame to its handler. Unknown types are
// dropped, never forwarded.
func (ctl *Controller) dispatch(uid domain.UserID, c *WsSignalConn, evType string, data []byte) {
	switch evType {
	case core.EvPing:
		ctl.handlePing(c)

	case core.EvCallRequestToken:
		ctl.handleRequestToken(uid, c, data)
	case core.EvCallOffer:
		ctl.handleOffer(uid, c, data)
	case core.EvCallAnswer:
		ctl.handleAnswer(uid, c, data)
	case core.EvCallICECandidate:
		ctl.handleCandidate(uid, c, data)
	case core.EvCallReject:
		ctl.handleReject(uid, c, data)
	case core.EvCallEnd:
		ctl.handleEnd(uid, c, data)
	case core.EvCallToggleMedia:
		ctl.handleToggleMedia(uid, c, data)
	case core.EvCallScreenShare:
		ctl.handleScreenShare(uid, c, data)
	case core.EvCallRenegotiate:
		ctl.handleRenegotiate(uid, c, data)
	case core.EvCallConnectionState:
		ctl.handleConnectionState(uid, c, data)

	case core.EvGroupJoin:
		ctl.handleGroupJoin(uid, c, data)
	case core.EvGroupLeave:
		ctl.handleGroupLeave(uid, c, data)
	case core.EvGroupOffer, core.EvGroupAnswer, core.EvGroupICECandidate:
		ctl.handleGroupSignal(uid, c, evType, data)
	case core.EvGroupToggleMedia, core.EvGroupScreenShare:
		ctl.handleGroupBroadcast(uid, c, evType, data)

	case core.EvTransferRequest:
		ctl.handleTransferRequest(uid, c, data)
	case core.EvTransferAccept:
		ctl.handleTransferRef(uid, c, data, ctl.Orch.AcceptTransfer)
	case core.EvTransferReject:
		ctl.handleTransferRef(uid, c, data, ctl.Orch.RejectTransfer)
	case core.EvTransferCancel:
		ctl.handleTransferRef(uid, c, data, ctl.Orch.CancelTransfer)
	case core.EvTransferPause:
		ctl.handleTransferRef(uid, c, data, ctl.Orch.PauseTransfer)
	case core.EvTransferResume:
		ctl.handleTransferRef(uid, c, data, ctl.Orch.ResumeTransfer)
	case core.EvTransferSenderDone:
		ctl.handleTransferRef(uid, c, data, ctl.Orch.SenderDone)
	case core.EvTransferProgress:
		ctl.handleTransferProgress(uid, c, data)
	case core.EvTransferComplete:
		ctl.handleTransferComplete(uid, c, data)
	case core.EvTransferCheckPending:
		ctl.Orch.CheckPending(uid)
	case core.EvTransferOffer, core.EvTransferAnswer, core.EvTransferICECandidate:
		ctl.handleTransferSignal(uid, c, evType, data)

	default:
		log.Warn().Str("module", "signal").Str("type", evType).Str("user", string(uid)).Msg("unknown signal")
	}
}

// decode unmarshals and shape-checks an inbound payload. A failure is
// reported back and the frame dropped.
func (ctl *Controller) decode(uid domain.UserID, c *WsSignalConn, evType string, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("type", evType).Msg("bad payload")
		ctl.sendJSON(c, struct {
			Type  string `json:"type"`
			Error string `json:"error"`
		}{core.EvError, "bad_payload"})
		return false
	}
	if err := ctl.Guard.ValidatePayload(uid, evType, v); err != nil {
		ctl.sendJSON(c, struct {
			Type  string `json:"type"`
			Error string `json:"error"`
		}{core.EvError, "bad_payload"})
		return false
	}
	return true
}
