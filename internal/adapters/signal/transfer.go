package signal

import (
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
)

func (ctl *Controller) handleTransferRequest(uid domain.UserID, c *WsSignalConn, data []byte) {
	var p core.TransferRequestPayload
	if ctl.decode(uid, c, core.EvTransferRequest, data, &p) {
		ctl.Orch.RequestTransfer(uid, p)
	}
}

// handleTransferRef serves every transfer op whose payload is just the
// transfer id: accept, reject, cancel, pause, resume, sender-done.
func (ctl *Controller) handleTransferRef(uid domain.UserID, c *WsSignalConn, data []byte, op func(domain.UserID, core.TransferRefPayload)) {
	var p core.TransferRefPayload
	if ctl.decode(uid, c, "file-transfer", data, &p) {
		op(uid, p)
	}
}

func (ctl *Controller) handleTransferProgress(uid domain.UserID, c *WsSignalConn, data []byte) {
	var p core.TransferProgressPayload
	if ctl.decode(uid, c, core.EvTransferProgress, data, &p) {
		ctl.Orch.TransferProgress(uid, p)
	}
}

func (ctl *Controller) handleTransferComplete(uid domain.UserID, c *WsSignalConn, data []byte) {
	var p core.TransferCompletePayload
	if ctl.decode(uid, c, core.EvTransferComplete, data, &p) {
		ctl.Orch.CompleteTransfer(uid, p)
	}
}

func (ctl *Controller) handleTransferSignal(uid domain.UserID, c *WsSignalConn, evType string, data []byte) {
	var p core.TransferSignalPayload
	if ctl.decode(uid, c, evType, data, &p) {
		ctl.Orch.TransferSignal(uid, evType, p)
	}
}
