package signal

import (
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
)

func (ctl *Controller) handleGroupJoin(uid domain.UserID, c *WsSignalConn, data []byte) {
	var p core.GroupJoinPayload
	if ctl.decode(uid, c, core.EvGroupJoin, data, &p) {
		ctl.Orch.JoinGroup(uid, p)
	}
}

func (ctl *Controller) handleGroupLeave(uid domain.UserID, c *WsSignalConn, data []byte) {
	var p core.GroupLeavePayload
	if ctl.decode(uid, c, core.EvGroupLeave, data, &p) {
		ctl.Orch.LeaveGroup(uid, p)
	}
}

func (ctl *Controller) handleGroupSignal(uid domain.UserID, c *WsSignalConn, evType string, data []byte) {
	var p core.GroupSignalPayload
	if ctl.decode(uid, c, evType, data, &p) {
		ctl.Orch.GroupSignal(uid, evType, p)
	}
}

func (ctl *Controller) handleGroupBroadcast(uid domain.UserID, c *WsSignalConn, evType string, data []byte) {
	var p core.GroupBroadcastPayload
	if ctl.decode(uid, c, evType, data, &p) {
		ctl.Orch.GroupBroadcast(uid, evType, p)
	}
}
