package signal

import "github.com/dkeye/Mesh/internal/core"

func (ctl *Controller) handlePing(c *WsSignalConn) {
	ctl.sendJSON(c, struct {
		Type string `json:"type"`
	}{core.EvPong})
}
