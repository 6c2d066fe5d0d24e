package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/guard"
)

func (ctl *Controller) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.Cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, uid domain.UserID, connID core.ConnID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("user", string(uid)).Msg("readPump closing")
		cancel()
		c.Close()
		ctl.Orch.OnDisconnect(uid, connID)
		ctl.Guard.Forget(uid)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("user", string(uid)).Msg("readPump read error")
				return
			}
			if !ctl.handleFrame(uid, c, data) {
				return
			}
		}
	}
}

// handleFrame screens one raw inbound frame and dispatches it. Returns
// false when the connection must be torn down.
func (ctl *Controller) handleFrame(uid domain.UserID, c *WsSignalConn, data []byte) bool {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("user", string(uid)).Msg("bad json")
		return true
	}

	verdict := ctl.Guard.Screen(uid, env.Type, len(data))
	switch verdict.Action {
	case guard.ActionDrop:
		return true
	case guard.ActionNotify:
		ctl.sendJSON(c, struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		}{core.EvRateLimited, verdict.Reason})
		return true
	case guard.ActionDisconnect:
		return false
	}

	ctl.dispatch(uid, c, env.Type, data)
	return true
}

func (ctl *Controller) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
