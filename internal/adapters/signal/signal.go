// Package signal is the WebSocket transport. It owns the upgrade, the
// per-connection pumps and the inbound dispatch; every decision about who
// gets which event lives in the orchestrator.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/app/orch"
	"github.com/dkeye/Mesh/internal/config"
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/guard"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Orch  *orch.Orchestrator
	Guard *guard.Guard
	Cfg   *config.Config
}

func NewController(o *orch.Orchestrator, g *guard.Guard, cfg *config.Config) *Controller {
	return &Controller{Orch: o, Guard: g, Cfg: cfg}
}

// WsSignalConn is the single live connection for one identity. TrySend
// never blocks: a full outbound queue means the frame is dropped and the
// caller told, so one slow reader cannot stall delivery to everyone else.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades an authenticated request. Identity comes from the
// auth middleware, never from the client's first frame.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	uid := domain.UserID(c.GetString("user_id"))
	username := c.GetString("username")
	log.Info().Str("module", "signal").Str("user", string(uid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.Cfg.ReadLimit)

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.Cfg.SendBuffer),
	}
	connID := core.ConnID(uuid.NewString())

	ctl.Orch.OnConnect(uid, username, connID, conn)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, uid, connID, conn)
}
