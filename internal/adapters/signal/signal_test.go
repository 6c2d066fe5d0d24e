package signal

import (
	"encoding/json"
	"testing"

	"github.com/dkeye/Mesh/internal/core"
)

func TestHandlePing_Pong(t *testing.T) {
	c := &WsSignalConn{send: make(chan core.Frame, 1)}
	ctl := &Controller{}

	ctl.handlePing(c)

	var m map[string]any
	if err := json.Unmarshal(<-c.send, &m); err != nil {
		t.Fatalf("bad frame: %v", err)
	}
	if m["type"] != core.EvPong {
		t.Fatalf("expected %q, got %v", core.EvPong, m["type"])
	}
}

func TestTrySend_Backpressure(t *testing.T) {
	c := &WsSignalConn{send: make(chan core.Frame, 1)}

	if err := c.TrySend(core.Frame(`{}`)); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := c.TrySend(core.Frame(`{}`)); err != ErrBackpressure {
		t.Fatalf("full queue must report backpressure, got %v", err)
	}
}
