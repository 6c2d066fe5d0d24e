package app

import (
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Mesh/internal/config"
	"github.com/dkeye/Mesh/internal/domain"
)

func fastCallCfg() config.CallConfig {
	return config.CallConfig{
		PendingTTL:     time.Second,
		TokenTTL:       time.Minute,
		ICEFailTimeout: 30 * time.Millisecond,
		ICEDiscGrace:   20 * time.Millisecond,
		ICEDiscTimeout: 60 * time.Millisecond,
	}
}

type recoveryRecorder struct {
	mu       sync.Mutex
	restarts []domain.UserID
	ended    []string
}

func (r *recoveryRecorder) restart(uid domain.UserID) {
	r.mu.Lock()
	r.restarts = append(r.restarts, uid)
	r.mu.Unlock()
}

func (r *recoveryRecorder) forceEnd(caller, callee domain.UserID, _ domain.CallType, reason string) {
	r.mu.Lock()
	r.ended = append(r.ended, reason)
	r.mu.Unlock()
}

func (r *recoveryRecorder) snapshot() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.restarts), len(r.ended)
}

func TestCallIndex_PairTracking(t *testing.T) {
	ci := NewCallIndex(fastCallCfg())

	ci.MarkActive("alice", "bob", domain.CallVideo)
	if peer, _, ok := ci.PeerOf("alice"); !ok || peer != "bob" {
		t.Fatalf("peer of alice: %v %v", peer, ok)
	}
	if peer, _, ok := ci.PeerOf("bob"); !ok || peer != "alice" {
		t.Fatalf("peer of bob: %v %v", peer, ok)
	}

	ci.Clear("bob")
	if _, _, ok := ci.PeerOf("alice"); ok {
		t.Fatalf("clearing one end must drop both")
	}
}

func TestCallIndex_ConnectedExactlyOnce(t *testing.T) {
	ci := NewCallIndex(fastCallCfg())
	ci.MarkActive("alice", "bob", domain.CallVideo)

	if !ci.HandleConnectionState("alice", "connected") {
		t.Fatalf("first connected report must transition")
	}
	for i := 0; i < 3; i++ {
		if ci.HandleConnectionState("alice", "connected") {
			t.Fatalf("repeat connected reports must be no-ops")
		}
	}
	if ci.HandleConnectionState("bob", "connected") {
		t.Fatalf("the pair connects once, not once per end")
	}
}

func TestCallIndex_FailedRestartsOnceThenForceEnds(t *testing.T) {
	rec := &recoveryRecorder{}
	ci := NewCallIndex(fastCallCfg())
	ci.OnRestartICE = rec.restart
	ci.OnForceEnd = rec.forceEnd

	ci.MarkActive("alice", "bob", domain.CallVideo)
	ci.HandleConnectionState("alice", "failed")

	restarts, ended := rec.snapshot()
	if restarts != 1 || ended != 0 {
		t.Fatalf("first failure must instruct one restart, got restarts=%d ended=%d", restarts, ended)
	}

	// No recovery: the fallback timer force-ends the call.
	time.Sleep(80 * time.Millisecond)
	if _, ended := rec.snapshot(); ended != 1 {
		t.Fatalf("fallback must force-end, got %d", ended)
	}
	if _, _, ok := ci.PeerOf("alice"); ok {
		t.Fatalf("pair must be gone after force-end")
	}
}

func TestCallIndex_ConnectedCancelsFallback(t *testing.T) {
	rec := &recoveryRecorder{}
	ci := NewCallIndex(fastCallCfg())
	ci.OnRestartICE = rec.restart
	ci.OnForceEnd = rec.forceEnd

	ci.MarkActive("alice", "bob", domain.CallVideo)
	ci.HandleConnectionState("alice", "failed")
	ci.HandleConnectionState("alice", "connected")

	time.Sleep(80 * time.Millisecond)
	if _, ended := rec.snapshot(); ended != 0 {
		t.Fatalf("recovery must cancel the fallback")
	}
	if _, _, ok := ci.PeerOf("alice"); !ok {
		t.Fatalf("recovered pair must stay tracked")
	}
}

func TestCallIndex_DisconnectedGraceThenRestart(t *testing.T) {
	rec := &recoveryRecorder{}
	ci := NewCallIndex(fastCallCfg())
	ci.OnRestartICE = rec.restart
	ci.OnForceEnd = rec.forceEnd

	ci.MarkActive("alice", "bob", domain.CallAudio)
	ci.HandleConnectionState("bob", "disconnected")

	if restarts, _ := rec.snapshot(); restarts != 0 {
		t.Fatalf("restart must wait out the grace period")
	}
	time.Sleep(40 * time.Millisecond)
	if restarts, _ := rec.snapshot(); restarts != 1 {
		t.Fatalf("expected restart after grace, got %d", restarts)
	}
	time.Sleep(60 * time.Millisecond)
	if _, ended := rec.snapshot(); ended != 1 {
		t.Fatalf("unrecovered disconnect must force-end, got %d", ended)
	}
}

func TestCallIndex_ClosedForceEndsImmediately(t *testing.T) {
	rec := &recoveryRecorder{}
	ci := NewCallIndex(fastCallCfg())
	ci.OnForceEnd = rec.forceEnd

	ci.MarkActive("alice", "bob", domain.CallAudio)
	ci.HandleConnectionState("alice", "closed")

	if _, ended := rec.snapshot(); ended != 1 {
		t.Fatalf("closed must force-end immediately")
	}
}
