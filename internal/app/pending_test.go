package app

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/Mesh/internal/domain"
)

func TestPendingCalls_Supersede(t *testing.T) {
	p := NewPendingCalls(time.Hour, nil)

	p.Put(&domain.PendingCall{CallerID: "alice", CalleeID: "bob", Offer: "first"})
	p.Put(&domain.PendingCall{CallerID: "carol", CalleeID: "bob", Offer: "second"})

	pc, ok := p.Take("bob")
	if !ok {
		t.Fatalf("expected a queued offer")
	}
	if pc.CallerID != "carol" || pc.Offer != "second" {
		t.Fatalf("new offer must supersede the old one, got %+v", pc)
	}
	if _, ok := p.Take("bob"); ok {
		t.Fatalf("take must remove the entry")
	}
}

func TestPendingCalls_ExpiryFires(t *testing.T) {
	p := NewPendingCalls(20*time.Millisecond, nil)
	var expired atomic.Int32
	done := make(chan struct{})
	p.OnExpire = func(pc *domain.PendingCall) {
		if pc.CalleeID == "bob" {
			expired.Add(1)
		}
		close(done)
	}

	p.Put(&domain.PendingCall{CallerID: "alice", CalleeID: "bob", Offer: "o"})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expiry never fired")
	}
	if expired.Load() != 1 {
		t.Fatalf("expected one expiry")
	}
	if _, ok := p.Take("bob"); ok {
		t.Fatalf("expired entry must be gone")
	}
}

func TestPendingCalls_TakeCancelsExpiry(t *testing.T) {
	p := NewPendingCalls(20*time.Millisecond, nil)
	var expired atomic.Int32
	p.OnExpire = func(*domain.PendingCall) { expired.Add(1) }

	p.Put(&domain.PendingCall{CallerID: "alice", CalleeID: "bob", Offer: "o"})
	if _, ok := p.Take("bob"); !ok {
		t.Fatalf("expected entry")
	}

	time.Sleep(60 * time.Millisecond)
	if expired.Load() != 0 {
		t.Fatalf("taken entry must not expire")
	}
}

func TestPendingCalls_TakeFromMatchesCaller(t *testing.T) {
	p := NewPendingCalls(time.Hour, nil)
	p.Put(&domain.PendingCall{CallerID: "alice", CalleeID: "bob", Offer: "o"})

	if _, ok := p.TakeFrom("bob", "mallory"); ok {
		t.Fatalf("wrong caller must not clear the entry")
	}
	if _, ok := p.TakeFrom("bob", "alice"); !ok {
		t.Fatalf("matching caller must clear the entry")
	}
}
