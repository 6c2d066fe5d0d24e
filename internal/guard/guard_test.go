package guard

import (
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Mesh/internal/config"
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testCfg() config.GuardConfig {
	return config.GuardConfig{
		MaxPayloadBytes: 1024,
		EventLimit:      5,
		EventWindow:     10 * time.Second,
		CallLimit:       2,
		CallWindow:      time.Minute,
	}
}

func TestScreen_RateLimitWindow(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	g := NewWithClock(testCfg(), clk)
	uid := domain.UserID("u1")

	for i := 0; i < 5; i++ {
		if v := g.Screen(uid, core.EvCallICECandidate, 10); v.Action != ActionAllow {
			t.Fatalf("event %d unexpectedly limited", i)
		}
	}
	if v := g.Screen(uid, core.EvCallICECandidate, 10); v.Action != ActionNotify {
		t.Fatalf("expected throttle notice, got %v", v.Action)
	}

	clk.Advance(11 * time.Second)
	if v := g.Screen(uid, core.EvCallICECandidate, 10); v.Action != ActionAllow {
		t.Fatalf("window should have slid")
	}
}

func TestScreen_CallClassTighterLimit(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	g := NewWithClock(testCfg(), clk)
	uid := domain.UserID("u1")

	if v := g.Screen(uid, core.EvCallOffer, 10); v.Action != ActionAllow {
		t.Fatalf("first offer limited")
	}
	if v := g.Screen(uid, core.EvCallOffer, 10); v.Action != ActionAllow {
		t.Fatalf("second offer limited")
	}
	if v := g.Screen(uid, core.EvCallOffer, 10); v.Action != ActionNotify {
		t.Fatalf("third offer should hit the call-class limit")
	}
	// Cheap events keep flowing under the general limit.
	if v := g.Screen(uid, core.EvCallICECandidate, 10); v.Action != ActionAllow {
		t.Fatalf("candidate should still pass")
	}
}

func TestScreen_OversizedDroppedSilently(t *testing.T) {
	g := NewWithClock(testCfg(), &fakeClock{now: time.Unix(0, 0)})
	if v := g.Screen("u1", core.EvCallOffer, 4096); v.Action != ActionDrop {
		t.Fatalf("expected silent drop, got %v", v.Action)
	}
}

func TestScreen_BannedDisconnects(t *testing.T) {
	g := NewWithClock(testCfg(), &fakeClock{now: time.Unix(0, 0)})
	g.Ban("evil")
	if v := g.Screen("evil", core.EvPing, 2); v.Action != ActionDisconnect {
		t.Fatalf("expected disconnect, got %v", v.Action)
	}
}

func TestValidatePayload(t *testing.T) {
	g := NewWithClock(testCfg(), &fakeClock{now: time.Unix(0, 0)})

	ok := core.CallOfferPayload{TargetUserID: "u2", Offer: "v=0", CallType: domain.CallVideo}
	if err := g.ValidatePayload("u1", core.EvCallOffer, ok); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}

	missing := core.CallOfferPayload{TargetUserID: "u2", CallType: domain.CallVideo}
	if err := g.ValidatePayload("u1", core.EvCallOffer, missing); err == nil {
		t.Fatalf("missing offer field must fail validation")
	}

	badType := core.CallOfferPayload{TargetUserID: "u2", Offer: "v=0", CallType: "hologram"}
	if err := g.ValidatePayload("u1", core.EvCallOffer, badType); err == nil {
		t.Fatalf("unknown call type must fail validation")
	}
}
