package app

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dkeye/Mesh/internal/domain"
)

func TestGroupManager_CapacityEnforced(t *testing.T) {
	g := NewGroupManager(3)
	gid := domain.GroupID("g1")

	for i := 0; i < 3; i++ {
		uid := domain.UserID(fmt.Sprintf("u%d", i))
		if _, _, err := g.Join(gid, uid, string(uid)); err != nil {
			t.Fatalf("join %d failed: %v", i, err)
		}
	}

	if _, _, err := g.Join(gid, "u9", "u9"); !errors.Is(err, domain.ErrGroupFull) {
		t.Fatalf("expected full, got %v", err)
	}
	if g.Count(gid) != 3 {
		t.Fatalf("rejected join must not change size, got %d", g.Count(gid))
	}
}

func TestGroupManager_JoinReportsExistingAndFirst(t *testing.T) {
	g := NewGroupManager(6)
	gid := domain.GroupID("g1")

	existing, first, err := g.Join(gid, "a", "A")
	if err != nil || !first || len(existing) != 0 {
		t.Fatalf("first joiner: existing=%v first=%v err=%v", existing, first, err)
	}

	g.Join(gid, "b", "B")
	existing, first, err = g.Join(gid, "c", "C")
	if err != nil || first {
		t.Fatalf("third joiner must not be first, err=%v", err)
	}
	if len(existing) != 2 {
		t.Fatalf("joiner must learn both existing peers, got %v", existing)
	}
	for _, p := range existing {
		if p.ID == "c" {
			t.Fatalf("existing peers must not include the joiner")
		}
	}
}

func TestGroupManager_LeaveLifecycle(t *testing.T) {
	g := NewGroupManager(6)
	gid := domain.GroupID("g1")
	g.Join(gid, "a", "A")
	g.Join(gid, "b", "B")

	remaining, empty, was := g.Leave(gid, "a")
	if !was || empty {
		t.Fatalf("leave with one peer remaining: empty=%v was=%v", empty, was)
	}
	if len(remaining) != 1 || remaining[0].ID != "b" {
		t.Fatalf("unexpected remaining %v", remaining)
	}

	_, empty, was = g.Leave(gid, "b")
	if !was || !empty {
		t.Fatalf("last leave must destroy the session")
	}
	if g.Count(gid) != 0 {
		t.Fatalf("session must be gone")
	}

	if _, _, was := g.Leave(gid, "b"); was {
		t.Fatalf("leaving a dead session must be a no-op")
	}
}

func TestGroupManager_GroupsOf(t *testing.T) {
	g := NewGroupManager(6)
	g.Join("g1", "a", "A")
	g.Join("g2", "a", "A")
	g.Join("g2", "b", "B")

	got := g.GroupsOf("a")
	if len(got) != 2 {
		t.Fatalf("expected membership in two calls, got %v", got)
	}
	if got := g.GroupsOf("b"); len(got) != 1 || got[0] != "g2" {
		t.Fatalf("unexpected groups for b: %v", got)
	}
}
