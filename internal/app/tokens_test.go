package app

import (
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Mesh/internal/domain"
)

func TestTokenService_SingleUse(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	s := NewTokenService(time.Minute, clk)

	tok := s.Issue("alice", "bob", domain.CallVideo)
	if err := s.Consume(tok.ID, "alice", "bob"); err != nil {
		t.Fatalf("first consume failed: %v", err)
	}
	if err := s.Consume(tok.ID, "alice", "bob"); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Fatalf("second consume must fail, got %v", err)
	}
}

func TestTokenService_PairBinding(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	s := NewTokenService(time.Minute, clk)

	tok := s.Issue("alice", "bob", domain.CallAudio)
	if err := s.Consume(tok.ID, "mallory", "bob"); !errors.Is(err, domain.ErrTokenMismatch) {
		t.Fatalf("caller mismatch must fail, got %v", err)
	}
	if err := s.Consume(tok.ID, "alice", "carol"); !errors.Is(err, domain.ErrTokenMismatch) {
		t.Fatalf("callee mismatch must fail, got %v", err)
	}
	// The failed attempts must not have burned the token.
	if err := s.Consume(tok.ID, "alice", "bob"); err != nil {
		t.Fatalf("minted pair must still succeed: %v", err)
	}
}

func TestTokenService_Expiry(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	s := NewTokenService(time.Minute, clk)

	tok := s.Issue("alice", "bob", domain.CallAudio)
	clk.Advance(61 * time.Second)
	if err := s.Consume(tok.ID, "alice", "bob"); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestTokenService_UnknownToken(t *testing.T) {
	s := NewTokenService(time.Minute, &fakeClock{now: time.Unix(1000, 0)})
	if err := s.Consume("nope", "alice", "bob"); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
