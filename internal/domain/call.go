package domain

import (
	"errors"
	"time"
)

type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

func (t CallType) Valid() bool {
	return t == CallAudio || t == CallVideo
}

// CallState tracks a 1:1 call pair as seen by the server. The server never
// touches media; states follow the signaling it relays.
type CallState string

const (
	CallConnecting   CallState = "connecting"
	CallConnected    CallState = "connected"
	CallReconnecting CallState = "reconnecting"
)

// PendingCall is a queued offer for a callee that is momentarily
// unreachable. Exactly one per callee; a new offer supersedes the old one.
type PendingCall struct {
	CallerID       UserID
	CallerUsername string
	CalleeID       UserID
	Offer          string
	CallType       CallType
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// CallToken binds a (caller, callee) pair before an offer is trusted.
// Single use, short lived.
type CallToken struct {
	ID        string
	CallerID  UserID
	CalleeID  UserID
	CallType  CallType
	IssuedAt  time.Time
	ExpiresAt time.Time
	Consumed  bool
}

var (
	ErrTokenNotFound = errors.New("call token not found")
	ErrTokenExpired  = errors.New("call token expired")
	ErrTokenConsumed = errors.New("call token already consumed")
	ErrTokenMismatch = errors.New("call token pair mismatch")
)

// CallLogOutcome is what gets emitted to the call log when a call settles.
type CallLogOutcome string

const (
	CallLogCompleted CallLogOutcome = "completed"
	CallLogMissed    CallLogOutcome = "missed"
	CallLogRejected  CallLogOutcome = "rejected"
)

// CallLogRecord is the durable trace of a settled call.
type CallLogRecord struct {
	CallerID     UserID
	CalleeID     UserID
	CallType     CallType
	Outcome      CallLogOutcome
	DurationSecs int64
	Reason       string
	At           time.Time
}
