package core

import (
	"context"
	"time"

	"github.com/dkeye/Mesh/internal/domain"
)

// Waker is the out-of-band wake channel for identities that have no live
// connection (push delivery mechanics live outside this process).
type Waker interface {
	Wake(userID domain.UserID, event string, payload any)
}

// MembershipProvider answers group-membership questions. Membership itself
// is owned by an external collaborator; the orchestrator only consults it.
type MembershipProvider interface {
	IsMember(groupID domain.GroupID, userID domain.UserID) bool
	Members(groupID domain.GroupID) []domain.UserID
}

// CallLogStore persists settled-call records.
type CallLogStore interface {
	InsertCallLog(ctx context.Context, rec domain.CallLogRecord) error
}

// TransferStore is the durable home of file-transfer records. Every
// mutation is conditional on the expected current status so concurrent
// sweeps and live updates cannot clobber each other.
type TransferStore interface {
	Create(ctx context.Context, t *domain.Transfer) error
	Get(ctx context.Context, id string) (*domain.Transfer, error)

	// SetStatusIf flips status to `to` only when the row currently holds
	// one of `from`. Returns false without error when the guard misses.
	SetStatusIf(ctx context.Context, id string, to domain.TransferStatus, reason string, from ...domain.TransferStatus) (bool, error)

	// RecordProgress checkpoints the receiver's position. Rejected when the
	// transfer is terminal or the chunk index would move backward.
	RecordProgress(ctx context.Context, id string, lastChunk, bytes int64) (bool, error)

	// MarkCompleted is the authoritative completion write: it forces the
	// final chunk index and full byte count regardless of earlier reports.
	MarkCompleted(ctx context.Context, id string) (bool, error)

	// ListOpenForUser returns every non-terminal transfer the user is a
	// party to, oldest first.
	ListOpenForUser(ctx context.Context, userID domain.UserID) ([]*domain.Transfer, error)

	// PauseActiveForUser pauses accepted/transferring rows touching the
	// user and returns what changed so peers can be notified.
	PauseActiveForUser(ctx context.Context, userID domain.UserID, reason string) ([]*domain.Transfer, error)

	// CancelPendingFromSender cancels pending rows whose sender is userID.
	// A pending file existed only in that sender's memory.
	CancelPendingFromSender(ctx context.Context, userID domain.UserID, reason string) ([]*domain.Transfer, error)

	// ExpireStale runs the periodic sweep: pending beyond pendingTTL and
	// paused beyond pausedTTL expire; accepted/transferring beyond
	// activeTTL fail. Returns the number of rows flipped.
	ExpireStale(ctx context.Context, now time.Time, pendingTTL, pausedTTL, activeTTL time.Duration) (int64, error)

	Close() error
}
