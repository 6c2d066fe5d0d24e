package storage

import (
	"context"
	"sync"
	"testing"
	"time"

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

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	store, err := NewStore(":memory:", clk)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store, clk
}

func sampleTransfer(id string) *domain.Transfer {
	return &domain.Transfer{
		ID:          id,
		SenderID:    "alice",
		ReceiverID:  "bob",
		FileName:    "report.pdf",
		FileSize:    1000,
		MimeType:    "application/pdf",
		TotalChunks: 10,
		ChunkSize:   100,
		Status:      domain.TransferPending,
	}
}

func TestTransferLifecycle(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, sampleTransfer("t1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.TransferPending || got.LastReceivedChunk != -1 {
		t.Fatalf("unexpected fresh transfer: %+v", got)
	}

	ok, err := store.SetStatusIf(ctx, "t1", domain.TransferAccepted, "",
		domain.TransferPending, domain.TransferPaused)
	if err != nil || !ok {
		t.Fatalf("accept: ok=%v err=%v", ok, err)
	}

	// Idempotent accept: the status guard misses, no error.
	ok, err = store.SetStatusIf(ctx, "t1", domain.TransferAccepted, "",
		domain.TransferPending, domain.TransferPaused)
	if err != nil || ok {
		t.Fatalf("re-accept must be a no-op, ok=%v err=%v", ok, err)
	}

	if _, err := store.Get(ctx, "missing"); err != domain.ErrTransferNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestProgressMonotoneAndTerminalNoop(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	store.Create(ctx, sampleTransfer("t1"))
	store.SetStatusIf(ctx, "t1", domain.TransferAccepted, "", domain.TransferPending)

	if ok, _ := store.RecordProgress(ctx, "t1", 3, 400); !ok {
		t.Fatalf("first checkpoint must land")
	}
	got, _ := store.Get(ctx, "t1")
	if got.Status != domain.TransferTransferring || got.LastReceivedChunk != 3 {
		t.Fatalf("unexpected after checkpoint: %+v", got)
	}

	// Backward write rejected.
	if ok, _ := store.RecordProgress(ctx, "t1", 1, 100); ok {
		t.Fatalf("chunk index must not move backward")
	}
	got, _ = store.Get(ctx, "t1")
	if got.LastReceivedChunk != 3 || got.BytesTransferred != 400 {
		t.Fatalf("backward write leaked: %+v", got)
	}

	// Terminal no-op.
	store.SetStatusIf(ctx, "t1", domain.TransferCancelled, "user cancelled",
		domain.TransferAccepted, domain.TransferTransferring)
	if ok, _ := store.RecordProgress(ctx, "t1", 9, 900); ok {
		t.Fatalf("progress after terminal status must be a no-op")
	}
}

func TestMarkCompletedAuthoritative(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	store.Create(ctx, sampleTransfer("t1"))
	store.SetStatusIf(ctx, "t1", domain.TransferAccepted, "", domain.TransferPending)
	store.RecordProgress(ctx, "t1", 4, 500)

	ok, err := store.MarkCompleted(ctx, "t1")
	if err != nil || !ok {
		t.Fatalf("complete: ok=%v err=%v", ok, err)
	}
	got, _ := store.Get(ctx, "t1")
	if got.Status != domain.TransferCompleted {
		t.Fatalf("status: %v", got.Status)
	}
	if got.LastReceivedChunk != 9 || got.BytesTransferred != 1000 {
		t.Fatalf("completion must force final chunk and full size: %+v", got)
	}

	if ok, _ := store.MarkCompleted(ctx, "t1"); ok {
		t.Fatalf("second complete must be a no-op")
	}
}

func TestPauseAndCancelOnDisconnect(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	// Active transfer pauses, pending-from-sender cancels.
	active := sampleTransfer("t-active")
	store.Create(ctx, active)
	store.SetStatusIf(ctx, "t-active", domain.TransferTransferring, "",
		domain.TransferPending)
	store.Create(ctx, sampleTransfer("t-pending"))

	paused, err := store.PauseActiveForUser(ctx, "alice", "peer disconnected")
	if err != nil || len(paused) != 1 || paused[0].ID != "t-active" {
		t.Fatalf("pause: %v %v", paused, err)
	}
	got, _ := store.Get(ctx, "t-active")
	if got.Status != domain.TransferPaused || got.StatusReason != "peer disconnected" {
		t.Fatalf("unexpected paused row: %+v", got)
	}

	cancelled, err := store.CancelPendingFromSender(ctx, "alice", "sender disconnected")
	if err != nil || len(cancelled) != 1 || cancelled[0].ID != "t-pending" {
		t.Fatalf("cancel pending: %v %v", cancelled, err)
	}

	// Receiver disconnecting never cancels a pending transfer.
	store.Create(ctx, sampleTransfer("t-pending-2"))
	cancelled, err = store.CancelPendingFromSender(ctx, "bob", "x")
	if err != nil || len(cancelled) != 0 {
		t.Fatalf("receiver must not cancel sender's pending: %v %v", cancelled, err)
	}
}

func TestExpireStaleSweep(t *testing.T) {
	store, clk := newTestStore(t)
	ctx := context.Background()

	store.Create(ctx, sampleTransfer("t-pending"))
	store.Create(ctx, sampleTransfer("t-paused"))
	store.SetStatusIf(ctx, "t-paused", domain.TransferPaused, "p", domain.TransferPending)
	store.Create(ctx, sampleTransfer("t-active"))
	store.SetStatusIf(ctx, "t-active", domain.TransferTransferring, "", domain.TransferPending)

	// Inside every window: nothing flips.
	n, err := store.ExpireStale(ctx, clk.Now().Add(time.Minute), 5*time.Minute, 24*time.Hour, 5*time.Minute)
	if err != nil || n != 0 {
		t.Fatalf("early sweep flipped %d err=%v", n, err)
	}

	// Past pending/active windows but not the paused one.
	n, err = store.ExpireStale(ctx, clk.Now().Add(10*time.Minute), 5*time.Minute, 24*time.Hour, 5*time.Minute)
	if err != nil || n != 2 {
		t.Fatalf("sweep flipped %d err=%v", n, err)
	}
	if got, _ := store.Get(ctx, "t-pending"); got.Status != domain.TransferExpired {
		t.Fatalf("pending should expire: %v", got.Status)
	}
	if got, _ := store.Get(ctx, "t-active"); got.Status != domain.TransferFailed {
		t.Fatalf("stale active should fail: %v", got.Status)
	}
	if got, _ := store.Get(ctx, "t-paused"); got.Status != domain.TransferPaused {
		t.Fatalf("paused inside 24h must survive: %v", got.Status)
	}

	// Paused expires after its long window.
	n, err = store.ExpireStale(ctx, clk.Now().Add(25*time.Hour), 5*time.Minute, 24*time.Hour, 5*time.Minute)
	if err != nil || n != 1 {
		t.Fatalf("paused sweep flipped %d err=%v", n, err)
	}
}

func TestListOpenForUser(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	store.Create(ctx, sampleTransfer("t1"))
	done := sampleTransfer("t2")
	store.Create(ctx, done)
	store.SetStatusIf(ctx, "t2", domain.TransferCancelled, "", domain.TransferPending)

	open, err := store.ListOpenForUser(ctx, "bob")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != 1 || open[0].ID != "t1" {
		t.Fatalf("terminal rows must be filtered: %v", open)
	}
	if open, _ := store.ListOpenForUser(ctx, "nobody"); len(open) != 0 {
		t.Fatalf("stranger sees nothing")
	}
}
