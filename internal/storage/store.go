// Package storage persists file-transfer records in SQLite so checkpointed
// progress survives server restarts and peer disconnects.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
)

const defaultBusyTimeout = 5000

// Store wraps the SQLite handle and implements core.TransferStore.
type Store struct {
	db    *sql.DB
	clock core.Clock
}

// NewStore initializes the SQLite database at the provided path. Call Close
// when done.
func NewStore(path string, clock core.Clock) (*Store, error) {
	if path == "" {
		path = "mesh.db"
	}
	if clock == nil {
		clock = core.RealClock{}
	}
	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, clock: clock}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
		// already in a form sqlite understands
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d", path, separator, defaultBusyTimeout)
}

// Migrate runs the schema creation statements.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS transfers (
			id TEXT PRIMARY KEY,
			sender_id TEXT NOT NULL,
			receiver_id TEXT NOT NULL,
			file_name TEXT NOT NULL,
			file_size INTEGER NOT NULL,
			mime_type TEXT NOT NULL DEFAULT '',
			total_chunks INTEGER NOT NULL,
			chunk_size INTEGER NOT NULL,
			file_hash TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			status_reason TEXT NOT NULL DEFAULT '',
			last_received_chunk INTEGER NOT NULL DEFAULT -1,
			bytes_transferred INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transfers_sender ON transfers(sender_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_transfers_receiver ON transfers(receiver_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_transfers_status ON transfers(status, updated_at)`,
		`CREATE TABLE IF NOT EXISTS call_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			caller_id TEXT NOT NULL,
			callee_id TEXT NOT NULL,
			call_type TEXT NOT NULL,
			outcome TEXT NOT NULL,
			duration_secs INTEGER NOT NULL DEFAULT 0,
			reason TEXT NOT NULL DEFAULT '',
			at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_call_logs_caller ON call_logs(caller_id, at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

var terminalList = []any{
	string(domain.TransferCompleted),
	string(domain.TransferCancelled),
	string(domain.TransferFailed),
	string(domain.TransferExpired),
}

func (s *Store) Create(ctx context.Context, t *domain.Transfer) error {
	now := s.clock.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = domain.TransferPending
	}
	if t.LastReceivedChunk == 0 {
		t.LastReceivedChunk = -1
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO transfers
		(id, sender_id, receiver_id, file_name, file_size, mime_type,
		 total_chunks, chunk_size, file_hash, status, status_reason,
		 last_received_chunk, bytes_transferred, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, string(t.SenderID), string(t.ReceiverID), t.FileName, t.FileSize,
		t.MimeType, t.TotalChunks, t.ChunkSize, t.FileHash, string(t.Status),
		t.StatusReason, t.LastReceivedChunk, t.BytesTransferred,
		now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

const transferColumns = `id, sender_id, receiver_id, file_name, file_size,
	mime_type, total_chunks, chunk_size, file_hash, status, status_reason,
	last_received_chunk, bytes_transferred, created_at, updated_at`

func scanTransfer(row interface{ Scan(...any) error }) (*domain.Transfer, error) {
	var t domain.Transfer
	var sender, receiver, status string
	var createdAt, updatedAt int64
	err := row.Scan(&t.ID, &sender, &receiver, &t.FileName, &t.FileSize,
		&t.MimeType, &t.TotalChunks, &t.ChunkSize, &t.FileHash, &status,
		&t.StatusReason, &t.LastReceivedChunk, &t.BytesTransferred,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	t.SenderID = domain.UserID(sender)
	t.ReceiverID = domain.UserID(receiver)
	t.Status = domain.TransferStatus(status)
	t.CreatedAt = time.UnixMilli(createdAt)
	t.UpdatedAt = time.UnixMilli(updatedAt)
	return &t, nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Transfer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE id = ?`, id)
	t, err := scanTransfer(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrTransferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transfer: %w", err)
	}
	return t, nil
}

func (s *Store) SetStatusIf(ctx context.Context, id string, to domain.TransferStatus, reason string, from ...domain.TransferStatus) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(from)), ",")
	args := []any{string(to), reason, s.clock.Now().UnixMilli(), id}
	for _, st := range from {
		args = append(args, string(st))
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE transfers SET status = ?, status_reason = ?, updated_at = ?
		 WHERE id = ? AND status IN (`+placeholders+`)`, args...)
	if err != nil {
		return false, fmt.Errorf("set status: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RecordProgress trusts the receiver's checkpoint but never lets the chunk
// index move backward and never touches a terminal row. The first accepted
// checkpoint also flips accepted -> transferring.
func (s *Store) RecordProgress(ctx context.Context, id string, lastChunk, bytes int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transfers SET last_received_chunk = ?, bytes_transferred = ?,
			status = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?) AND last_received_chunk <= ?`,
		lastChunk, bytes, string(domain.TransferTransferring),
		s.clock.Now().UnixMilli(), id,
		string(domain.TransferAccepted), string(domain.TransferTransferring),
		lastChunk)
	if err != nil {
		return false, fmt.Errorf("record progress: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkCompleted is authoritative: it forces the final chunk index and full
// byte count, overriding any lower value reported earlier.
func (s *Store) MarkCompleted(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transfers SET status = ?, status_reason = '',
			last_received_chunk = total_chunks - 1,
			bytes_transferred = file_size, updated_at = ?
		 WHERE id = ? AND status NOT IN (?,?,?,?)`,
		append([]any{string(domain.TransferCompleted),
			s.clock.Now().UnixMilli(), id}, terminalList...)...)
	if err != nil {
		return false, fmt.Errorf("mark completed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) ListOpenForUser(ctx context.Context, userID domain.UserID) ([]*domain.Transfer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transferColumns+` FROM transfers
		 WHERE (sender_id = ? OR receiver_id = ?) AND status NOT IN (?,?,?,?)
		 ORDER BY created_at`,
		append([]any{string(userID), string(userID)}, terminalList...)...)
	if err != nil {
		return nil, fmt.Errorf("list open: %w", err)
	}
	defer rows.Close()

	var out []*domain.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) PauseActiveForUser(ctx context.Context, userID domain.UserID, reason string) ([]*domain.Transfer, error) {
	open, err := s.ListOpenForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var paused []*domain.Transfer
	for _, t := range open {
		if !t.Status.Active() {
			continue
		}
		ok, err := s.SetStatusIf(ctx, t.ID, domain.TransferPaused, reason,
			domain.TransferAccepted, domain.TransferTransferring)
		if err != nil {
			return paused, err
		}
		if ok {
			t.Status = domain.TransferPaused
			t.StatusReason = reason
			paused = append(paused, t)
		}
	}
	return paused, nil
}

func (s *Store) CancelPendingFromSender(ctx context.Context, userID domain.UserID, reason string) ([]*domain.Transfer, error) {
	open, err := s.ListOpenForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var cancelled []*domain.Transfer
	for _, t := range open {
		if t.Status != domain.TransferPending || t.SenderID != userID {
			continue
		}
		ok, err := s.SetStatusIf(ctx, t.ID, domain.TransferCancelled, reason,
			domain.TransferPending)
		if err != nil {
			return cancelled, err
		}
		if ok {
			t.Status = domain.TransferCancelled
			t.StatusReason = reason
			cancelled = append(cancelled, t)
		}
	}
	return cancelled, nil
}

// InsertCallLog appends a settled-call record.
func (s *Store) InsertCallLog(ctx context.Context, rec domain.CallLogRecord) error {
	at := rec.At
	if at.IsZero() {
		at = s.clock.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO call_logs (caller_id, callee_id, call_type, outcome, duration_secs, reason, at)
		 VALUES (?,?,?,?,?,?,?)`,
		string(rec.CallerID), string(rec.CalleeID), string(rec.CallType),
		string(rec.Outcome), rec.DurationSecs, rec.Reason, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert call log: %w", err)
	}
	return nil
}

// ExpireStale sweeps records whose last touch fell outside the window.
// Each UPDATE is conditional on the expected status, so a live mutation of
// the same record racing the sweep wins.
func (s *Store) ExpireStale(ctx context.Context, now time.Time, pendingTTL, pausedTTL, activeTTL time.Duration) (int64, error) {
	var total int64

	sweeps := []struct {
		to       domain.TransferStatus
		reason   string
		cutoff   time.Time
		statuses []string
	}{
		// A stale pending transfer: the sender's in-memory buffer is
		// assumed gone.
		{domain.TransferExpired, "pending transfer went stale",
			now.Add(-pendingTTL), []string{string(domain.TransferPending)}},
		{domain.TransferExpired, "paused transfer went stale",
			now.Add(-pausedTTL), []string{string(domain.TransferPaused)}},
		{domain.TransferFailed, "transfer stalled mid-flight",
			now.Add(-activeTTL), []string{string(domain.TransferAccepted), string(domain.TransferTransferring)}},
	}

	for _, sw := range sweeps {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(sw.statuses)), ",")
		args := []any{string(sw.to), sw.reason, now.UnixMilli(), sw.cutoff.UnixMilli()}
		for _, st := range sw.statuses {
			args = append(args, st)
		}
		res, err := s.db.ExecContext(ctx,
			`UPDATE transfers SET status = ?, status_reason = ?, updated_at = ?
			 WHERE updated_at < ? AND status IN (`+placeholders+`)`, args...)
		if err != nil {
			return total, fmt.Errorf("sweep: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if total > 0 {
		log.Info().Str("module", "storage").Int64("swept", total).Msg("expired stale transfers")
	}
	return total, nil
}
