package domain

import (
	"errors"
	"time"
)

type TransferStatus string

const (
	TransferPending      TransferStatus = "pending"
	TransferAccepted     TransferStatus = "accepted"
	TransferTransferring TransferStatus = "transferring"
	TransferPaused       TransferStatus = "paused"
	TransferCompleted    TransferStatus = "completed"
	TransferCancelled    TransferStatus = "cancelled"
	TransferFailed       TransferStatus = "failed"
	TransferExpired      TransferStatus = "expired"
)

// Terminal reports whether no further mutation of the transfer is allowed.
func (s TransferStatus) Terminal() bool {
	switch s {
	case TransferCompleted, TransferCancelled, TransferFailed, TransferExpired:
		return true
	}
	return false
}

// Active means the peers are expected to be moving chunks right now.
func (s TransferStatus) Active() bool {
	return s == TransferAccepted || s == TransferTransferring
}

// MaxTransferSize is the hard ceiling on a single file. Bytes never touch
// the server; the cap bounds what a peer may ask another peer to hold.
const MaxTransferSize = int64(100) << 30 // 100 GiB

// Transfer is the durable record of a P2P file transfer. Chunks flow over a
// DataChannel between the peers; the server only checkpoints progress so the
// transfer survives disconnects.
type Transfer struct {
	ID                string
	SenderID          UserID
	ReceiverID        UserID
	FileName          string
	FileSize          int64
	MimeType          string
	TotalChunks       int64
	ChunkSize         int64
	FileHash          string
	Status            TransferStatus
	StatusReason      string
	LastReceivedChunk int64 // -1 until the first chunk lands
	BytesTransferred  int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

var ErrTransferNotFound = errors.New("transfer not found")
