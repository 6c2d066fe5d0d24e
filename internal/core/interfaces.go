package core

import (
	"time"

	"github.com/dkeye/Mesh/internal/domain"
)

// Frame is a marshaled signaling payload ready for the wire.
type Frame []byte

// ConnID identifies one live transport connection. A user re-connecting
// gets a fresh ConnID; the registry uses it to detect stale disconnects.
type ConnID string

// SignalConnection abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// PresenceDTO is a read-only view for presence lists (no transport fields).
type PresenceDTO struct {
	ID       domain.UserID `json:"userId"`
	Username string        `json:"username"`
}

// ParticipantDTO describes one group-call participant.
type ParticipantDTO struct {
	ID       domain.UserID `json:"userId"`
	Username string        `json:"username"`
}

// TransferDTO is the wire view of a durable transfer record.
type TransferDTO struct {
	TransferID        string                `json:"transferId"`
	SenderID          domain.UserID         `json:"senderId"`
	ReceiverID        domain.UserID         `json:"receiverId"`
	FileName          string                `json:"fileName"`
	FileSize          int64                 `json:"fileSize"`
	MimeType          string                `json:"fileMimeType,omitempty"`
	TotalChunks       int64                 `json:"totalChunks"`
	ChunkSize         int64                 `json:"chunkSize"`
	FileHash          string                `json:"fileHash,omitempty"`
	Status            domain.TransferStatus `json:"status"`
	StatusReason      string                `json:"statusReason,omitempty"`
	LastReceivedChunk int64                 `json:"lastReceivedChunk"`
	BytesTransferred  int64                 `json:"bytesTransferred"`
}

func NewTransferDTO(t *domain.Transfer) TransferDTO {
	return TransferDTO{
		TransferID:        t.ID,
		SenderID:          t.SenderID,
		ReceiverID:        t.ReceiverID,
		FileName:          t.FileName,
		FileSize:          t.FileSize,
		MimeType:          t.MimeType,
		TotalChunks:       t.TotalChunks,
		ChunkSize:         t.ChunkSize,
		FileHash:          t.FileHash,
		Status:            t.Status,
		StatusReason:      t.StatusReason,
		LastReceivedChunk: t.LastReceivedChunk,
		BytesTransferred:  t.BytesTransferred,
	}
}

// Clock lets time-driven components be tested deterministically.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
