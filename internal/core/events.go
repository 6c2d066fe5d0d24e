package core

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Mesh/internal/domain"
)

// Event names form a closed vocabulary. Dispatch switches over these
// constants; an unknown type is dropped, never forwarded.
const (
	// client -> server
	EvPing                = "ping"
	EvCallRequestToken    = "call:request-token"
	EvCallOffer           = "call:offer"
	EvCallAnswer          = "call:answer"
	EvCallICECandidate    = "call:ice-candidate"
	EvCallReject          = "call:reject"
	EvCallEnd             = "call:end"
	EvCallToggleMedia     = "call:toggle-media"
	EvCallScreenShare     = "call:screen-share"
	EvCallRenegotiate     = "call:renegotiate"
	EvCallConnectionState = "call:connection-state"

	EvGroupJoin         = "group-call:join"
	EvGroupLeave        = "group-call:leave"
	EvGroupOffer        = "group-call:offer"
	EvGroupAnswer       = "group-call:answer"
	EvGroupICECandidate = "group-call:ice-candidate"
	EvGroupToggleMedia  = "group-call:toggle-media"
	EvGroupScreenShare  = "group-call:screen-share"

	EvTransferRequest      = "file-transfer:request"
	EvTransferAccept       = "file-transfer:accept"
	EvTransferReject       = "file-transfer:reject"
	EvTransferCancel       = "file-transfer:cancel"
	EvTransferPause        = "file-transfer:pause"
	EvTransferResume       = "file-transfer:resume"
	EvTransferProgress     = "file-transfer:progress"
	EvTransferComplete     = "file-transfer:complete"
	EvTransferSenderDone   = "file-transfer:sender-done"
	EvTransferOffer        = "file-transfer:offer"
	EvTransferAnswer       = "file-transfer:answer"
	EvTransferICECandidate = "file-transfer:ice-candidate"
	EvTransferCheckPending = "file-transfer:check-pending"

	// server -> client
	EvPong                = "pong"
	EvCallToken           = "call:token"
	EvCallIncoming        = "call:incoming"
	EvCallAnswered        = "call:answered"
	EvCallEnded           = "call:ended"
	EvCallRejected        = "call:rejected"
	EvCallUserOffline     = "call:user-offline"
	EvCallRestartICE      = "call:restart-ice"
	EvGroupExistingPeers  = "group-call:existing-peers"
	EvGroupPeerJoined     = "group-call:peer-joined"
	EvGroupPeerLeft       = "group-call:peer-left"
	EvGroupParticipants   = "group-call:participants-update"
	EvGroupEnded          = "group-call:ended"
	EvGroupStarted        = "group-call:started"
	EvTransferIncoming    = "file-transfer:incoming"
	EvTransferAccepted    = "file-transfer:accepted"
	EvTransferRejected    = "file-transfer:rejected"
	EvTransferCancelled   = "file-transfer:cancelled"
	EvTransferPaused      = "file-transfer:paused"
	EvTransferResumed     = "file-transfer:resume-ready"
	EvTransferProgressAck = "file-transfer:progress-ack"
	EvTransferCompleted   = "file-transfer:completed"
	EvTransferFailed      = "file-transfer:failed"
	EvTransferPendingList = "file-transfer:pending-list"
	EvUserOnline          = "user:online"
	EvUserOffline         = "user:offline"
	EvOnlineList          = "users:online-list"
	EvForceLogout         = "security:force-logout"
	EvRateLimited         = "security:rate-limited"
	EvError               = "error"
)

// Inbound payloads. Validator tags express the shape checks the guard runs
// after decode; size ceilings are enforced on the raw frame before decode.

type CallRequestTokenPayload struct {
	TargetUserID domain.UserID   `json:"targetUserId" validate:"required,max=64"`
	CallType     domain.CallType `json:"callType" validate:"required,oneof=audio video"`
}

type CallOfferPayload struct {
	TargetUserID domain.UserID   `json:"targetUserId" validate:"required,max=64"`
	Offer        string          `json:"offer" validate:"required"`
	CallType     domain.CallType `json:"callType" validate:"required,oneof=audio video"`
	IsReconnect  bool            `json:"isReconnect,omitempty"`
	CallToken    string          `json:"callToken,omitempty" validate:"omitempty,max=64"`
}

type CallAnswerPayload struct {
	CallerID domain.UserID `json:"callerId" validate:"required,max=64"`
	Answer   string        `json:"answer" validate:"required"`
}

type CallICEPayload struct {
	TargetUserID domain.UserID           `json:"targetUserId" validate:"required,max=64"`
	Candidate    webrtc.ICECandidateInit `json:"candidate"`
}

type CallRejectPayload struct {
	CallerID domain.UserID   `json:"callerId" validate:"required,max=64"`
	Reason   string          `json:"reason" validate:"max=128"`
	CallType domain.CallType `json:"callType" validate:"required,oneof=audio video"`
}

type CallEndPayload struct {
	TargetUserID domain.UserID   `json:"targetUserId" validate:"required,max=64"`
	CallDuration int64           `json:"callDuration" validate:"gte=0"`
	CallType     domain.CallType `json:"callType" validate:"required,oneof=audio video"`
	IsIncoming   bool            `json:"isIncoming"`
}

type CallToggleMediaPayload struct {
	TargetUserID domain.UserID `json:"targetUserId" validate:"required,max=64"`
	Kind         string        `json:"kind" validate:"required,oneof=audio video"`
	Enabled      bool          `json:"enabled"`
}

type CallScreenSharePayload struct {
	TargetUserID domain.UserID `json:"targetUserId" validate:"required,max=64"`
	Active       bool          `json:"active"`
}

type CallRenegotiatePayload struct {
	TargetUserID domain.UserID `json:"targetUserId" validate:"required,max=64"`
	Offer        string        `json:"offer" validate:"required"`
}

type CallConnectionStatePayload struct {
	TargetUserID domain.UserID `json:"targetUserId" validate:"required,max=64"`
	State        string        `json:"state" validate:"required,oneof=connected disconnected failed closed"`
}

type GroupJoinPayload struct {
	GroupID domain.GroupID `json:"groupId" validate:"required,max=64"`
}

type GroupLeavePayload struct {
	GroupID domain.GroupID `json:"groupId" validate:"required,max=64"`
}

type GroupSignalPayload struct {
	GroupID      domain.GroupID  `json:"groupId" validate:"required,max=64"`
	TargetUserID domain.UserID   `json:"targetUserId" validate:"required,max=64"`
	Payload      json.RawMessage `json:"payload" validate:"required"`
}

type GroupBroadcastPayload struct {
	GroupID domain.GroupID `json:"groupId" validate:"required,max=64"`
	Kind    string         `json:"kind" validate:"omitempty,oneof=audio video"`
	Enabled bool           `json:"enabled"`
	Active  bool           `json:"active"`
}

type TransferRequestPayload struct {
	TransferID  string        `json:"transferId" validate:"required,max=64"`
	ReceiverID  domain.UserID `json:"receiverId" validate:"required,max=64"`
	FileName    string        `json:"fileName" validate:"required,max=255"`
	FileSize    int64         `json:"fileSize" validate:"required,gt=0"`
	FileMime    string        `json:"fileMimeType" validate:"max=128"`
	TotalChunks int64         `json:"totalChunks" validate:"required,gt=0"`
	ChunkSize   int64         `json:"chunkSize" validate:"required,gt=0"`
	FileHash    string        `json:"fileHash,omitempty" validate:"omitempty,max=128"`
}

type TransferRefPayload struct {
	TransferID string `json:"transferId" validate:"required,max=64"`
}

type TransferProgressPayload struct {
	TransferID        string `json:"transferId" validate:"required,max=64"`
	LastReceivedChunk int64  `json:"lastReceivedChunk" validate:"gte=0"`
	BytesTransferred  int64  `json:"bytesTransferred" validate:"gte=0"`
	SpeedBps          int64  `json:"speedBps" validate:"gte=0"`
}

type TransferCompletePayload struct {
	TransferID string `json:"transferId" validate:"required,max=64"`
	Verified   bool   `json:"verified"`
	HashMatch  *bool  `json:"hashMatch,omitempty"`
}

type TransferSignalPayload struct {
	TransferID   string          `json:"transferId" validate:"required,max=64"`
	TargetUserID domain.UserID   `json:"targetUserId" validate:"required,max=64"`
	Payload      json.RawMessage `json:"payload" validate:"required"`
}

// SignalBody is the shape both group-call and file-transfer pairwise
// signaling payloads decode into for sanitization.
type SignalBody struct {
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}
