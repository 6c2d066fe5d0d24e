package orch

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
)

// RequestTransfer persists the transfer as pending and notifies the
// receiver when reachable. An unreachable receiver is not a failure: the
// record stays pending until the receiver shows up or the sweep expires it.
func (o *Orchestrator) RequestTransfer(uid domain.UserID, p core.TransferRequestPayload) {
	ctx := context.Background()

	maxSize := o.Transfer.MaxFileSize
	if maxSize <= 0 {
		maxSize = domain.MaxTransferSize
	}
	if p.FileSize > maxSize {
		log.Warn().Str("module", "orch").Str("sender", string(uid)).
			Int64("size", p.FileSize).Str("audit", "file over size ceiling").
			Msg("transfer request rejected")
		o.pushError(uid, "file_too_large")
		return
	}

	t := &domain.Transfer{
		ID:          p.TransferID,
		SenderID:    uid,
		ReceiverID:  p.ReceiverID,
		FileName:    p.FileName,
		FileSize:    p.FileSize,
		MimeType:    p.FileMime,
		TotalChunks: p.TotalChunks,
		ChunkSize:   p.ChunkSize,
		FileHash:    p.FileHash,
		Status:      domain.TransferPending,
	}
	if err := o.Store.Create(ctx, t); err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("transfer create failed")
		o.pushError(uid, "transfer_create_failed")
		return
	}

	senderName, _ := o.Registry.UsernameOf(uid)
	incoming := struct {
		Type           string           `json:"type"`
		Transfer       core.TransferDTO `json:"transfer"`
		SenderUsername string           `json:"senderUsername"`
	}{core.EvTransferIncoming, core.NewTransferDTO(t), senderName}

	if !o.push(p.ReceiverID, incoming) {
		o.Waker.Wake(p.ReceiverID, core.EvTransferIncoming, map[string]any{
			"transferId": t.ID, "senderId": uid, "fileName": t.FileName,
		})
	}
}

// AcceptTransfer is idempotent: re-accepting an already-accepted transfer
// produces no duplicate relay and no error, guarding duplicate-click races.
func (o *Orchestrator) AcceptTransfer(uid domain.UserID, p core.TransferRefPayload) {
	ctx := context.Background()
	t, err := o.Store.Get(ctx, p.TransferID)
	if err != nil {
		o.transferLookupFailed(uid, p.TransferID, err)
		return
	}
	if t.ReceiverID != uid {
		o.auditTransfer(uid, t.ID, "accept by non-receiver")
		return
	}
	if t.Status == domain.TransferAccepted || t.Status == domain.TransferTransferring {
		return
	}

	ok, err := o.Store.SetStatusIf(ctx, t.ID, domain.TransferAccepted, "",
		domain.TransferPending, domain.TransferPaused)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("transfer accept failed")
		return
	}
	if !ok {
		// Lost a race against a terminal transition.
		return
	}

	o.push(t.SenderID, struct {
		Type            string `json:"type"`
		TransferID      string `json:"transferId"`
		ResumeFromChunk int64  `json:"resumeFromChunk"`
	}{core.EvTransferAccepted, t.ID, t.LastReceivedChunk + 1})
}

// RejectTransfer is terminal and notifies the sender.
func (o *Orchestrator) RejectTransfer(uid domain.UserID, p core.TransferRefPayload) {
	ctx := context.Background()
	t, err := o.Store.Get(ctx, p.TransferID)
	if err != nil {
		o.transferLookupFailed(uid, p.TransferID, err)
		return
	}
	if t.ReceiverID != uid {
		o.auditTransfer(uid, t.ID, "reject by non-receiver")
		return
	}

	ok, err := o.Store.SetStatusIf(ctx, t.ID, domain.TransferCancelled, "rejected by receiver",
		domain.TransferPending, domain.TransferAccepted, domain.TransferTransferring, domain.TransferPaused)
	if err != nil || !ok {
		return
	}
	o.push(t.SenderID, struct {
		Type       string `json:"type"`
		TransferID string `json:"transferId"`
	}{core.EvTransferRejected, t.ID})
}

// CancelTransfer may come from either party; terminal, notifies the other.
func (o *Orchestrator) CancelTransfer(uid domain.UserID, p core.TransferRefPayload) {
	ctx := context.Background()
	t, err := o.Store.Get(ctx, p.TransferID)
	if err != nil {
		o.transferLookupFailed(uid, p.TransferID, err)
		return
	}
	other, ok := o.otherParty(t, uid)
	if !ok {
		o.auditTransfer(uid, t.ID, "cancel by non-party")
		return
	}

	changed, err := o.Store.SetStatusIf(ctx, t.ID, domain.TransferCancelled, "cancelled",
		domain.TransferPending, domain.TransferAccepted, domain.TransferTransferring, domain.TransferPaused)
	if err != nil || !changed {
		return
	}
	o.push(other, struct {
		Type       string        `json:"type"`
		TransferID string        `json:"transferId"`
		By         domain.UserID `json:"by"`
	}{core.EvTransferCancelled, t.ID, uid})
}

// PauseTransfer is the explicit variant; disconnects pause implicitly.
func (o *Orchestrator) PauseTransfer(uid domain.UserID, p core.TransferRefPayload) {
	ctx := context.Background()
	t, err := o.Store.Get(ctx, p.TransferID)
	if err != nil {
		o.transferLookupFailed(uid, p.TransferID, err)
		return
	}
	other, ok := o.otherParty(t, uid)
	if !ok {
		o.auditTransfer(uid, t.ID, "pause by non-party")
		return
	}

	changed, err := o.Store.SetStatusIf(ctx, t.ID, domain.TransferPaused, "paused by user",
		domain.TransferAccepted, domain.TransferTransferring)
	if err != nil || !changed {
		return
	}
	o.push(other, struct {
		Type       string        `json:"type"`
		TransferID string        `json:"transferId"`
		By         domain.UserID `json:"by"`
		Reason     string        `json:"reason"`
	}{core.EvTransferPaused, t.ID, uid, "paused by user"})
}

// ResumeTransfer is asymmetric. A resuming sender gets resume metadata
// (and the receiver a nudge if online); a resuming receiver flips the
// record back to accepted and re-triggers the accept flow, so the sender
// sees the same signal as a fresh accept rather than a distinct popup.
func (o *Orchestrator) ResumeTransfer(uid domain.UserID, p core.TransferRefPayload) {
	ctx := context.Background()
	t, err := o.Store.Get(ctx, p.TransferID)
	if err != nil {
		o.transferLookupFailed(uid, p.TransferID, err)
		return
	}
	if _, party := o.otherParty(t, uid); !party {
		o.auditTransfer(uid, t.ID, "resume by non-party")
		return
	}
	if t.Status.Terminal() {
		o.pushError(uid, "transfer_terminal")
		return
	}

	if uid == t.SenderID {
		o.push(uid, struct {
			Type     string           `json:"type"`
			Transfer core.TransferDTO `json:"transfer"`
		}{core.EvTransferResumed, core.NewTransferDTO(t)})

		if !o.push(t.ReceiverID, struct {
			Type     string           `json:"type"`
			Transfer core.TransferDTO `json:"transfer"`
		}{core.EvTransferResumed, core.NewTransferDTO(t)}) {
			o.Waker.Wake(t.ReceiverID, core.EvTransferResumed, map[string]any{"transferId": t.ID})
		}
		return
	}

	// The relay only goes out once the row really is accepted, otherwise
	// the sender would push chunks against a record that rejects progress.
	if t.Status == domain.TransferPaused || t.Status == domain.TransferPending {
		if ok, _ := o.Store.SetStatusIf(ctx, t.ID, domain.TransferAccepted, "",
			domain.TransferPaused, domain.TransferPending); !ok {
			return
		}
	}
	o.push(t.SenderID, struct {
		Type            string `json:"type"`
		TransferID      string `json:"transferId"`
		ResumeFromChunk int64  `json:"resumeFromChunk"`
	}{core.EvTransferAccepted, t.ID, t.LastReceivedChunk + 1})
}

// TransferProgress checkpoints the receiver's position and acks the sender.
// Writes against a terminal record and backward chunk indexes are no-ops.
func (o *Orchestrator) TransferProgress(uid domain.UserID, p core.TransferProgressPayload) {
	ctx := context.Background()
	t, err := o.Store.Get(ctx, p.TransferID)
	if err != nil {
		return
	}
	if t.ReceiverID != uid {
		o.auditTransfer(uid, t.ID, "progress by non-receiver")
		return
	}
	if t.Status == domain.TransferFailed || t.Status == domain.TransferExpired {
		// The sweep killed it while chunks were still in flight; tell the
		// receiver so the client stops pushing.
		o.push(uid, struct {
			Type       string `json:"type"`
			TransferID string `json:"transferId"`
			Reason     string `json:"reason"`
		}{core.EvTransferFailed, t.ID, t.StatusReason})
		return
	}

	ok, err := o.Store.RecordProgress(ctx, t.ID, p.LastReceivedChunk, p.BytesTransferred)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("progress checkpoint failed")
		return
	}
	if !ok {
		return
	}

	o.push(t.SenderID, struct {
		Type              string `json:"type"`
		TransferID        string `json:"transferId"`
		LastReceivedChunk int64  `json:"lastReceivedChunk"`
		BytesTransferred  int64  `json:"bytesTransferred"`
		SpeedBps          int64  `json:"speedBps"`
	}{core.EvTransferProgressAck, t.ID, p.LastReceivedChunk, p.BytesTransferred, p.SpeedBps})
}

// CompleteTransfer is receiver-confirmed and authoritative: the stored
// record gets the final chunk index and the full byte count even if the
// last progress report said less.
func (o *Orchestrator) CompleteTransfer(uid domain.UserID, p core.TransferCompletePayload) {
	ctx := context.Background()
	t, err := o.Store.Get(ctx, p.TransferID)
	if err != nil {
		o.transferLookupFailed(uid, p.TransferID, err)
		return
	}
	if t.ReceiverID != uid {
		o.auditTransfer(uid, t.ID, "complete by non-receiver")
		return
	}

	ok, err := o.Store.MarkCompleted(ctx, t.ID)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("transfer complete failed")
		return
	}
	if !ok {
		return
	}

	o.push(t.SenderID, struct {
		Type       string `json:"type"`
		TransferID string `json:"transferId"`
		Verified   bool   `json:"verified"`
		HashMatch  *bool  `json:"hashMatch,omitempty"`
	}{core.EvTransferCompleted, t.ID, p.Verified, p.HashMatch})
}

// SenderDone is a best-effort backstop: it lets the receiver finalize by
// chunk count when its own completion marker was lost in transit.
func (o *Orchestrator) SenderDone(uid domain.UserID, p core.TransferRefPayload) {
	t, err := o.Store.Get(context.Background(), p.TransferID)
	if err != nil {
		return
	}
	if t.SenderID != uid {
		o.auditTransfer(uid, t.ID, "sender-done by non-sender")
		return
	}
	o.push(t.ReceiverID, struct {
		Type        string `json:"type"`
		TransferID  string `json:"transferId"`
		TotalChunks int64  `json:"totalChunks"`
	}{core.EvTransferSenderDone, t.ID, t.TotalChunks})
}

// CheckPending runs on reconnect: sweep stale records, then return the
// caller's resumable transfers. Pending transfers whose sender is gone are
// cancelled on the spot rather than offered for resume.
func (o *Orchestrator) CheckPending(uid domain.UserID) {
	ctx := context.Background()

	if _, err := o.Store.ExpireStale(ctx, o.now(), o.Transfer.PendingTTL,
		o.Transfer.PausedTTL, o.Transfer.ActiveTTL); err != nil {
		// A missed cleanup is a degraded state, not a crash.
		log.Error().Err(err).Str("module", "orch").Msg("stale sweep failed")
	}

	open, err := o.Store.ListOpenForUser(ctx, uid)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("pending list failed")
		return
	}

	out := make([]core.TransferDTO, 0, len(open))
	for _, t := range open {
		if t.ReceiverID == uid && t.Status == domain.TransferPending {
			if _, senderOnline := o.Registry.Resolve(t.SenderID); !senderOnline {
				// The file lived only in the sender's memory.
				if ok, _ := o.Store.SetStatusIf(ctx, t.ID, domain.TransferCancelled,
					"sender unreachable", domain.TransferPending); ok {
					continue
				}
			}
		}
		out = append(out, core.NewTransferDTO(t))
	}

	o.push(uid, struct {
		Type      string             `json:"type"`
		Transfers []core.TransferDTO `json:"transfers"`
	}{core.EvTransferPendingList, out})
}

// TransferSignal relays the DataChannel bootstrap (offer/answer/ICE riding
// the same substrate), gated on both ends being the transfer's parties.
func (o *Orchestrator) TransferSignal(uid domain.UserID, evType string, p core.TransferSignalPayload) {
	t, err := o.Store.Get(context.Background(), p.TransferID)
	if err != nil {
		return
	}
	other, ok := o.otherParty(t, uid)
	if !ok || other != p.TargetUserID {
		o.auditTransfer(uid, t.ID, "signal by non-party")
		return
	}
	if t.Status.Terminal() {
		return
	}

	payload, ok := o.sanitizeSignalBody(uid, evType, p.Payload)
	if !ok {
		return
	}
	o.push(p.TargetUserID, struct {
		Type       string          `json:"type"`
		TransferID string          `json:"transferId"`
		UserID     domain.UserID   `json:"userId"`
		Payload    json.RawMessage `json:"payload"`
	}{evType, t.ID, uid, payload})
}

// pauseTransfersOnDisconnect: active transfers touching the identity pause
// (checkpointed progress survives the dead transport); only pending ones
// whose sender vanished are cancelled outright.
func (o *Orchestrator) pauseTransfersOnDisconnect(uid domain.UserID) {
	ctx := context.Background()

	paused, err := o.Store.PauseActiveForUser(ctx, uid, "peer disconnected")
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("pause on disconnect failed")
	}
	for _, t := range paused {
		if other, ok := o.otherParty(t, uid); ok {
			o.push(other, struct {
				Type       string        `json:"type"`
				TransferID string        `json:"transferId"`
				By         domain.UserID `json:"by"`
				Reason     string        `json:"reason"`
			}{core.EvTransferPaused, t.ID, uid, "peer disconnected"})
		}
	}

	cancelled, err := o.Store.CancelPendingFromSender(ctx, uid, "sender disconnected")
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("cancel pending on disconnect failed")
	}
	for _, t := range cancelled {
		o.push(t.ReceiverID, struct {
			Type       string        `json:"type"`
			TransferID string        `json:"transferId"`
			By         domain.UserID `json:"by"`
		}{core.EvTransferCancelled, t.ID, uid})
	}
}

func (o *Orchestrator) otherParty(t *domain.Transfer, uid domain.UserID) (domain.UserID, bool) {
	switch uid {
	case t.SenderID:
		return t.ReceiverID, true
	case t.ReceiverID:
		return t.SenderID, true
	}
	return "", false
}

func (o *Orchestrator) transferLookupFailed(uid domain.UserID, id string, err error) {
	if errors.Is(err, domain.ErrTransferNotFound) {
		o.pushError(uid, "transfer_not_found")
		return
	}
	log.Error().Err(err).Str("module", "orch").Str("transfer", id).Msg("transfer lookup failed")
}

func (o *Orchestrator) auditTransfer(uid domain.UserID, id, reason string) {
	log.Warn().Str("module", "orch").Str("user", string(uid)).
		Str("transfer", id).Str("audit", reason).Msg("transfer event dropped")
}
