// Package wake is the out-of-band channel for nudging identities that have
// no live connection. Actual push delivery lives outside this process; the
// default implementation records the intent so a delivery worker can pick
// it up from the log stream.
package wake

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/domain"
)

type LogWaker struct{}

func NewLogWaker() *LogWaker { return &LogWaker{} }

func (LogWaker) Wake(userID domain.UserID, event string, payload any) {
	log.Info().
		Str("module", "wake").
		Str("user", string(userID)).
		Str("event", event).
		Interface("payload", payload).
		Msg("wake requested")
}
