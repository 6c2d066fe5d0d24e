// Package sdp validates signaling payloads before they are relayed into
// another client's WebRTC stack. Validation is structural only: the server
// never interprets codec semantics.
package sdp

import (
	"fmt"

	pionsdp "github.com/pion/sdp/v3"
)

const (
	// Role of the description inside the exchange.
	RoleOffer  = "offer"
	RoleAnswer = "answer"

	defaultMaxSDPBytes  = 128 << 10
	defaultMaxAttrBytes = 4 << 10
)

// Result carries the validated description plus non-fatal findings.
type Result struct {
	Valid    bool
	SDP      string
	Warnings []string
}

type Sanitizer struct {
	maxSDPBytes  int
	maxAttrBytes int
}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		maxSDPBytes:  defaultMaxSDPBytes,
		maxAttrBytes: defaultMaxAttrBytes,
	}
}

var allowedMedia = map[string]bool{
	"audio":       true,
	"video":       true,
	"application": true,
}

// SanitizeSDP structurally validates a session description. On success the
// original text is relayed verbatim; the parse only proves it is well formed
// and within bounds.
func (s *Sanitizer) SanitizeSDP(raw string, role string) Result {
	res := Result{}
	if raw == "" {
		res.Warnings = append(res.Warnings, "empty sdp")
		return res
	}
	if len(raw) > s.maxSDPBytes {
		res.Warnings = append(res.Warnings, fmt.Sprintf("sdp exceeds %d bytes", s.maxSDPBytes))
		return res
	}

	var desc pionsdp.SessionDescription
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		res.Warnings = append(res.Warnings, "sdp parse failed: "+err.Error())
		return res
	}

	if len(desc.MediaDescriptions) == 0 {
		res.Warnings = append(res.Warnings, "sdp has no media sections")
		return res
	}

	for _, a := range desc.Attributes {
		if len(a.Value) > s.maxAttrBytes {
			res.Warnings = append(res.Warnings, "oversized session attribute "+a.Key)
			return res
		}
	}

	for _, m := range desc.MediaDescriptions {
		if !allowedMedia[m.MediaName.Media] {
			res.Warnings = append(res.Warnings, "disallowed media kind "+m.MediaName.Media)
			return res
		}
		for _, a := range m.Attributes {
			if len(a.Value) > s.maxAttrBytes {
				res.Warnings = append(res.Warnings, "oversized media attribute "+a.Key)
				return res
			}
		}
	}

	if role != RoleOffer && role != RoleAnswer {
		res.Warnings = append(res.Warnings, "unknown role "+role)
	}

	res.Valid = true
	res.SDP = raw
	return res
}
