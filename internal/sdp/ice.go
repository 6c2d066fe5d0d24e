package sdp

import (
	"strings"

	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"
)

const maxCandidateBytes = 512

// CandidateResult mirrors Result for a single ICE candidate.
type CandidateResult struct {
	Valid     bool
	Candidate webrtc.ICECandidateInit
	Warnings  []string
}

// SanitizeCandidate validates the candidate-attribute grammar and the
// transport/address fields. The same trim-then-parse path pion/webrtc uses
// when applying a remote candidate.
func (s *Sanitizer) SanitizeCandidate(init webrtc.ICECandidateInit) CandidateResult {
	res := CandidateResult{}

	raw := init.Candidate
	if raw == "" {
		// End-of-candidates marker. Valid, relay as-is.
		res.Valid = true
		res.Candidate = init
		return res
	}
	if len(raw) > maxCandidateBytes {
		res.Warnings = append(res.Warnings, "candidate line too long")
		return res
	}

	val := strings.TrimPrefix(raw, "candidate:")
	cand, err := ice.UnmarshalCandidate(val)
	if err != nil {
		res.Warnings = append(res.Warnings, "candidate parse failed: "+err.Error())
		return res
	}

	switch strings.ToLower(cand.NetworkType().NetworkShort()) {
	case "udp", "tcp":
	default:
		res.Warnings = append(res.Warnings, "disallowed transport "+cand.NetworkType().String())
		return res
	}
	if cand.Address() == "" {
		res.Warnings = append(res.Warnings, "candidate missing address")
		return res
	}
	if cand.Port() <= 0 || cand.Port() > 65535 {
		res.Warnings = append(res.Warnings, "candidate port out of range")
		return res
	}

	if init.SDPMid == nil && init.SDPMLineIndex == nil {
		res.Warnings = append(res.Warnings, "candidate has neither sdpMid nor sdpMLineIndex")
	}

	res.Valid = true
	res.Candidate = init
	return res
}
