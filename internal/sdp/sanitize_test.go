package sdp

import (
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"
)

const validOffer = "v=0\r\n" +
	"o=- 4611731400430051336 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n"

func TestSanitizeSDP_ValidOfferPassesVerbatim(t *testing.T) {
	s := NewSanitizer()
	res := s.SanitizeSDP(validOffer, RoleOffer)
	if !res.Valid {
		t.Fatalf("expected valid, warnings=%v", res.Warnings)
	}
	if res.SDP != validOffer {
		t.Fatalf("sdp must be relayed verbatim")
	}
}

func TestSanitizeSDP_Rejections(t *testing.T) {
	s := NewSanitizer()
	cases := []struct {
		name string
		sdp  string
	}{
		{"empty", ""},
		{"garbage", "not an sdp at all"},
		{"no media", "v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"},
		{"disallowed media", strings.Replace(validOffer, "m=audio", "m=text", 1)},
		{"oversized", validOffer + "a=x:" + strings.Repeat("b", 1<<20) + "\r\n"},
		{"oversized attribute", strings.Replace(validOffer, "a=mid:0",
			"a=fmtp:"+strings.Repeat("c", 8<<10), 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if res := s.SanitizeSDP(tc.sdp, RoleOffer); res.Valid {
				t.Fatalf("expected invalid")
			}
		})
	}
}

func TestSanitizeSDP_UnknownRoleIsWarningOnly(t *testing.T) {
	s := NewSanitizer()
	res := s.SanitizeSDP(validOffer, "whatever")
	if !res.Valid {
		t.Fatalf("unknown role must not reject")
	}
	if len(res.Warnings) == 0 {
		t.Fatalf("expected a warning")
	}
}

func candInit(line string) webrtc.ICECandidateInit {
	mid := "0"
	return webrtc.ICECandidateInit{Candidate: line, SDPMid: &mid}
}

func TestSanitizeCandidate(t *testing.T) {
	s := NewSanitizer()

	good := candInit("candidate:1 1 udp 2130706431 192.168.1.5 53165 typ host")
	if res := s.SanitizeCandidate(good); !res.Valid {
		t.Fatalf("expected valid host candidate, warnings=%v", res.Warnings)
	}

	bad := []string{
		"candidate:garbage",
		"candidate:1 1 sctp 1 10.0.0.1 1000 typ host",
		"candidate:" + strings.Repeat("x", 1024),
	}
	for _, line := range bad {
		if res := s.SanitizeCandidate(candInit(line)); res.Valid {
			t.Fatalf("expected invalid for %q", line)
		}
	}
}

func TestSanitizeCandidate_EndOfCandidates(t *testing.T) {
	s := NewSanitizer()
	if res := s.SanitizeCandidate(webrtc.ICECandidateInit{Candidate: ""}); !res.Valid {
		t.Fatalf("end-of-candidates marker must pass")
	}
}
