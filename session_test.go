package whip

import (
	"testing"

	rtppkt "github.com/lanikai/whip-publisher/internal/rtp"
)

func TestStateString(t *testing.T) {
	if got := StateReady.String(); got != "ready" {
		t.Errorf("StateReady.String() = %q, want %q", got, "ready")
	}
	if got := State(99).String(); got != "unknown" {
		t.Errorf("State(99).String() = %q, want %q", got, "unknown")
	}
}

func TestNewSessionRejectsInvalidConfig(t *testing.T) {
	if _, err := NewSession(Config{}); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}

func TestNewSessionStartsInInit(t *testing.T) {
	s, err := NewSession(Config{Endpoint: "https://example.test/whip"})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if s.State() != StateInit {
		t.Errorf("State() = %v, want %v", s.State(), StateInit)
	}
}

func TestSendVideoRejectsNotReady(t *testing.T) {
	s, err := NewSession(Config{Endpoint: "https://example.test/whip"})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := s.SendVideo(0, []byte{0, 0, 1, 0x65}); err == nil {
		t.Fatal("expected error calling SendVideo before Connect")
	}
}

func TestFixupSTAPAClearsMarkerAndRewritesNRI(t *testing.T) {
	// STAP-A aggregate with NRI=0x60 (max of SPS/PPS), first inner NAL
	// (SPS) carries NRI=0x40.
	pkt := rtppkt.Marshal(nil, rtppkt.Header{Marker: true, PayloadType: 96}, []byte{
		0x78,       // STAP-A, NRI=0x60 (aggregated max)
		0x00, 0x02, // 2-byte length
		0x47, 0x42, // SPS NAL header has NRI=0x40
	})

	fixupSTAPA(pkt, rtppkt.HeaderSize)

	if pkt[1]&0x80 != 0 {
		t.Errorf("marker bit not cleared: pkt[1] = %#x", pkt[1])
	}
	gotNRI := pkt[rtppkt.HeaderSize] & 0x60
	if gotNRI != 0x40 {
		t.Errorf("STAP-A NRI = %#x, want %#x (first inner NAL's NRI)", gotNRI, 0x40)
	}
	if pkt[rtppkt.HeaderSize]&0x1f != naluTypeSTAPA {
		t.Errorf("STAP-A NAL type mangled: %#x", pkt[rtppkt.HeaderSize]&0x1f)
	}
}

func TestFixupSTAPAIgnoresNonAggregates(t *testing.T) {
	pkt := rtppkt.Marshal(nil, rtppkt.Header{Marker: true, PayloadType: 96}, []byte{0x65, 0x01, 0x02})
	before := append([]byte(nil), pkt...)

	fixupSTAPA(pkt, rtppkt.HeaderSize)

	if string(pkt) != string(before) {
		t.Errorf("fixupSTAPA modified a non-STAP-A packet")
	}
}
