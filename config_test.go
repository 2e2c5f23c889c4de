package whip

import "testing"

func TestApplyDefaultsFillsZeroValues(t *testing.T) {
	cfg := Config{Endpoint: "https://example.test/whip"}
	if err := cfg.applyDefaults(); err != nil {
		t.Fatalf("applyDefaults: %v", err)
	}
	if cfg.HandshakeTimeout != defaultHandshakeTimeout {
		t.Errorf("HandshakeTimeout = %v, want %v", cfg.HandshakeTimeout, defaultHandshakeTimeout)
	}
	if cfg.PacketSize != defaultPacketSize {
		t.Errorf("PacketSize = %d, want %d", cfg.PacketSize, defaultPacketSize)
	}
	if cfg.OpusTimestampIncrement != 960 {
		t.Errorf("OpusTimestampIncrement = %d, want 960", cfg.OpusTimestampIncrement)
	}
}

func TestApplyDefaultsRejectsEmptyEndpoint(t *testing.T) {
	cfg := Config{}
	if err := cfg.applyDefaults(); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}

func TestApplyDefaultsRejectsTinyPacketSize(t *testing.T) {
	cfg := Config{Endpoint: "https://example.test/whip", PacketSize: 16}
	if err := cfg.applyDefaults(); err == nil {
		t.Fatal("expected error for pkt_size <= 16")
	}
}

func TestMaxRTPPayload(t *testing.T) {
	cfg := Config{Endpoint: "https://example.test/whip", PacketSize: 1200}
	if err := cfg.applyDefaults(); err != nil {
		t.Fatalf("applyDefaults: %v", err)
	}
	if got := cfg.maxRTPPayload(); got != 1184 {
		t.Errorf("maxRTPPayload() = %d, want 1184", got)
	}
}
