package whip

import "time"

// Config holds the publisher's tunable parameters, per spec §6. Zero-valued
// HandshakeTimeout, PacketSize and OpusTimestampIncrement get defaults from
// NewSession; Endpoint is required.
type Config struct {
	// Endpoint is the WHIP resource URL to POST the SDP offer to.
	Endpoint string

	// Authorization is an optional Bearer token sent with the offer.
	Authorization string

	// HandshakeTimeout bounds how long the ICE/DTLS handshake loop may run
	// before the session fails. Default 5000ms.
	HandshakeTimeout time.Duration

	// PacketSize bounds outgoing UDP datagrams. RTP packets, header
	// included, are limited to PacketSize-16 bytes, leaving room for SRTP
	// growth (10-byte auth tag). Default 1200 bytes.
	PacketSize int

	// OpusTimestampIncrement is the fixed per-packet RTP timestamp step
	// applied to outgoing Opus frames, overriding any pts/dts the caller
	// supplies. Default 960 (20ms at the mandatory 48kHz clock).
	OpusTimestampIncrement uint32
}

const (
	defaultHandshakeTimeout = 5000 * time.Millisecond
	defaultPacketSize       = 1200
)

// applyDefaults fills zero-valued fields with spec §6's defaults and
// validates the rest, returning a *Error{Kind: FailureConfiguration} on
// any invalid value.
func (c *Config) applyDefaults() error {
	if c.Endpoint == "" {
		return newError(FailureConfiguration, "endpoint must not be empty")
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.PacketSize == 0 {
		c.PacketSize = defaultPacketSize
	}
	if c.PacketSize <= 16 {
		return newError(FailureConfiguration, "pkt_size must exceed 16, got %d", c.PacketSize)
	}
	if c.OpusTimestampIncrement == 0 {
		c.OpusTimestampIncrement = 960
	}
	return nil
}

// maxRTPPayload is the largest RTP packet, header included, after
// reserving room for the SRTP auth tag, per spec §6.
func (c *Config) maxRTPPayload() int {
	return c.PacketSize - 16
}
