// Package rtp packetizes encoded H.264 and Opus access units into RTP
// packets and parses RTCP feedback, per RFC 3550/6184/7587/4585.
package rtp

import (
	"encoding/binary"
	"fmt"
)

const (
	// Version is the only RTP version this publisher ever emits or accepts.
	Version = 2

	// HeaderSize is the fixed RTP header length with no CSRC identifiers.
	HeaderSize = 12
)

// Header is the fixed 12-byte RTP header (no CSRC, no extension — this
// publisher never needs either).
type Header struct {
	Marker         bool
	PayloadType    byte
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
}

// Marshal serializes a header followed by payload into buf, which must
// have at least HeaderSize+len(payload) bytes of capacity.
func Marshal(buf []byte, h Header, payload []byte) []byte {
	buf = buf[:0]
	var fixed [HeaderSize]byte
	fixed[0] = Version << 6
	fixed[1] = h.PayloadType & 0x7f
	if h.Marker {
		fixed[1] |= 0x80
	}
	binary.BigEndian.PutUint16(fixed[2:4], h.SequenceNumber)
	binary.BigEndian.PutUint32(fixed[4:8], h.Timestamp)
	binary.BigEndian.PutUint32(fixed[8:12], h.SSRC)
	buf = append(buf, fixed[:]...)
	buf = append(buf, payload...)
	return buf
}

// Parse reads the fixed RTP header from buf and returns it along with the
// header length (payload start offset), accounting for CSRC identifiers an
// inbound packet (e.g. RTCP feedback demux never needs this, but keeping
// it general costs nothing).
func Parse(buf []byte) (Header, int, error) {
	if len(buf) < HeaderSize {
		return Header{}, 0, fmt.Errorf("rtp: packet too short: %d bytes", len(buf))
	}
	version := buf[0] >> 6
	if version != Version {
		return Header{}, 0, fmt.Errorf("rtp: unsupported version %d", version)
	}
	csrcCount := int(buf[0] & 0x0f)
	headerLen := HeaderSize + 4*csrcCount
	if len(buf) < headerLen {
		return Header{}, 0, fmt.Errorf("rtp: short packet for %d csrc entries", csrcCount)
	}

	h := Header{
		Marker:         buf[1]&0x80 != 0,
		PayloadType:    buf[1] & 0x7f,
		SequenceNumber: binary.BigEndian.Uint16(buf[2:4]),
		Timestamp:      binary.BigEndian.Uint32(buf[4:8]),
		SSRC:           binary.BigEndian.Uint32(buf[8:12]),
	}
	return h, headerLen, nil
}

// IsRTCP classifies a datagram as RTCP vs RTP using the payload type range
// reserved for RTCP by RFC 5761 §4 (muxing RTP and RTCP on one port).
func IsRTCP(buf []byte) bool {
	if len(buf) < 2 {
		return false
	}
	pt := buf[1]
	return pt >= 192 && pt <= 223
}
