package rtp

// OpusClockIncrement is the default per-packet RTP timestamp increment,
// overriding whatever pts/dts accompanies the encoded frame. 960 samples
// at the mandatory 48kHz RTP clock rate is 20ms, the encoder's fixed frame
// duration in the source this was ported from; kept as a documented quirk
// rather than derived from real frame timing. Config.OpusTimestampIncrement
// lets a caller override it for a non-default frame size.
const OpusClockIncrement = 960

// OpusPacketizer emits one RTP packet per Opus access unit, per RFC 7587:
// exactly one encoded frame per packet, no fragmentation or aggregation.
type OpusPacketizer struct {
	payloadType byte
	ssrc        uint32
	increment   uint32

	sequenceNumber uint16
	timestamp      uint32
}

// NewOpusPacketizer creates a packetizer for one SSRC, timestamp starting
// at initialTimestamp (the session passes 0).
// increment is the per-packet RTP timestamp advance; callers pass
// OpusClockIncrement for the standard 20ms frame duration, or a different
// value to match a non-default encoder frame size.
func NewOpusPacketizer(payloadType byte, ssrc uint32, initialTimestamp, increment uint32) *OpusPacketizer {
	return &OpusPacketizer{
		payloadType: payloadType,
		ssrc:        ssrc,
		increment:   increment,
		timestamp:   initialTimestamp,
	}
}

// Packetize wraps one Opus access unit in a single RTP packet and advances
// the timestamp by the configured increment, ignoring any pts/dts the
// caller may have carried alongside the frame.
func (p *OpusPacketizer) Packetize(accessUnit []byte, emit func(pkt []byte) error) error {
	h := Header{
		Marker:         true,
		PayloadType:    p.payloadType,
		SequenceNumber: p.sequenceNumber,
		Timestamp:      p.timestamp,
		SSRC:           p.ssrc,
	}
	p.sequenceNumber++
	p.timestamp += p.increment

	buf := make([]byte, 0, HeaderSize+len(accessUnit))
	buf = Marshal(buf, h, accessUnit)
	return emit(buf)
}
