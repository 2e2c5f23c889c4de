package rtp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lanikai/whip-publisher/internal/h264"
)

func TestMarshalParseRoundTrip(t *testing.T) {
	h := Header{Marker: true, PayloadType: 96, SequenceNumber: 4242, Timestamp: 90000, SSRC: 0xdeadbeef}
	payload := []byte{1, 2, 3, 4}

	buf := Marshal(nil, h, payload)
	got, headerLen, err := Parse(buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
	require.Equal(t, HeaderSize, headerLen)
	require.Equal(t, payload, buf[headerLen:])
}

func TestIsRTCP(t *testing.T) {
	rtcpPkt := []byte{0x80, 200, 0, 0}
	rtpPkt := []byte{0x80, 96, 0, 0}
	require.True(t, IsRTCP(rtcpPkt))
	require.False(t, IsRTCP(rtpPkt))
}

func TestH264PacketizerSmallNALUSinglePacket(t *testing.T) {
	p := NewH264Packetizer(96, 0x1234, 1184, nil)
	var packets [][]byte
	accessUnit := append([]byte{0, 0, 1}, append([]byte{0x61}, make([]byte, 50)...)...)

	err := p.Packetize(1000, accessUnit, func(pkt []byte, marker bool) error {
		packets = append(packets, pkt)
		require.True(t, marker)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, packets, 1)

	hdr, headerLen, err := Parse(packets[0])
	require.NoError(t, err)
	require.Equal(t, uint8(96), hdr.PayloadType)
	require.Equal(t, byte(0x61), packets[0][headerLen])
}

func TestH264PacketizerFragmentsOversizeNALU(t *testing.T) {
	p := NewH264Packetizer(96, 1, 100, nil)
	nalu := append([]byte{0x65}, make([]byte, 500)...)
	accessUnit := append([]byte{0, 0, 1}, nalu...)

	var packets [][]byte
	err := p.Packetize(0, accessUnit, func(pkt []byte, marker bool) error {
		packets = append(packets, pkt)
		return nil
	})
	require.NoError(t, err)
	require.Greater(t, len(packets), 1)

	_, headerLen, err := Parse(packets[0])
	require.NoError(t, err)
	fuIndicator := packets[0][headerLen]
	fuHeader := packets[0][headerLen+1]
	require.Equal(t, byte(naluTypeFUA), fuIndicator&0x1f)
	require.NotZero(t, fuHeader&0x80, "first fragment must set FU start bit")

	last := packets[len(packets)-1]
	_, lastHeaderLen, err := Parse(last)
	require.NoError(t, err)
	require.NotZero(t, last[lastHeaderLen+1]&0x40, "last fragment must set FU end bit")
}

func TestH264PacketizerInjectsParameterSetsBeforeIDR(t *testing.T) {
	extradata := &h264.Extradata{
		SPS: []byte{0x67, 0x42, 0x00, 0x1e},
		PPS: []byte{0x68, 0xce, 0x3c, 0x80},
	}
	p := NewH264Packetizer(96, 1, 1184, extradata)

	idr := append([]byte{0, 0, 1}, append([]byte{0x65}, make([]byte, 10)...)...)

	var packets [][]byte
	err := p.Packetize(0, idr, func(pkt []byte, marker bool) error {
		packets = append(packets, pkt)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, packets, 2)

	_, headerLen, err := Parse(packets[0])
	require.NoError(t, err)
	require.Equal(t, byte(naluTypeSTAPA), packets[0][headerLen]&0x1f)
}

func TestOpusPacketizerAdvancesTimestampBy960(t *testing.T) {
	p := NewOpusPacketizer(111, 0xabcd, 0, OpusClockIncrement)

	var timestamps []uint32
	for i := 0; i < 3; i++ {
		err := p.Packetize([]byte{0xde, 0xad}, func(pkt []byte) error {
			hdr, _, err := Parse(pkt)
			require.NoError(t, err)
			timestamps = append(timestamps, hdr.Timestamp)
			return err
		})
		require.NoError(t, err)
	}
	require.Equal(t, []uint32{0, 960, 1920}, timestamps)
}

func TestParseFeedbackPLI(t *testing.T) {
	buf := make([]byte, 12)
	buf[0] = (2 << 6) | 1 // version 2, FMT=1 (PLI)
	buf[1] = packetTypePayloadSpecificFB
	buf[3] = 2 // length = 2 (3 words - 1)
	require.NoError(t, putUint32(buf, 4, 0x1111))
	require.NoError(t, putUint32(buf, 8, 0x2222))

	fb, err := ParseFeedback(buf)
	require.NoError(t, err)
	require.NotNil(t, fb)
	require.Equal(t, FeedbackPLI, fb.Kind)
	require.Equal(t, uint32(0x1111), fb.Sender)
	require.Equal(t, uint32(0x2222), fb.Source)
}

func TestParseFeedbackFIR(t *testing.T) {
	buf := make([]byte, 16)
	buf[0] = (2 << 6) | fmtPayloadFIR
	buf[1] = packetTypePayloadSpecificFB
	buf[3] = 3
	require.NoError(t, putUint32(buf, 4, 1))
	require.NoError(t, putUint32(buf, 8, 2))

	fb, err := ParseFeedback(buf)
	require.NoError(t, err)
	require.Equal(t, FeedbackFIR, fb.Kind)
}

func TestParseFeedbackIgnoresUnrelatedPacketTypes(t *testing.T) {
	buf := make([]byte, 8)
	buf[0] = 2 << 6
	buf[1] = packetTypeRR
	buf[3] = 1

	fb, err := ParseFeedback(buf)
	require.NoError(t, err)
	require.Nil(t, fb)
}

func putUint32(buf []byte, offset int, v uint32) error {
	if offset+4 > len(buf) {
		return errShortBuffer
	}
	buf[offset] = byte(v >> 24)
	buf[offset+1] = byte(v >> 16)
	buf[offset+2] = byte(v >> 8)
	buf[offset+3] = byte(v)
	return nil
}

var errShortBuffer = errShort{}

type errShort struct{}

func (errShort) Error() string { return "short buffer" }
