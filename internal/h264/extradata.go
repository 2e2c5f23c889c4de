// Package h264 parses codec extradata (AVCC or Annex B) and finds Annex B
// NAL start codes, per RFC 6184 and the ISO/IEC 14496-15 AVCCConfiguration
// record.
package h264

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Extradata holds the single SPS/PPS pair and NAL length size parsed from
// an AVCC configuration record. NALLengthSize is 0 when the stream is
// Annex B (start-code delimited) instead.
type Extradata struct {
	NALLengthSize int
	SPS           []byte
	PPS           []byte
}

var startCode3 = []byte{0, 0, 1}

// ParseExtradata detects AVCC vs Annex B per spec §4.4: AVCC if
// extradata[0] == 1 and len >= 4, otherwise Annex B if a start code is
// present anywhere, otherwise invalid.
func ParseExtradata(extradata []byte) (*Extradata, error) {
	if len(extradata) >= 4 && extradata[0] == 1 {
		return parseAVCC(extradata)
	}
	if bytes.Contains(extradata, startCode3) {
		return &Extradata{NALLengthSize: 0}, nil
	}
	return nil, fmt.Errorf("h264: extradata is neither AVCC nor annex-B")
}

// parseAVCC reads the AVCCConfigurationRecord layout named in spec §4.4:
// version, profile/compat/level, nal_length_size_minus_one, a single SPS,
// a single PPS.
func parseAVCC(b []byte) (*Extradata, error) {
	if len(b) < 6 {
		return nil, fmt.Errorf("h264: AVCC record too short: %d bytes", len(b))
	}
	// b[0] version, b[1:4] profile/compat/level (unused directly here;
	// surfaced via SPS bytes for SDP profile-level-id construction).
	lengthSizeMinusOne := b[4] & 0x03
	if lengthSizeMinusOne == 2 {
		return nil, fmt.Errorf("h264: invalid nal_length_size_minus_one=2 (size 3)")
	}
	nalLengthSize := int(lengthSizeMinusOne) + 1

	pos := 5
	nbSPS := b[pos] & 0x1F
	pos++
	if nbSPS != 1 {
		return nil, fmt.Errorf("h264: expected exactly 1 SPS, got %d", nbSPS)
	}
	if pos+2 > len(b) {
		return nil, fmt.Errorf("h264: AVCC record truncated before sps_size")
	}
	spsSize := int(binary.BigEndian.Uint16(b[pos : pos+2]))
	pos += 2
	if pos+spsSize > len(b) {
		return nil, fmt.Errorf("h264: AVCC record truncated in sps")
	}
	sps := append([]byte(nil), b[pos:pos+spsSize]...)
	pos += spsSize

	if pos >= len(b) {
		return nil, fmt.Errorf("h264: AVCC record truncated before nb_pps")
	}
	nbPPS := b[pos]
	pos++
	if nbPPS != 1 {
		return nil, fmt.Errorf("h264: expected exactly 1 PPS, got %d", nbPPS)
	}
	if pos+2 > len(b) {
		return nil, fmt.Errorf("h264: AVCC record truncated before pps_size")
	}
	ppsSize := int(binary.BigEndian.Uint16(b[pos : pos+2]))
	pos += 2
	if pos+ppsSize > len(b) {
		return nil, fmt.Errorf("h264: AVCC record truncated in pps")
	}
	pps := append([]byte(nil), b[pos:pos+ppsSize]...)

	return &Extradata{
		NALLengthSize: nalLengthSize,
		SPS:           sps,
		PPS:           pps,
	}, nil
}

// ProfileLevel extracts profile_idc, constraint flag byte, and level_idc
// directly from the SPS payload (the three bytes immediately following the
// one-byte NAL header), for use in the SDP fmtp profile-level-id.
func (e *Extradata) ProfileLevel() (profileIDC, constraintFlags, levelIDC byte, ok bool) {
	if len(e.SPS) < 4 {
		return 0, 0, 0, false
	}
	return e.SPS[1], e.SPS[2], e.SPS[3], true
}

// EmitParameterSets renders the SPS/PPS as a single access unit to inject
// ahead of an IDR's first RTP packet, per spec §4.7. In AVCC mode each NAL
// is prefixed with its NALLengthSize-byte big-endian length. In Annex B
// mode (NALLengthSize 0) the parser records no SPS/PPS, so the result is
// empty.
func (e *Extradata) EmitParameterSets() []byte {
	var buf bytes.Buffer
	writeLengthPrefixed(&buf, e.NALLengthSize, e.SPS)
	writeLengthPrefixed(&buf, e.NALLengthSize, e.PPS)
	return buf.Bytes()
}

func writeLengthPrefixed(buf *bytes.Buffer, lengthSize int, nal []byte) {
	var lb [4]byte
	switch lengthSize {
	case 1:
		lb[0] = byte(len(nal))
		buf.Write(lb[:1])
	case 2:
		binary.BigEndian.PutUint16(lb[:2], uint16(len(nal)))
		buf.Write(lb[:2])
	case 4:
		binary.BigEndian.PutUint32(lb[:4], uint32(len(nal)))
		buf.Write(lb[:4])
	}
	buf.Write(nal)
}

// IsAnnexB reports whether extradata is a raw start-code-delimited blob
// rather than an AVCC record.
func (e *Extradata) IsAnnexB() bool {
	return e.NALLengthSize == 0
}

// SplitAnnexB splits a byte stream on Annex B start codes (3- or 4-byte),
// grounded on the teacher's splitNALU scan function.
func SplitAnnexB(data []byte) [][]byte {
	var nalus [][]byte
	for len(data) > 0 {
		i := bytes.Index(data, startCode3)
		if i == -1 {
			break
		}
		start := i + 3
		rest := data[start:]
		next := bytes.Index(rest, startCode3)
		var nalu []byte
		if next == -1 {
			nalu = rest
			data = nil
		} else {
			end := next
			if end > 0 && rest[end-1] == 0x00 {
				end--
			}
			nalu = rest[:end]
			data = rest[next:]
		}
		if len(nalu) > 0 {
			nalus = append(nalus, nalu)
		}
	}
	return nalus
}

// NALType returns the NAL unit type (low 5 bits of the first byte).
func NALType(nalu []byte) byte {
	if len(nalu) == 0 {
		return 0
	}
	return nalu[0] & 0x1F
}

const (
	NALTypeIDR   = 5
	NALTypeSPS   = 7
	NALTypePPS   = 8
	NALTypeSTAPA = 24
	NALTypeFUA   = 28
)
