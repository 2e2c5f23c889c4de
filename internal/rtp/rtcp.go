package rtp

import (
	"encoding/binary"
	"fmt"
)

// RTCP packet/feedback type numbers this publisher needs to recognize on
// receive, per RFC 3550 §6.1 and RFC 4585 §6.
const (
	packetTypeRR                     = 201
	packetTypeSDES                   = 202
	packetTypeTransportLayerFeedback = 205
	packetTypePayloadSpecificFB      = 206

	fmtTransportNACK = 1  // RFC 4585 §6.2.1
	fmtPayloadPLI    = 1  // RFC 4585 §6.3.1
	fmtPayloadSLI    = 2  // RFC 4585 §6.3.2
	fmtPayloadRPSI   = 3  // RFC 4585 §6.3.3
	fmtPayloadFIR    = 4  // RFC 5104 §4.3.1
	fmtPayloadAFB    = 15 // RFC 4585 §6.4 (application layer feedback)
)

// Feedback is one parsed RTCP feedback message. Kind identifies which of
// PLI/FIR/SLI/RPSI/AFB/NACK/other it is; fields not relevant to Kind are
// left zero.
type Feedback struct {
	Kind           FeedbackKind
	Sender         uint32
	Source         uint32
	LostPictureIDs []uint16 // SLI
	NACKPackets    []uint16
}

type FeedbackKind int

const (
	FeedbackUnknown FeedbackKind = iota
	FeedbackPLI
	FeedbackFIR
	FeedbackSLI
	FeedbackRPSI
	FeedbackAFB
	FeedbackNACK
)

func (k FeedbackKind) String() string {
	switch k {
	case FeedbackPLI:
		return "PLI"
	case FeedbackFIR:
		return "FIR"
	case FeedbackSLI:
		return "SLI"
	case FeedbackRPSI:
		return "RPSI"
	case FeedbackAFB:
		return "AFB"
	case FeedbackNACK:
		return "NACK"
	default:
		return "unknown"
	}
}

// ParseFeedback parses a single RTCP packet (the first one in a compound
// packet is all this publisher ever needs, since media servers send one
// feedback message per compound packet for PLI/FIR) into a Feedback, or
// returns (nil, nil) for packet types this publisher does not act on
// (SR/RR/SDES/BYE/APP), per spec §4.8's "other feedback logged/ignored".
func ParseFeedback(buf []byte) (*Feedback, error) {
	if len(buf) < 8 {
		return nil, fmt.Errorf("rtcp: packet too short")
	}
	version := buf[0] >> 6
	if version != Version {
		return nil, fmt.Errorf("rtcp: unsupported version %d", version)
	}
	fmtCount := buf[0] & 0x1f
	packetType := buf[1]
	length := binary.BigEndian.Uint16(buf[2:4])
	if int(length+1)*4 > len(buf) {
		return nil, fmt.Errorf("rtcp: length field exceeds packet size")
	}

	switch packetType {
	case packetTypePayloadSpecificFB:
		return parsePayloadSpecificFeedback(fmtCount, buf)
	case packetTypeTransportLayerFeedback:
		return parseTransportLayerFeedback(fmtCount, buf)
	default:
		return nil, nil
	}
}

func parsePayloadSpecificFeedback(fmtCount byte, buf []byte) (*Feedback, error) {
	if len(buf) < 12 {
		return nil, fmt.Errorf("rtcp: payload-specific FB too short")
	}
	sender := binary.BigEndian.Uint32(buf[4:8])
	source := binary.BigEndian.Uint32(buf[8:12])

	switch fmtCount {
	case fmtPayloadPLI:
		return &Feedback{Kind: FeedbackPLI, Sender: sender, Source: source}, nil
	case fmtPayloadSLI:
		fb := &Feedback{Kind: FeedbackSLI, Sender: sender, Source: source}
		for off := 12; off+4 <= len(buf); off += 4 {
			word := binary.BigEndian.Uint32(buf[off : off+4])
			first := uint16(word >> 19)
			fb.LostPictureIDs = append(fb.LostPictureIDs, first)
		}
		return fb, nil
	case fmtPayloadRPSI:
		return &Feedback{Kind: FeedbackRPSI, Sender: sender, Source: source}, nil
	case fmtPayloadFIR:
		return &Feedback{Kind: FeedbackFIR, Sender: sender, Source: source}, nil
	case fmtPayloadAFB:
		return &Feedback{Kind: FeedbackAFB, Sender: sender, Source: source}, nil
	default:
		return &Feedback{Kind: FeedbackUnknown, Sender: sender, Source: source}, nil
	}
}

func parseTransportLayerFeedback(fmtCount byte, buf []byte) (*Feedback, error) {
	if len(buf) < 12 {
		return nil, fmt.Errorf("rtcp: transport-layer FB too short")
	}
	sender := binary.BigEndian.Uint32(buf[4:8])
	source := binary.BigEndian.Uint32(buf[8:12])

	if fmtCount != fmtTransportNACK {
		return &Feedback{Kind: FeedbackUnknown, Sender: sender, Source: source}, nil
	}

	fb := &Feedback{Kind: FeedbackNACK, Sender: sender, Source: source}
	for off := 12; off+4 <= len(buf); off += 4 {
		pid := binary.BigEndian.Uint16(buf[off : off+2])
		blp := binary.BigEndian.Uint16(buf[off+2 : off+4])
		fb.NACKPackets = append(fb.NACKPackets, pid)
		seq := pid + 1
		mask := blp
		for mask != 0 {
			if mask&1 == 1 {
				fb.NACKPackets = append(fb.NACKPackets, seq)
			}
			seq++
			mask >>= 1
		}
	}
	return fb, nil
}
