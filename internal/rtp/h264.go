package rtp

import (
	"fmt"

	"github.com/lanikai/whip-publisher/internal/h264"
)

// NAL unit type numbers used by the FU-A/STAP-A packetizer, per RFC 6184.
const (
	naluTypeSTAPA = 24
	naluTypeFUA   = 28
)

// H264Packetizer fragments Annex-B (start-code delimited) H.264 NAL units
// into RTP packets, packetization-mode=1 only (FU-A and STAP-A), per RFC
// 6184 §5.6/§5.7/§5.8. Length-prefixed (AVCC) access units are not split
// into NAL units. It injects a STAP-A of SPS/PPS ahead of every IDR NAL
// unit when the extradata carries them (AVCC extradata; Annex B extradata
// records none, so nothing is injected).
type H264Packetizer struct {
	payloadType byte
	ssrc        uint32
	maxPayload  int

	sequenceNumber uint16
	extradata      *h264.Extradata
}

// NewH264Packetizer creates a packetizer for one SSRC. maxPayload is the
// maximum RTP payload size, excluding the 12-byte RTP header (the session
// passes pkt_size - 16 - 12).
func NewH264Packetizer(payloadType byte, ssrc uint32, maxPayload int, extradata *h264.Extradata) *H264Packetizer {
	return &H264Packetizer{
		payloadType: payloadType,
		ssrc:        ssrc,
		maxPayload:  maxPayload,
		extradata:   extradata,
	}
}

// Packetize converts one access unit (one or more NAL units, Annex-B
// start-code delimited) sharing a single timestamp into RTP packets. emit
// is called once per outbound packet with the fully marshaled RTP packet
// (header+payload, no auth tag) ready for the post-packetizer hook.
func (p *H264Packetizer) Packetize(timestamp uint32, accessUnit []byte, emit func(pkt []byte, marker bool) error) error {
	nalus := h264.SplitAnnexB(accessUnit)
	if len(nalus) == 0 {
		nalus = [][]byte{accessUnit}
	}

	for i, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}
		if h264.NALType(nalu) == h264.NALTypeIDR && p.extradata != nil {
			if err := p.sendParameterSets(timestamp, emit); err != nil {
				return err
			}
		}
		last := i == len(nalus)-1
		if err := p.packetizeNALU(timestamp, nalu, last, emit); err != nil {
			return err
		}
	}
	return nil
}

// sendParameterSets emits a single STAP-A packet carrying SPS and PPS,
// ahead of every IDR frame, per spec §4.7's IDR-gated injection rule and
// RFC 6184 §5.7.1's aggregation format (16-bit length prefix per NAL,
// forbidden bit OR'd in, NRI set to the maximum of the aggregated NALs).
func (p *H264Packetizer) sendParameterSets(timestamp uint32, emit func(pkt []byte, marker bool) error) error {
	if len(p.extradata.SPS) == 0 || len(p.extradata.PPS) == 0 {
		return nil
	}

	stap := []byte{naluTypeSTAPA}
	for _, nalu := range [][]byte{p.extradata.SPS, p.extradata.PPS} {
		stap[0] |= nalu[0] & 0x80
		if nri := nalu[0] & 0x60; nri > stap[0]&0x60 {
			stap[0] = (stap[0] &^ 0x60) | nri
		}
		stap = append(stap, byte(len(nalu)>>8), byte(len(nalu)))
		stap = append(stap, nalu...)
	}

	return p.writePacket(timestamp, stap, false, emit)
}

func (p *H264Packetizer) packetizeNALU(timestamp uint32, nalu []byte, marker bool, emit func(pkt []byte, marker bool) error) error {
	if len(nalu) <= p.maxPayload {
		return p.writePacket(timestamp, nalu, marker, emit)
	}
	return p.fragmentFUA(timestamp, nalu, marker, emit)
}

// fragmentFUA splits an oversize NAL unit into FU-A packets, per RFC 6184
// §5.8. The first byte's (F,NRI) bits are copied into the FU indicator;
// the NAL unit type goes into the FU header alongside start/end markers.
func (p *H264Packetizer) fragmentFUA(timestamp uint32, nalu []byte, marker bool, emit func(pkt []byte, marker bool) error) error {
	if len(nalu) < 1 {
		return fmt.Errorf("rtp: empty nalu")
	}
	indicator := (nalu[0] & 0xe0) | naluTypeFUA
	naluType := nalu[0] & 0x1f

	// Payload room for FU-A content: maxPayload minus the 2-byte FU header.
	chunk := p.maxPayload - 2
	if chunk <= 0 {
		return fmt.Errorf("rtp: max payload %d too small for FU-A", p.maxPayload)
	}

	body := nalu[1:]
	for offset := 0; offset < len(body); offset += chunk {
		end := offset + chunk
		last := end >= len(body)
		if last {
			end = len(body)
		}

		header := naluType
		if offset == 0 {
			header |= 0x80
		}
		if last {
			header |= 0x40
		}

		payload := make([]byte, 0, 2+end-offset)
		payload = append(payload, indicator, header)
		payload = append(payload, body[offset:end]...)

		if err := p.writePacket(timestamp, payload, last && marker, emit); err != nil {
			return err
		}
	}
	return nil
}

func (p *H264Packetizer) writePacket(timestamp uint32, payload []byte, marker bool, emit func(pkt []byte, marker bool) error) error {
	h := Header{
		Marker:         marker,
		PayloadType:    p.payloadType,
		SequenceNumber: p.sequenceNumber,
		Timestamp:      timestamp,
		SSRC:           p.ssrc,
	}
	p.sequenceNumber++

	buf := make([]byte, 0, HeaderSize+len(payload))
	buf = Marshal(buf, h, payload)
	return emit(buf, marker)
}
