// Command whip-publish reads pre-encoded H.264 and/or Opus elementary
// streams from disk and publishes them to a WHIP endpoint.
package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/lanikai/whip-publisher"
	"github.com/lanikai/whip-publisher/internal/h264"
	"github.com/lanikai/whip-publisher/internal/logging"
)

var log = logging.DefaultLogger.WithTag("main")

const (
	videoClockRate  = 90000
	defaultVideoFPS = 30
)

func main() {
	flag.Parse()

	if flagHelp {
		help()
		os.Exit(0)
	}
	if flagVersion {
		version()
		os.Exit(0)
	}

	if flagEndpoint == "" {
		fmt.Fprintln(os.Stderr, "whip-publish: --endpoint is required")
		os.Exit(1)
	}
	if flagVideoInput == "" && flagAudioInput == "" {
		fmt.Fprintln(os.Stderr, "whip-publish: at least one of --video or --audio is required")
		os.Exit(1)
	}

	cfg := whip.Config{
		Endpoint:         flagEndpoint,
		Authorization:    flagAuthorization,
		HandshakeTimeout: time.Duration(flagHandshakeMs) * time.Millisecond,
		PacketSize:       flagPacketSize,
	}

	session, err := whip.NewSession(cfg)
	if err != nil {
		log.Error("configure session: %v", err)
		os.Exit(1)
	}

	var videoUnits [][]byte
	media := whip.MediaParams{}

	if flagVideoInput != "" {
		data, err := os.ReadFile(flagVideoInput)
		if err != nil {
			log.Error("read video input: %v", err)
			os.Exit(1)
		}
		nalus := h264.SplitAnnexB(data)
		sps, pps := extractParameterSets(nalus)
		videoUnits = groupAccessUnits(nalus)

		media.HasVideo = true
		media.VideoPT = byte(flagVideoPT)
		media.VideoSSRC = flagVideoSSRC
		if len(sps) > 0 && len(pps) > 0 {
			media.VideoExtradata = encodeAVCCExtradata(sps, pps)
		}
	}

	var audioFrames [][]byte
	if flagAudioInput != "" {
		f, err := os.Open(flagAudioInput)
		if err != nil {
			log.Error("open audio input: %v", err)
			os.Exit(1)
		}
		audioFrames, err = readLengthPrefixedFrames(f)
		f.Close()
		if err != nil {
			log.Error("read audio input: %v", err)
			os.Exit(1)
		}

		media.HasAudio = true
		media.AudioPT = byte(flagAudioPT)
		media.AudioSSRC = flagAudioSSRC
		media.AudioRate = uint32(flagAudioRate)
		media.AudioCh = byte(flagAudioCh)
	}

	if err := session.Connect(media); err != nil {
		log.Error("connect: %v", err)
		os.Exit(1)
	}
	defer session.Close()

	session.OnKeyframeRequest = func() {
		log.Info("keyframe requested by remote, but input is a fixed recording")
	}

	publish(session, videoUnits, audioFrames)
}

// publish interleaves video and audio sends against wall-clock intervals
// derived from the assumed frame rate, polling for inbound RTCP/handshake
// traffic between sends, all from a single loop with no background
// goroutines.
func publish(session *whip.Session, videoUnits, audioFrames [][]byte) {
	start := time.Now()

	videoInterval := time.Second / defaultVideoFPS
	audioInterval := 20 * time.Millisecond

	var videoIdx, audioIdx int
	var videoTimestamp uint32
	videoClockIncrement := uint32(videoClockRate / defaultVideoFPS)

	for videoIdx < len(videoUnits) || audioIdx < len(audioFrames) {
		now := time.Now()

		if videoIdx < len(videoUnits) && now.Sub(start) >= time.Duration(videoIdx)*videoInterval {
			if err := session.SendVideo(videoTimestamp, videoUnits[videoIdx]); err != nil {
				log.Warn("send video: %v", err)
			}
			videoTimestamp += videoClockIncrement
			videoIdx++
		}

		if audioIdx < len(audioFrames) && now.Sub(start) >= time.Duration(audioIdx)*audioInterval {
			if err := session.SendAudio(audioFrames[audioIdx]); err != nil {
				log.Warn("send audio: %v", err)
			}
			audioIdx++
		}

		if err := session.Poll(); err != nil {
			log.Error("poll: %v", err)
			return
		}

		time.Sleep(5 * time.Millisecond)
	}

	log.Info("input exhausted, closing session")
}

// groupAccessUnits reassembles split NAL units into Annex-B access units,
// one per video coded picture: non-VCL units (SPS/PPS/SEI/AUD) accumulate
// into the next access unit, which closes after its first VCL slice NAL.
func groupAccessUnits(nalus [][]byte) [][]byte {
	var units [][]byte
	var current []byte

	flush := func() {
		if len(current) > 0 {
			units = append(units, current)
			current = nil
		}
	}

	for _, nalu := range nalus {
		current = append(current, 0, 0, 1)
		current = append(current, nalu...)

		switch h264.NALType(nalu) {
		case 1, h264.NALTypeIDR:
			flush()
		}
	}
	flush()
	return units
}

func extractParameterSets(nalus [][]byte) (sps, pps []byte) {
	for _, nalu := range nalus {
		switch h264.NALType(nalu) {
		case h264.NALTypeSPS:
			if sps == nil {
				sps = append([]byte(nil), nalu...)
			}
		case h264.NALTypePPS:
			if pps == nil {
				pps = append([]byte(nil), nalu...)
			}
		}
		if sps != nil && pps != nil {
			break
		}
	}
	return sps, pps
}

// encodeAVCCExtradata builds a minimal AVCCConfigurationRecord (ISO/IEC
// 14496-15) carrying a single SPS/PPS pair with a 4-byte NAL length field,
// so internal/h264.ParseExtradata can recover them for STAP-A injection.
func encodeAVCCExtradata(sps, pps []byte) []byte {
	buf := make([]byte, 0, 11+len(sps)+len(pps))
	buf = append(buf, 1)
	if len(sps) >= 4 {
		buf = append(buf, sps[1], sps[2], sps[3])
	} else {
		buf = append(buf, 0, 0, 0)
	}
	buf = append(buf, 0xfc|0x03) // reserved bits set, nal_length_size_minus_one=3 (4-byte length)
	buf = append(buf, 0xe0|0x01) // reserved bits set, numOfSequenceParameterSets=1
	buf = append(buf, byte(len(sps)>>8), byte(len(sps)))
	buf = append(buf, sps...)
	buf = append(buf, 1) // numOfPictureParameterSets
	buf = append(buf, byte(len(pps)>>8), byte(len(pps)))
	buf = append(buf, pps...)
	return buf
}

// readLengthPrefixedFrames reads a sequence of big-endian uint32-length-
// prefixed Opus frames, the raw framing this publisher expects for --audio
// input when the source isn't already demuxed from an Ogg container.
func readLengthPrefixedFrames(r io.Reader) ([][]byte, error) {
	br := bufio.NewReader(r)
	var frames [][]byte
	for {
		var length uint32
		if err := binary.Read(br, binary.BigEndian, &length); err != nil {
			if err == io.EOF {
				return frames, nil
			}
			return nil, err
		}
		frame := make([]byte, length)
		if _, err := io.ReadFull(br, frame); err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
}
