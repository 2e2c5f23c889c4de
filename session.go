// Package whip implements the WHIP (WebRTC-HTTP Ingestion Protocol)
// publisher core: SDP offer/answer exchange, ICE-Lite STUN binding, a
// passive DTLS-SRTP handshake, and H.264/Opus RTP packetization, driven
// entirely from a single cooperative poll loop.
package whip

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/lanikai/whip-publisher/internal/dtls"
	"github.com/lanikai/whip-publisher/internal/h264"
	"github.com/lanikai/whip-publisher/internal/logging"
	rtppkt "github.com/lanikai/whip-publisher/internal/rtp"
	"github.com/lanikai/whip-publisher/internal/sdp"
	"github.com/lanikai/whip-publisher/internal/srtp"
	"github.com/lanikai/whip-publisher/internal/stun"
	"github.com/lanikai/whip-publisher/internal/transport"
	"github.com/lanikai/whip-publisher/internal/whip"
)

var log = logging.DefaultLogger.WithTag("whip")

// naluTypeSTAPA is RFC 6184's STAP-A aggregation NAL unit type number.
const naluTypeSTAPA = 24

// State is the session's monotonic state machine, per spec §4.1. It only
// ever moves forward, except any state can transition to Failed.
type State int

const (
	StateInit State = iota
	StateOffer
	StateAnswer
	StateNegotiated
	StateUDPConnected
	StateICEConnecting
	StateICEConnected
	StateDTLSFinished
	StateSRTPFinished
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateOffer:
		return "offer"
	case StateAnswer:
		return "answer"
	case StateNegotiated:
		return "negotiated"
	case StateUDPConnected:
		return "udp_connected"
	case StateICEConnecting:
		return "ice_connecting"
	case StateICEConnected:
		return "ice_connected"
	case StateDTLSFinished:
		return "dtls_finished"
	case StateSRTPFinished:
		return "srtp_finished"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MediaParams describes the encoded streams this session will publish,
// supplied by the caller once extradata has been parsed out of the
// encoder's output, per spec §4.4.
type MediaParams struct {
	HasVideo      bool
	VideoPT       byte
	VideoSSRC     uint32
	VideoExtradata []byte // AVCC or Annex B, parsed via internal/h264

	HasAudio   bool
	AudioPT    byte
	AudioSSRC  uint32
	AudioRate  uint32
	AudioCh    byte
}

// Session is the publisher's root orchestrator: one WHIP resource, one
// UDP socket, one set of SRTP contexts, driven entirely by explicit
// method calls rather than a background goroutine.
type Session struct {
	config Config

	state State
	err   error

	identity *dtls.Identity
	localUfrag, localPwd   string
	remote   *sdp.RemoteDescription

	signaler *whip.Client
	conn     *transport.UDP
	dtlsAdp  *dtls.Adapter

	videoSendCtx *srtp.Context
	audioSendCtx *srtp.Context
	rtcpSendCtx  *srtp.Context
	recvCtx      *srtp.Context

	videoPacketizer *rtppkt.H264Packetizer
	audioPacketizer *rtppkt.OpusPacketizer

	videoExtradata *h264.Extradata

	// OnKeyframeRequest fires on PLI/FIR, letting the caller force the
	// next video frame to be an IDR.
	OnKeyframeRequest func()

	deadline time.Time
}

// NewSession validates cfg and returns a session in StateInit.
func NewSession(cfg Config) (*Session, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &Session{config: cfg, state: StateInit}, nil
}

func (s *Session) State() State { return s.state }
func (s *Session) Err() error   { return s.err }

func (s *Session) fail(err error) error {
	s.state = StateFailed
	s.err = err
	return err
}

// Connect runs the full handshake: build and exchange the SDP offer,
// open the UDP socket, complete ICE-Lite binding and a passive DTLS-SRTP
// handshake, and construct the packetizers, per spec §4.1/§4.6.
func (s *Session) Connect(media MediaParams) error {
	if s.state != StateInit {
		return s.fail(newError(FailureConfiguration, "Connect called in state %s", s.state))
	}

	identity, err := dtls.GenerateIdentity()
	if err != nil {
		return s.fail(wrapError(FailureConfiguration, err, "generate dtls identity"))
	}
	s.identity = identity

	s.localUfrag, err = randomICEString(8)
	if err != nil {
		return s.fail(wrapError(FailureConfiguration, err, "generate ice ufrag"))
	}
	s.localPwd, err = randomICEString(32)
	if err != nil {
		return s.fail(wrapError(FailureConfiguration, err, "generate ice pwd"))
	}

	params := sdp.OfferParams{
		HasVideo:    media.HasVideo,
		VideoPT:     int(media.VideoPT),
		VideoSSRC:   media.VideoSSRC,
		HasAudio:    media.HasAudio,
		AudioPT:     int(media.AudioPT),
		AudioSSRC:   media.AudioSSRC,
		AudioRate:   int(media.AudioRate),
		AudioCh:     int(media.AudioCh),
		LocalUfrag:  s.localUfrag,
		LocalPwd:    s.localPwd,
		Fingerprint: s.identity.Fingerprint,
	}

	if media.HasVideo && len(media.VideoExtradata) > 0 {
		extradata, err := h264.ParseExtradata(media.VideoExtradata)
		if err != nil {
			return s.fail(wrapError(FailureConfiguration, err, "parse video extradata"))
		}
		s.videoExtradata = extradata
		if profile, constraints, level, ok := extradata.ProfileLevel(); ok {
			params.ProfileIDC = profile
			params.ConstraintFlags = constraints
			params.LevelIDC = level
		}
		params.SPS = extradata.SPS
		params.PPS = extradata.PPS
	}

	offer := sdp.BuildOffer(params)
	s.state = StateOffer

	s.signaler = whip.NewClient(s.config.Endpoint, s.config.Authorization)
	answerText, err := s.signaler.Publish(offer)
	if err != nil {
		return s.fail(wrapError(FailureSignaling, err, "whip publish"))
	}
	s.state = StateAnswer

	remote, err := sdp.ParseAnswer(answerText)
	if err != nil {
		return s.fail(wrapError(FailureSignaling, err, "parse whip answer"))
	}
	s.remote = remote
	s.state = StateNegotiated

	conn, err := transport.Dial(remote.Host, remote.Port)
	if err != nil {
		return s.fail(wrapError(FailureTransport, err, "dial udp"))
	}
	s.conn = conn
	s.state = StateUDPConnected

	s.dtlsAdp = dtls.New(s.identity, s.config.maxRTPPayload(), s.conn.Write)

	s.state = StateICEConnecting
	s.deadline = time.Now().Add(s.config.HandshakeTimeout)
	if err := s.handshakeLoop(); err != nil {
		return s.fail(err)
	}

	material, err := s.dtlsAdp.ExportKeyingMaterial()
	if err != nil {
		return s.fail(wrapError(FailureHandshake, err, "export keying material"))
	}
	keying, err := dtls.SplitKeyingMaterial(material)
	if err != nil {
		return s.fail(wrapError(FailureHandshake, err, "split keying material"))
	}

	sendKey, sendSalt := keying.SendKey()[:16], keying.SendKey()[16:]
	recvKey, recvSalt := keying.RecvKey()[:16], keying.RecvKey()[16:]

	if s.videoSendCtx, err = srtp.NewContext(sendKey, sendSalt); err != nil {
		return s.fail(wrapError(FailureHandshake, err, "video srtp context"))
	}
	if s.audioSendCtx, err = srtp.NewContext(sendKey, sendSalt); err != nil {
		return s.fail(wrapError(FailureHandshake, err, "audio srtp context"))
	}
	if s.rtcpSendCtx, err = srtp.NewContext(sendKey, sendSalt); err != nil {
		return s.fail(wrapError(FailureHandshake, err, "rtcp srtp context"))
	}
	if s.recvCtx, err = srtp.NewContext(recvKey, recvSalt); err != nil {
		return s.fail(wrapError(FailureHandshake, err, "recv srtp context"))
	}
	s.state = StateSRTPFinished

	if media.HasVideo {
		s.videoPacketizer = rtppkt.NewH264Packetizer(media.VideoPT, media.VideoSSRC, s.config.maxRTPPayload()-rtppkt.HeaderSize, s.videoExtradata)
	}
	if media.HasAudio {
		s.audioPacketizer = rtppkt.NewOpusPacketizer(media.AudioPT, media.AudioSSRC, 0, s.config.OpusTimestampIncrement)
	}

	s.state = StateReady
	log.Info("session ready")
	return nil
}

// handshakeLoop implements spec §4.6: while not yet ICE-connected, emit a
// STUN binding request; read up to 10 datagrams sleeping 5ms between
// EAGAINs; classify and dispatch each; enforce HandshakeTimeout.
func (s *Session) handshakeLoop() error {
	for s.state < StateDTLSFinished {
		if time.Now().After(s.deadline) {
			return newError(FailureHandshake, "handshake timed out after %s", s.config.HandshakeTimeout)
		}

		if s.state <= StateICEConnecting {
			req, err := stun.NewBindingRequest(s.localUfrag, s.remote.Ufrag, s.remote.Pwd)
			if err != nil {
				return wrapError(FailureHandshake, err, "build stun binding request")
			}
			if err := s.conn.Write(req); err != nil {
				return wrapError(FailureTransport, err, "write stun binding request")
			}
		}

		datagrams, err := s.conn.ReadBurst(10, 5*time.Millisecond)
		if err != nil {
			return wrapError(FailureTransport, err, "read udp burst")
		}

		for _, datagram := range datagrams {
			if err := s.classifyHandshakeDatagram(datagram); err != nil {
				return err
			}
		}

		if s.state == StateICEConnected {
			switch s.dtlsAdp.State() {
			case dtls.StateFinished:
				s.state = StateDTLSFinished
			case dtls.StateFailed:
				return newError(FailureHandshake, "dtls handshake failed")
			}
		}
	}
	return nil
}

// classifyHandshakeDatagram implements the byte0/length classification
// from spec §4.6: STUN Binding Success/Request, or a DTLS record (byte0
// in [20,63], length>13, only once ICE is connected).
func (s *Session) classifyHandshakeDatagram(b []byte) error {
	switch {
	case stun.IsBindingRequest(b):
		if !stun.VerifyIntegrity(b, s.localPwd) {
			log.Warn("stun: dropping binding request with bad integrity")
			return nil
		}
		msg, err := stun.Parse(b)
		if err != nil {
			log.Warn("stun: dropping unparsable binding request: %v", err)
			return nil
		}
		resp, err := stun.NewBindingResponse(msg.TransactionID, s.localPwd)
		if err != nil {
			return wrapError(FailureHandshake, err, "build stun binding response")
		}
		if err := s.conn.Write(resp); err != nil {
			return wrapError(FailureTransport, err, "write stun binding response")
		}

	case stun.IsBindingSuccess(b):
		if s.state < StateICEConnected {
			s.state = StateICEConnected
			s.dtlsAdp.Start()
		}

	case len(b) > 13 && b[0] >= 20 && b[0] <= 63:
		if s.state >= StateICEConnected {
			s.dtlsAdp.Feed(b)
		}

	default:
		log.Trace(1, "handshake: ignoring unrecognized %d-byte datagram", len(b))
	}
	return nil
}

// SendVideo packetizes one H.264 access unit (Annex B, start-code
// delimited) and sends it, injecting SPS/PPS ahead of IDR frames.
func (s *Session) SendVideo(timestamp uint32, accessUnit []byte) error {
	if s.state != StateReady {
		return newError(FailureConfiguration, "SendVideo called in state %s", s.state)
	}
	return s.videoPacketizer.Packetize(timestamp, accessUnit, func(pkt []byte, marker bool) error {
		return s.sendRTP(s.videoSendCtx, pkt)
	})
}

// SendAudio packetizes one Opus access unit. The RTP timestamp is derived
// entirely from OpusTimestampIncrement, not from any caller-supplied
// clock, per spec §9.
func (s *Session) SendAudio(accessUnit []byte) error {
	if s.state != StateReady {
		return newError(FailureConfiguration, "SendAudio called in state %s", s.state)
	}
	return s.audioPacketizer.Packetize(accessUnit, func(pkt []byte) error {
		return s.sendRTP(s.audioSendCtx, pkt)
	})
}

// sendRTP is the post-packetizer hook from spec §4.7: validate the RTP
// version, fix up STAP-A aggregates (clear the marker bit; rewrite NRI to
// match the first inner NAL rather than the RFC 6184 max-of-all rule,
// matching documented source behavior), SRTP-encrypt, and write to the
// UDP socket.
func (s *Session) sendRTP(ctx *srtp.Context, pkt []byte) error {
	if s.dtlsAdp.State() == dtls.StateClosed {
		return s.fail(newError(FailureTransport, "dtls connection closed by peer"))
	}

	hdr, headerLen, err := rtppkt.Parse(pkt)
	if err != nil {
		return wrapError(FailurePacketization, err, "malformed outbound rtp packet")
	}

	fixupSTAPA(pkt, headerLen)

	if len(pkt) > s.config.PacketSize {
		log.Warn("packetization: dropping oversize %d-byte rtp packet (limit %d)", len(pkt), s.config.PacketSize)
		return nil
	}

	encrypted, err := ctx.EncryptRTP(pkt, hdr.SSRC, hdr.SequenceNumber, headerLen)
	if err != nil {
		return wrapError(FailurePacketization, err, "srtp encrypt")
	}

	if err := s.conn.Write(encrypted); err != nil {
		return wrapError(FailureTransport, err, "udp write")
	}
	return nil
}

// fixupSTAPA applies the post-packetizer quirk documented in spec §4.7
// for STAP-A aggregates: the marker bit is cleared (STAP-A packets carry
// parameter sets, never the last packet of a frame) and the aggregate's
// NRI is rewritten to match its first inner NAL unit rather than RFC
// 6184 §5.7's own max-of-all-aggregated-NALs rule.
func fixupSTAPA(pkt []byte, headerLen int) {
	if headerLen >= len(pkt) {
		return
	}
	if pkt[headerLen]&0x1f != naluTypeSTAPA {
		return
	}
	pkt[1] &^= 0x80
	if headerLen+3 <= len(pkt) {
		firstNRI := pkt[headerLen+3] & 0x60
		pkt[headerLen] = (pkt[headerLen] &^ 0x60) | firstNRI
	}
}

// Poll makes one non-blocking receive attempt and handles the datagram, if
// any: feeding DTLS records, answering STUN requests, and dispatching RTCP
// feedback, per spec §4.8. It should be called once per send, or on an
// idle timer, never from a background goroutine.
func (s *Session) Poll() error {
	datagrams, err := s.conn.ReadBurst(1, 0)
	if err != nil {
		return wrapError(FailureTransport, err, "read udp")
	}
	for _, b := range datagrams {
		if err := s.dispatchInbound(b); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) dispatchInbound(b []byte) error {
	switch {
	case stun.IsBindingRequest(b):
		return s.classifyHandshakeDatagram(b)

	case len(b) > 13 && b[0] >= 20 && b[0] <= 63:
		s.dtlsAdp.Feed(b)
		return nil

	case rtppkt.IsRTCP(b):
		plain, err := s.recvCtx.DecryptRTCP(b)
		if err != nil {
			log.Warn("srtcp: dropping packet that failed to decrypt: %v", err)
			return nil
		}
		fb, err := rtppkt.ParseFeedback(plain)
		if err != nil {
			log.Debug("rtcp: %v", err)
			return nil
		}
		if fb == nil {
			return nil
		}
		switch fb.Kind {
		case rtppkt.FeedbackPLI, rtppkt.FeedbackFIR:
			log.Debug("rtcp: received %s for ssrc %d", fb.Kind, fb.Source)
			if s.OnKeyframeRequest != nil {
				s.OnKeyframeRequest()
			}
		default:
			log.Trace(2, "rtcp: received %s, ignoring", fb.Kind)
		}
		return nil

	default:
		log.Trace(2, "poll: ignoring unrecognized %d-byte datagram", len(b))
		return nil
	}
}

// Close tears down the WHIP resource. DELETE failures are logged, not
// fatal, per spec §4.5.
func (s *Session) Close() {
	if s.signaler != nil {
		s.signaler.Teardown()
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			log.Debug("close udp: %v", err)
		}
	}
}

// randomICEString returns n random lowercase hex characters, per spec §3's
// data model (ICE ufrag: 8 hex chars, ICE pwd: 32 hex chars). n must be even.
func randomICEString(n int) (string, error) {
	buf := make([]byte, n/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("rand: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
