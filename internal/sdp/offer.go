package sdp

import (
	"fmt"
	"strconv"
	"strings"
)

// OfferParams carries everything needed to render the fixed-template WHIP
// offer: a single optional audio m-line (Opus) and a single optional video
// m-line (H.264), both sendonly, bundled, rtcp-mux.
type OfferParams struct {
	HasAudio  bool
	AudioPT   int
	AudioSSRC uint32
	AudioRate int
	AudioCh   int

	HasVideo  bool
	VideoPT   int
	VideoSSRC uint32

	// H.264 profile/constraint/level bytes parsed from SPS. Zero means
	// "not available"; BuildOffer substitutes the documented defaults.
	ProfileIDC      byte
	ConstraintFlags byte
	LevelIDC        byte

	// SPS/PPS NAL payloads for the fmtp sprop-parameter-sets attribute.
	// Either or both may be nil when extradata wasn't available.
	SPS []byte
	PPS []byte

	LocalUfrag  string
	LocalPwd    string
	Fingerprint string
}

// BuildOffer renders the offer exactly per the fixed template: origin line,
// BUNDLE grouping, msid-semantic, then one m-line per present stream.
func BuildOffer(p OfferParams) string {
	var mids []string
	if p.HasAudio {
		mids = append(mids, "0")
	}
	if p.HasVideo {
		mids = append(mids, strconv.Itoa(len(mids)))
	}

	var b strings.Builder
	b.WriteString("v=0\r\n")
	b.WriteString("o=- 0 0 IN IP4 127.0.0.1\r\n")
	b.WriteString("s=-\r\n")
	b.WriteString("t=0 0\r\n")
	b.WriteString("a=group:BUNDLE " + strings.Join(mids, " ") + "\r\n")
	b.WriteString("a=msid-semantic: WMS\r\n")

	mid := 0
	if p.HasAudio {
		rate := p.AudioRate
		if rate == 0 {
			rate = 48000
		}
		ch := p.AudioCh
		if ch == 0 {
			ch = 2
		}
		fmt.Fprintf(&b, "m=audio 9 UDP/TLS/RTP/SAVPF %d\r\n", p.AudioPT)
		b.WriteString("c=IN IP4 0.0.0.0\r\n")
		b.WriteString("a=ice-ufrag:" + p.LocalUfrag + "\r\n")
		b.WriteString("a=ice-pwd:" + p.LocalPwd + "\r\n")
		b.WriteString("a=fingerprint:sha-256 " + p.Fingerprint + "\r\n")
		b.WriteString("a=setup:passive\r\n")
		fmt.Fprintf(&b, "a=mid:%d\r\n", mid)
		b.WriteString("a=sendonly\r\n")
		b.WriteString("a=rtcp-mux\r\n")
		fmt.Fprintf(&b, "a=rtpmap:%d opus/%d/%d\r\n", p.AudioPT, rate, ch)
		fmt.Fprintf(&b, "a=ssrc:%d cname:FFmpeg\r\n", p.AudioSSRC)
		fmt.Fprintf(&b, "a=ssrc:%d msid:FFmpeg audio\r\n", p.AudioSSRC)
		mid++
	}
	if p.HasVideo {
		profile := p.ProfileIDC
		if profile == 0 {
			profile = 0x42
		}
		level := p.LevelIDC
		if level == 0 {
			level = 30
		}
		fmt.Fprintf(&b, "m=video 9 UDP/TLS/RTP/SAVPF %d\r\n", p.VideoPT)
		b.WriteString("c=IN IP4 0.0.0.0\r\n")
		b.WriteString("a=ice-ufrag:" + p.LocalUfrag + "\r\n")
		b.WriteString("a=ice-pwd:" + p.LocalPwd + "\r\n")
		b.WriteString("a=fingerprint:sha-256 " + p.Fingerprint + "\r\n")
		b.WriteString("a=setup:passive\r\n")
		fmt.Fprintf(&b, "a=mid:%d\r\n", mid)
		b.WriteString("a=sendonly\r\n")
		b.WriteString("a=rtcp-mux\r\n")
		b.WriteString("a=rtcp-rsize\r\n")
		fmt.Fprintf(&b, "a=rtpmap:%d H264/90000\r\n", p.VideoPT)
		fmtp := H264FormatParameters{
			LevelAsymmetryAllowed: true,
			PacketizationMode:     1,
			ProfileLevelID:        int(profile)<<16 | int(p.ConstraintFlags)<<8 | int(level),
		}
		if len(p.SPS) > 0 || len(p.PPS) > 0 {
			if len(p.SPS) > 0 {
				fmtp.SpropParameterSets = append(fmtp.SpropParameterSets, p.SPS)
			}
			if len(p.PPS) > 0 {
				fmtp.SpropParameterSets = append(fmtp.SpropParameterSets, p.PPS)
			}
		}
		fmt.Fprintf(&b, "a=fmtp:%d %s\r\n", p.VideoPT, fmtp.Marshal())
		fmt.Fprintf(&b, "a=ssrc:%d cname:FFmpeg\r\n", p.VideoSSRC)
		fmt.Fprintf(&b, "a=ssrc:%d msid:FFmpeg video\r\n", p.VideoSSRC)
	}
	return b.String()
}

// RemoteDescription is the subset of an SDP answer this publisher needs:
// the remote ICE credentials and the first usable host candidate.
type RemoteDescription struct {
	Ufrag    string
	Pwd      string
	Host     string
	Port     int
	Protocol string
}

// ParseAnswer scans the answer line by line and captures the first
// occurrence of ice-ufrag, ice-pwd, and a UDP host candidate, per spec
// §4.3. It does not require the answer to parse as a full generic SDP
// session, since answers from varied WHIP media servers differ widely in
// attributes this publisher does not use.
func ParseAnswer(text string) (*RemoteDescription, error) {
	rd := &RemoteDescription{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case rd.Ufrag == "" && strings.HasPrefix(line, "a=ice-ufrag:"):
			rd.Ufrag = strings.TrimPrefix(line, "a=ice-ufrag:")
		case rd.Pwd == "" && strings.HasPrefix(line, "a=ice-pwd:"):
			rd.Pwd = strings.TrimPrefix(line, "a=ice-pwd:")
		case rd.Host == "" && strings.HasPrefix(line, "a=candidate:"):
			if c, ok := parseHostCandidate(line); ok {
				rd.Host, rd.Port, rd.Protocol = c.host, c.port, c.protocol
			}
		}
	}
	if rd.Ufrag == "" {
		return nil, fmt.Errorf("sdp: answer missing ice-ufrag")
	}
	if rd.Pwd == "" {
		return nil, fmt.Errorf("sdp: answer missing ice-pwd")
	}
	if rd.Host == "" {
		return nil, fmt.Errorf("sdp: answer has no usable udp host candidate")
	}
	if !strings.EqualFold(rd.Protocol, "udp") {
		return nil, fmt.Errorf("sdp: candidate protocol %q is not udp", rd.Protocol)
	}
	return rd, nil
}

type hostCandidate struct {
	protocol string
	host     string
	port     int
}

// parseHostCandidate matches "candidate:<foundation> <component> <proto>
// <priority> <host> <port> typ host ...", requiring " udp " and " typ
// host" to both be present per spec §4.3.
func parseHostCandidate(line string) (hostCandidate, bool) {
	if !strings.Contains(strings.ToLower(line), " udp ") {
		return hostCandidate{}, false
	}
	if !strings.Contains(line, " typ host") {
		return hostCandidate{}, false
	}
	value := strings.TrimPrefix(line, "a=candidate:")
	fields := strings.Fields(value)
	// foundation component protocol priority host port "typ" "host" ...
	if len(fields) < 8 {
		return hostCandidate{}, false
	}
	port, err := strconv.Atoi(fields[5])
	if err != nil {
		return hostCandidate{}, false
	}
	return hostCandidate{protocol: fields[2], host: fields[4], port: port}, true
}
