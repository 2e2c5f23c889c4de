package sdp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildOfferDeterministic(t *testing.T) {
	p := OfferParams{
		HasAudio:    true,
		AudioPT:     111,
		AudioSSRC:   1,
		HasVideo:    true,
		VideoPT:     106,
		VideoSSRC:   2,
		LocalUfrag:  "n3E3",
		LocalPwd:    "pwd",
		Fingerprint: "AA:BB",
	}
	a := BuildOffer(p)
	b := BuildOffer(p)
	require.Equal(t, a, b)
	require.True(t, strings.HasPrefix(a, "v=0\r\n"))
	require.Contains(t, a, "a=group:BUNDLE 0 1\r\n")
	require.Contains(t, a, "m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n")
	require.Contains(t, a, "m=video 9 UDP/TLS/RTP/SAVPF 106\r\n")
	require.Contains(t, a, "a=sendonly\r\n")
	require.Contains(t, a, "profile-level-id=42001e")
}

func TestParseAnswerFirstOccurrenceWins(t *testing.T) {
	answer := "v=0\r\n" +
		"a=ice-ufrag:Xabc\r\n" +
		"a=ice-pwd:Ypwd32xxxxxxxxxxxxxxxxxxxxxxxxxx\r\n" +
		"a=candidate:1 1 udp 2130706431 127.0.0.1 40000 typ host\r\n" +
		"a=ice-ufrag:should-be-ignored\r\n" +
		"a=candidate:2 1 udp 2130706431 10.0.0.1 50000 typ host\r\n"

	rd, err := ParseAnswer(answer)
	require.NoError(t, err)
	require.Equal(t, "Xabc", rd.Ufrag)
	require.Equal(t, "Ypwd32xxxxxxxxxxxxxxxxxxxxxxxxxx", rd.Pwd)
	require.Equal(t, "127.0.0.1", rd.Host)
	require.Equal(t, 40000, rd.Port)
	require.Equal(t, "udp", rd.Protocol)
}

func TestParseAnswerMissingCandidate(t *testing.T) {
	_, err := ParseAnswer("v=0\r\na=ice-ufrag:x\r\na=ice-pwd:y\r\n")
	require.Error(t, err)
}
