package h264

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildAVCC(sps, pps []byte, lengthSizeMinusOne byte) []byte {
	var b bytes.Buffer
	b.WriteByte(1)          // version
	b.Write([]byte{0, 0, 0}) // profile/compat/level, unused by the parser
	b.WriteByte(0xFC | lengthSizeMinusOne)
	b.WriteByte(0xE0 | 1) // nb_sps = 1
	b.WriteByte(byte(len(sps) >> 8))
	b.WriteByte(byte(len(sps)))
	b.Write(sps)
	b.WriteByte(1) // nb_pps = 1
	b.WriteByte(byte(len(pps) >> 8))
	b.WriteByte(byte(len(pps)))
	b.Write(pps)
	return b.Bytes()
}

func TestParseAVCCRoundTrip(t *testing.T) {
	sps := []byte{0x67, 0x42, 0x00, 0x1e, 0xaa, 0xbb}
	pps := []byte{0x68, 0xce, 0x3c, 0x80}
	raw := buildAVCC(sps, pps, 3) // nal_length_size_minus_one=3 -> size 4

	e, err := ParseExtradata(raw)
	require.NoError(t, err)
	require.Equal(t, 4, e.NALLengthSize)
	require.Equal(t, sps, e.SPS)
	require.Equal(t, pps, e.PPS)

	injected := e.EmitParameterSets()
	want := 4 + len(sps) + 4 + len(pps)
	require.Equal(t, want, len(injected))
}

func TestParseAVCCRejectsLengthSize3(t *testing.T) {
	raw := buildAVCC([]byte{0x67, 1}, []byte{0x68, 1}, 2) // minus_one=2 -> size 3, rejected
	_, err := ParseExtradata(raw)
	require.Error(t, err)
}

func TestParseAnnexB(t *testing.T) {
	raw := []byte{0, 0, 0, 1, 0x67, 1, 2, 0, 0, 1, 0x68, 3, 4}
	e, err := ParseExtradata(raw)
	require.NoError(t, err)
	require.True(t, e.IsAnnexB())
}

func TestParseInvalidExtradata(t *testing.T) {
	_, err := ParseExtradata([]byte{0x02, 0x02, 0x02})
	require.Error(t, err)
}

func TestSplitAnnexB(t *testing.T) {
	data := []byte{0, 0, 0, 1, 0x67, 1, 2, 0, 0, 1, 0x68, 3, 4}
	nalus := SplitAnnexB(data)
	require.Len(t, nalus, 2)
	require.Equal(t, []byte{0x67, 1, 2}, nalus[0])
	require.Equal(t, []byte{0x68, 3, 4}, nalus[1])
}

func TestProfileLevel(t *testing.T) {
	e := &Extradata{SPS: []byte{0x67, 0x42, 0xc0, 0x1e}}
	profile, constraint, level, ok := e.ProfileLevel()
	require.True(t, ok)
	require.Equal(t, byte(0x42), profile)
	require.Equal(t, byte(0xc0), constraint)
	require.Equal(t, byte(0x1e), level)
}
