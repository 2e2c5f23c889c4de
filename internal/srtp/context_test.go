package srtp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testKeySalt() ([]byte, []byte) {
	key := make([]byte, EncryptKeyLength)
	salt := make([]byte, SaltKeyLength)
	for i := range key {
		key[i] = byte(i + 1)
	}
	for i := range salt {
		salt[i] = byte(i + 100)
	}
	return key, salt
}

func TestEncryptRTPGrowsByAuthTag(t *testing.T) {
	key, salt := testKeySalt()
	ctx, err := NewContext(key, salt)
	require.NoError(t, err)

	packet := make([]byte, 12+64)
	packet[0] = 2 << 6

	out, err := ctx.EncryptRTP(packet, 0x1234, 1, 12)
	require.NoError(t, err)
	require.Len(t, out, len(packet)+AuthTagLength)
}

func TestEncryptRTPDistinctSSRCsIndependentROC(t *testing.T) {
	key, salt := testKeySalt()
	ctx, err := NewContext(key, salt)
	require.NoError(t, err)

	packet := func() []byte {
		p := make([]byte, 12+8)
		p[0] = 2 << 6
		return p
	}

	_, err = ctx.EncryptRTP(packet(), 0xAAAA, 0, 12)
	require.NoError(t, err)
	roc := ctx.updateRolloverCount(0xAAAA, 1)
	require.Equal(t, uint32(0), roc)

	rocOther := ctx.updateRolloverCount(0xBBBB, 1)
	require.Equal(t, uint32(0), rocOther)
}

func TestUpdateRolloverCountWraps(t *testing.T) {
	key, salt := testKeySalt()
	ctx, err := NewContext(key, salt)
	require.NoError(t, err)

	ctx.updateRolloverCount(0x01, maxSequenceNumber-1)
	roc := ctx.updateRolloverCount(0x01, 0)
	require.Equal(t, uint32(1), roc)
}

func TestEncryptRTCPAppendsIndexAndTag(t *testing.T) {
	key, salt := testKeySalt()
	ctx, err := NewContext(key, salt)
	require.NoError(t, err)

	packet := make([]byte, 8+20)
	packet[0] = 0x80
	packet[1] = 200

	out, err := ctx.EncryptRTCP(packet)
	require.NoError(t, err)
	require.Len(t, out, len(packet)+4+AuthTagLength)
}

func TestRTCPRoundTrip(t *testing.T) {
	key, salt := testKeySalt()
	sendCtx, err := NewContext(key, salt)
	require.NoError(t, err)
	recvCtx, err := NewContext(key, salt)
	require.NoError(t, err)

	packet := make([]byte, 8+16)
	packet[0] = 0x80
	packet[1] = 200
	for i := 8; i < len(packet); i++ {
		packet[i] = byte(i)
	}
	original := append([]byte(nil), packet...)

	encrypted, err := sendCtx.EncryptRTCP(packet)
	require.NoError(t, err)

	decrypted, err := recvCtx.DecryptRTCP(encrypted)
	require.NoError(t, err)
	require.Equal(t, original, decrypted)
}

func TestNewContextRejectsBadKeyLength(t *testing.T) {
	_, err := NewContext(make([]byte, 4), make([]byte, SaltKeyLength))
	require.Error(t, err)

	_, err = NewContext(make([]byte, EncryptKeyLength), make([]byte, 4))
	require.Error(t, err)
}
