package dtls

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateIdentity(t *testing.T) {
	id, err := GenerateIdentity()
	require.NoError(t, err)
	require.NotEmpty(t, id.Certificate.Certificate)
	require.Len(t, id.Fingerprint, 32*3-1) // 32 hex pairs joined by ':'
	require.NotContains(t, id.Fingerprint, "sha-256")
}

func TestSplitKeyingMaterialRoleAsymmetry(t *testing.T) {
	material := make([]byte, KeyingMaterialLength)
	for i := range material {
		material[i] = byte(i)
	}
	m, err := SplitKeyingMaterial(material)
	require.NoError(t, err)

	require.Equal(t, material[0:16], m.ClientKey)
	require.Equal(t, material[16:32], m.ServerKey)
	require.Equal(t, material[32:46], m.ClientSalt)
	require.Equal(t, material[46:60], m.ServerSalt)

	send := m.SendKey()
	require.Equal(t, append(append([]byte{}, m.ServerKey...), m.ServerSalt...), send)

	recv := m.RecvKey()
	require.Equal(t, append(append([]byte{}, m.ClientKey...), m.ClientSalt...), recv)
}

func TestSplitKeyingMaterialWrongLength(t *testing.T) {
	_, err := SplitKeyingMaterial(make([]byte, 10))
	require.Error(t, err)
}
