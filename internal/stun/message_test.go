package stun

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBindingRequestRoundTrip(t *testing.T) {
	raw, err := NewBindingRequest("n3E3", "Xabc", "Ypwd32xxxxxxxxxxxxxxxxxxxxxxxxxx")
	require.NoError(t, err)
	require.True(t, IsBindingRequest(raw))
	require.True(t, VerifyFingerprint(raw))
	require.True(t, VerifyIntegrity(raw, "Ypwd32xxxxxxxxxxxxxxxxxxxxxxxxxx"))

	msg, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, uint16(classRequest), msg.Class)
	require.Equal(t, uint16(methodBinding), msg.Method)

	username, ok := msg.Get(AttrUsername)
	require.True(t, ok)
	require.Equal(t, "Xabc:n3E3", string(username))

	_, ok = msg.Get(AttrUseCandidate)
	require.True(t, ok)
}

func TestBindingRequestDeterministic(t *testing.T) {
	tid := [12]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	a, err := buildMessage(classRequest, tid, []Attribute{
		{Type: AttrUsername, Value: []byte("Xabc:n3E3")},
		{Type: AttrUseCandidate, Value: nil},
	}, "pwd")
	require.NoError(t, err)
	b, err := buildMessage(classRequest, tid, []Attribute{
		{Type: AttrUsername, Value: []byte("Xabc:n3E3")},
		{Type: AttrUseCandidate, Value: nil},
	}, "pwd")
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestBindingResponse(t *testing.T) {
	tid := [12]byte{9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9}
	raw, err := NewBindingResponse(tid, "localpwd")
	require.NoError(t, err)
	require.True(t, IsBindingSuccess(raw))
	require.True(t, VerifyFingerprint(raw))
	require.True(t, VerifyIntegrity(raw, "localpwd"))

	msg, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, tid, msg.TransactionID)
}
