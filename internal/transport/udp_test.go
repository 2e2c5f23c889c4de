package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDialWriteReadRoundTrip(t *testing.T) {
	peer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer peer.Close()

	addr := peer.LocalAddr().(*net.UDPAddr)
	u, err := Dial("127.0.0.1", addr.Port)
	require.NoError(t, err)
	defer u.Close()

	require.NoError(t, u.Write([]byte("hello")))

	buf := make([]byte, 16)
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(time.Second)))
	n, from, err := peer.ReadFromUDP(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))

	_, err = peer.WriteToUDP([]byte("world"), from)
	require.NoError(t, err)

	datagrams, err := u.ReadBurst(5, time.Millisecond)
	require.NoError(t, err)
	require.Len(t, datagrams, 1)
	require.Equal(t, "world", string(datagrams[0]))
}

func TestReadReturnsErrWouldBlockWhenIdle(t *testing.T) {
	peer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer peer.Close()

	addr := peer.LocalAddr().(*net.UDPAddr)
	u, err := Dial("127.0.0.1", addr.Port)
	require.NoError(t, err)
	defer u.Close()

	_, err = u.Read()
	require.ErrorIs(t, err, ErrWouldBlock)
}

func TestWriteAfterCloseFails(t *testing.T) {
	peer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer peer.Close()

	addr := peer.LocalAddr().(*net.UDPAddr)
	u, err := Dial("127.0.0.1", addr.Port)
	require.NoError(t, err)
	require.NoError(t, u.Close())

	require.Error(t, u.Write([]byte("x")))
}
