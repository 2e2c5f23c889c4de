// Package transport implements the non-blocking single-peer UDP socket
// used for the whole life of a session: ICE binding, DTLS handshake, and
// steady-state SRTP/RTCP.
package transport

import (
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/lanikai/whip-publisher/internal/logging"
)

var log = logging.DefaultLogger.WithTag("transport")

// ErrWouldBlock is returned by Read when no datagram is currently
// available, mirroring EAGAIN on a non-blocking socket.
var ErrWouldBlock = errors.New("transport: read would block")

// UDP is a non-blocking single-peer datagram socket. It is not safe for
// concurrent use; the session orchestrator is its only caller.
type UDP struct {
	conn   *net.UDPConn
	peer   *net.UDPAddr
	buf    []byte
	closed bool
}

// Dial opens a local UDP socket and fixes its remote peer.
func Dial(host string, port int) (*UDP, error) {
	peer := &net.UDPAddr{IP: net.ParseIP(host), Port: port}
	if peer.IP == nil {
		resolved, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			return nil, err
		}
		peer = resolved
	}
	conn, err := net.DialUDP("udp", nil, peer)
	if err != nil {
		return nil, err
	}
	return &UDP{conn: conn, peer: peer, buf: make([]byte, 65536)}, nil
}

// Read performs exactly one non-blocking receive attempt. It returns
// ErrWouldBlock (not an error the caller should treat as fatal) when
// nothing is pending, per spec §4.6/§7 "UDP read EAGAIN — expected,
// ignored".
func (u *UDP) Read() ([]byte, error) {
	if u.closed {
		return nil, net.ErrClosed
	}
	if err := u.conn.SetReadDeadline(time.Now()); err != nil {
		return nil, err
	}
	n, err := u.conn.Read(u.buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, ErrWouldBlock
		}
		return nil, err
	}
	out := make([]byte, n)
	copy(out, u.buf[:n])
	return out, nil
}

// ReadBurst reads up to max datagrams, sleeping sleep between EAGAIN
// results, implementing the handshake loop's poll window from spec §4.6
// step 2.
func (u *UDP) ReadBurst(max int, sleep time.Duration) ([][]byte, error) {
	var out [][]byte
	for i := 0; i < max; i++ {
		b, err := u.Read()
		if err == ErrWouldBlock {
			time.Sleep(sleep)
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, b)
	}
	return out, nil
}

// Write performs a non-blocking send. A write error is fatal per spec §7.
func (u *UDP) Write(b []byte) error {
	if u.closed {
		return net.ErrClosed
	}
	_, err := u.conn.Write(b)
	if err != nil {
		log.Warn("udp write failed: %v", err)
	}
	return err
}

// Close releases the socket.
func (u *UDP) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true
	return u.conn.Close()
}
