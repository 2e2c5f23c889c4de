// Package dtls adapts github.com/pion/dtls/v3 to the session's
// single-threaded cooperative model: the handshake runs on one helper
// goroutine driven entirely through a channel-backed net.Conn, and reports
// back to the orchestrator only via State() and Done().
package dtls

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	pion "github.com/pion/dtls/v3"

	"github.com/lanikai/whip-publisher/internal/logging"
)

var log = logging.DefaultLogger.WithTag("dtls")

// State is the small sum type the adapter reports to the orchestrator, per
// spec §4.1's on_state callback and §9's "sum-typed state" note.
type State int

const (
	StateHandshaking State = iota
	StateFinished
	StateClosed // established connection ended: close_notify, or any read error including a fatal alert
	StateFailed // handshake error, including a fatal alert during the handshake
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateFinished:
		return "finished"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// KeyingMaterialLength is the number of bytes exported for SRTP key
// derivation: client_key(16) | server_key(16) | client_salt(14) |
// server_salt(14), per spec §3.
const KeyingMaterialLength = 2*16 + 2*14

// Adapter drives a passive (server-role) DTLS handshake over a UDP
// transport the orchestrator owns. The orchestrator feeds it inbound DTLS
// records via Feed and drains outbound records via the Write callback
// supplied to New.
type Adapter struct {
	identity *Identity
	mtu      int
	write    func([]byte) error

	conn     *channelConn
	dtlsConn *pion.Conn

	stateMu sync.Mutex
	state   State

	done chan struct{}
}

// New creates an adapter for a freshly generated identity. write is called
// once per outbound DTLS record (never buffered/concatenated), satisfying
// spec §4.1's requirement that each record leave as its own datagram.
func New(identity *Identity, mtu int, write func([]byte) error) *Adapter {
	return &Adapter{
		identity: identity,
		mtu:      mtu,
		write:    write,
		conn:     newChannelConn(write),
		state:    StateHandshaking,
		done:     make(chan struct{}),
	}
}

// Start launches the passive handshake. It must be called once, after the
// first successful ICE binding response per spec §4.1.
func (a *Adapter) Start() {
	cfg := &pion.Config{
		Certificates:           []tls.Certificate{a.identity.Certificate},
		InsecureSkipVerify:     true,
		ClientAuth:             pion.RequireAnyClientCert,
		MTU:                    a.mtu,
		SRTPProtectionProfiles: []pion.SRTPProtectionProfile{pion.SRTP_AES128_CM_HMAC_SHA1_80},
	}

	go func() {
		conn, err := pion.Server(a.conn, cfg)
		if err != nil {
			log.Warn("dtls handshake failed: %v", err)
			a.setState(StateFailed)
			close(a.done)
			return
		}
		a.dtlsConn = conn
		a.setState(StateFinished)
		close(a.done)

		go a.watchForClose()
	}()
}

// watchForClose blocks on reads from the established connection purely to
// notice the peer's close_notify/fatal alert; the publisher never expects
// application data on the DTLS channel itself (media travels as SRTP,
// demultiplexed on the same port but outside this connection's read path).
func (a *Adapter) watchForClose() {
	buf := make([]byte, 1500)
	for {
		_, err := a.dtlsConn.Read(buf)
		if err != nil {
			log.Debug("dtls connection ended: %v", err)
			a.setState(StateClosed)
			return
		}
	}
}

// Feed delivers one inbound DTLS record (classified by the orchestrator's
// receive dispatch, C10) to the handshake/connection state machine.
func (a *Adapter) Feed(record []byte) {
	a.conn.deliver(record)
}

// State returns the adapter's current sum-typed state.
func (a *Adapter) State() State {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.state
}

func (a *Adapter) setState(s State) {
	a.stateMu.Lock()
	a.state = s
	a.stateMu.Unlock()
}

// Done is closed once the handshake completes, successfully or not.
func (a *Adapter) Done() <-chan struct{} {
	return a.done
}

// ExportKeyingMaterial exports the 60 bytes of SRTP keying material using
// the DTLS-SRTP extractor label, per spec §4.1/§3.
func (a *Adapter) ExportKeyingMaterial() ([]byte, error) {
	if a.dtlsConn == nil {
		return nil, fmt.Errorf("dtls: handshake not finished")
	}
	return a.dtlsConn.ExportKeyingMaterial("EXTRACTOR-dtls_srtp", nil, KeyingMaterialLength)
}

// KeyingMaterial is the 60-byte export split into its four RFC 5764
// components, per spec §3: client_key(16) | server_key(16) |
// client_salt(14) | server_salt(14).
type KeyingMaterial struct {
	ClientKey  []byte
	ServerKey  []byte
	ClientSalt []byte
	ServerSalt []byte
}

// SplitKeyingMaterial slices a 60-byte export into its four components.
func SplitKeyingMaterial(material []byte) (*KeyingMaterial, error) {
	if len(material) != KeyingMaterialLength {
		return nil, fmt.Errorf("dtls: keying material is %d bytes, want %d", len(material), KeyingMaterialLength)
	}
	return &KeyingMaterial{
		ClientKey:  material[0:16],
		ServerKey:  material[16:32],
		ClientSalt: material[32:46],
		ServerSalt: material[46:60],
	}, nil
}

// SendKey and RecvKey reflect the passive (server) role asymmetry from
// spec §9: since this host offers setup:passive, it is the DTLS server,
// so its send key is server_key‖server_salt and its recv key is
// client_key‖client_salt.
func (m *KeyingMaterial) SendKey() []byte {
	return append(append([]byte{}, m.ServerKey...), m.ServerSalt...)
}

func (m *KeyingMaterial) RecvKey() []byte {
	return append(append([]byte{}, m.ClientKey...), m.ClientSalt...)
}

// channelConn implements net.Conn over two directions: inbound bytes are
// pushed in by Feed (session orchestrator), outbound bytes go straight to
// the UDP write callback. Grounded on the teacher's
// internal/ice.ChannelConn, which solves the identical problem of handing
// a blocking library a net.Conn fed from a cooperative poll loop.
type channelConn struct {
	in    chan []byte
	write func([]byte) error

	readDeadline time.Time
}

func newChannelConn(write func([]byte) error) *channelConn {
	return &channelConn{
		in:    make(chan []byte, 16),
		write: write,
	}
}

func (c *channelConn) deliver(b []byte) {
	cp := make([]byte, len(b))
	copy(cp, b)
	select {
	case c.in <- cp:
	default:
		log.Warn("dtls: inbound record queue full, dropping record")
	}
}

func (c *channelConn) Read(b []byte) (int, error) {
	record, ok := <-c.in
	if !ok {
		return 0, net.ErrClosed
	}
	n := copy(b, record)
	return n, nil
}

func (c *channelConn) Write(b []byte) (int, error) {
	if err := c.write(b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (c *channelConn) Close() error {
	close(c.in)
	return nil
}

func (c *channelConn) LocalAddr() net.Addr                { return channelAddr{} }
func (c *channelConn) RemoteAddr() net.Addr               { return channelAddr{} }
func (c *channelConn) SetDeadline(t time.Time) error      { return nil }
func (c *channelConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *channelConn) SetWriteDeadline(t time.Time) error { return nil }

type channelAddr struct{}

func (channelAddr) Network() string { return "udp" }
func (channelAddr) String() string  { return "session" }
