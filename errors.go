package whip

import (
	"fmt"

	"github.com/pkg/errors"
)

// FailureKind classifies an Error against spec §7's error taxonomy, so
// callers can decide what's fatal without string-matching messages.
type FailureKind int

const (
	// FailureConfiguration covers invalid Config values, caught at
	// construction time. Always fatal.
	FailureConfiguration FailureKind = iota

	// FailureSignaling covers WHIP POST failures (non-2xx, answer body not
	// starting with v=, answer missing ICE credentials or a usable host
	// candidate). Always fatal. A missing Location is not an error.
	FailureSignaling

	// FailureHandshake covers STUN/DTLS handshake problems. A dropped
	// malformed STUN request is not reported this way (it is logged and
	// dropped); a handshake timeout or fatal DTLS alert is.
	FailureHandshake

	// FailureTransport covers UDP write errors and a DTLS close_notify
	// observed on a later write attempt.
	FailureTransport

	// FailurePacketization covers malformed outbound RTP packets and SRTP
	// encryption errors on the send path. Oversize packets are logged and
	// dropped without an error.
	FailurePacketization
)

func (k FailureKind) String() string {
	switch k {
	case FailureConfiguration:
		return "configuration"
	case FailureSignaling:
		return "signaling"
	case FailureHandshake:
		return "handshake"
	case FailureTransport:
		return "transport"
	case FailurePacketization:
		return "packetization"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with the FailureKind that drove the
// session into FAILED, per spec §4.1's single terminal-failure state.
type Error struct {
	Kind  FailureKind
	cause error
}

func newError(kind FailureKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, cause: errors.Errorf(format, args...)}
}

func wrapError(kind FailureKind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, cause: errors.Wrapf(cause, format, args...)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.cause)
}

func (e *Error) Unwrap() error {
	return e.cause
}
