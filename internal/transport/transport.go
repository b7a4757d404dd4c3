// internal/transport/transport.go
//
// Transport is the capability surface a connected endpoint exposes to the
// surrounding application. SessionTransport is the SSH variant; protocol
// state lives inside the variant, never in shared base fields.

package transport

import (
	"context"
	"io"

	"sshBridge/internal/forward"
)

// ConnState tracks the connection lifecycle.
type ConnState int

const (
	StateIdle ConnState = iota
	StateConnecting
	StateJumpResolving
	StateHostKeyPending
	StateAuthenticating
	StateAuthenticated
	StateSessionOpen
	StateClosed
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateJumpResolving:
		return "jump-resolving"
	case StateHostKeyPending:
		return "hostkey-pending"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateSessionOpen:
		return "session-open"
	case StateClosed:
		return "closed"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ConnectionInfo carries the negotiated parameters surfaced for diagnostics.
// Produced once per successful handshake, read-only afterwards.
type ConnectionInfo struct {
	ServerVersion      string
	HostKeyAlgorithm   string
	HostKeyFingerprint string
}

// Transport is the protocol-independent connection capability.
type Transport interface {
	// Connect establishes and authenticates the connection, opening the
	// interactive session when the host wants one.
	Connect(ctx context.Context) error

	// Write sends bytes to the interactive session's stdin.
	Write(p []byte) (int, error)

	// Reader streams the interactive session's output.
	Reader() io.Reader

	// Resize updates the remote PTY dimensions. Calls before the session is
	// open are cached, not errors.
	Resize(cols, rows, width, height int) error

	// Forwards exposes port-forward control.
	Forwards() *forward.Multiplexer

	// Close tears the connection down. Idempotent.
	Close() error
}
