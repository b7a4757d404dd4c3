// internal/errors/errors.go

package errors

import "fmt"

// Kind classifies connection failures so callers can distinguish "try the
// next method" from "abort everything".
type Kind int

const (
	// TrustRejected: host key verification failed or was declined by the
	// user. Fatal for the connection attempt, never retried automatically.
	TrustRejected Kind = iota

	// AuthExhausted: every advertised method failed or the retry bound was
	// reached. Fatal.
	AuthExhausted

	// CredentialUnavailable: a key or secret could not be resolved or
	// decrypted. The affected method fails, the engine continues.
	CredentialUnavailable

	// HardwareKeyInvalidated: a keystore-backed key is permanently unusable.
	// The key is skipped, other credentials may still be tried.
	HardwareKeyInvalidated

	// ChainLinkFailure: a jump-host link failed to connect, verify or
	// authenticate. Fatal for the whole chain.
	ChainLinkFailure

	// TransportLost: the underlying connection dropped unexpectedly.
	TransportLost

	// ForwardSetupFailure: a single port forward failed to enable. The
	// session and the other forwards proceed.
	ForwardSetupFailure
)

var kindNames = map[Kind]string{
	TrustRejected:          "trust rejected",
	AuthExhausted:          "authentication exhausted",
	CredentialUnavailable:  "credential unavailable",
	HardwareKeyInvalidated: "hardware key invalidated",
	ChainLinkFailure:       "chain link failure",
	TransportLost:          "transport lost",
	ForwardSetupFailure:    "forward setup failure",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ConnError is the error type crossing component boundaries.
type ConnError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *ConnError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ConnError) Unwrap() error { return e.Err }

// Is matches two ConnErrors by kind, so errors.Is(err, &ConnError{Kind: k})
// style sentinels work.
func (e *ConnError) Is(target error) bool {
	t, ok := target.(*ConnError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds a ConnError.
func New(kind Kind, message string, err error) *ConnError {
	return &ConnError{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Newf builds a ConnError with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *ConnError {
	return &ConnError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsKind reports whether err is a ConnError of the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if ce, ok := err.(*ConnError); ok && ce.Kind == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
