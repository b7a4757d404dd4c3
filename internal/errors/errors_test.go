package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsKindDirect(t *testing.T) {
	err := Newf(TrustRejected, "host key for %s was rejected", "example.com")
	assert.True(t, IsKind(err, TrustRejected))
	assert.False(t, IsKind(err, AuthExhausted))
	assert.False(t, IsKind(nil, TrustRejected))
}

func TestIsKindThroughWrapping(t *testing.T) {
	inner := Newf(ChainLinkFailure, "jump host unreachable")
	wrapped := fmt.Errorf("connecting: %w", fmt.Errorf("chain: %w", inner))

	assert.True(t, IsKind(wrapped, ChainLinkFailure))
	assert.False(t, IsKind(wrapped, TransportLost))
}

func TestIsKindStopsAtForeignErrors(t *testing.T) {
	err := fmt.Errorf("plain failure")
	assert.False(t, IsKind(err, TransportLost))
}

func TestErrorStringIncludesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := New(TransportLost, "failed to reach example.com:22", cause)

	assert.Equal(t, "failed to reach example.com:22: connection refused", err.Error())
	assert.Equal(t, cause, stderrors.Unwrap(err))

	bare := Newf(AuthExhausted, "no methods left")
	assert.Equal(t, "no methods left", bare.Error())
}

func TestIsMatchesByKind(t *testing.T) {
	err := New(AuthExhausted, "server closed after 20 tries", stderrors.New("ssh: handshake failed"))

	assert.True(t, stderrors.Is(err, &ConnError{Kind: AuthExhausted}))
	assert.False(t, stderrors.Is(err, &ConnError{Kind: TrustRejected}))
}

func TestKindStrings(t *testing.T) {
	require.Equal(t, "trust rejected", TrustRejected.String())
	require.Equal(t, "transport lost", TransportLost.String())
	assert.Contains(t, Kind(99).String(), "kind(99)")
}
