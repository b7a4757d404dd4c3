// internal/auth/hardware.go
//
// Hardware-backed keys expose only a signing capability; every use may be
// gated by a biometric confirmation depending on the key's Confirmation
// flag. A key invalidated at the OS level (credential change wiped the
// secure-hardware key) is permanently unusable and must say so explicitly.

package auth

import (
	stderrors "errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/ssh"

	"sshBridge/internal/console"
	"sshBridge/internal/prompt"
)

// ErrKeyInvalidated marks a keystore-backed key that was permanently
// invalidated by the secure hardware.
var ErrKeyInvalidated = stderrors.New("hardware key permanently invalidated")

// ErrConfirmationDeclined marks a biometric gate the operator declined.
var ErrConfirmationDeclined = stderrors.New("key use not confirmed")

// HardwareSigner is the raw secure-hardware signing capability.
type HardwareSigner interface {
	PublicKey() ssh.PublicKey
	// Sign produces a signature over data. Returns ErrKeyInvalidated
	// (possibly wrapped) when the underlying key is gone for good.
	Sign(rand io.Reader, data []byte) (*ssh.Signature, error)
}

// GatedSigner adapts a HardwareSigner to ssh.Signer and enforces the
// biometric confirmation policy. With confirmEach set, every signature asks
// again; otherwise one successful confirmation covers the session.
type GatedSigner struct {
	nickname    string
	hw          HardwareSigner
	prompts     *prompt.Broker
	sink        *console.Sink
	confirmEach bool

	// The signer lives in the process-wide registry and may be used by
	// concurrent transports; the mutex also collapses simultaneous
	// confirmation prompts into one.
	mu        sync.Mutex
	confirmed bool
}

// NewGatedSigner wraps a hardware capability for use as an ssh.Signer.
func NewGatedSigner(nickname string, hw HardwareSigner, prompts *prompt.Broker, sink *console.Sink, confirmEach bool) *GatedSigner {
	return &GatedSigner{
		nickname:    nickname,
		hw:          hw,
		prompts:     prompts,
		sink:        sink,
		confirmEach: confirmEach,
	}
}

// PublicKey implements ssh.Signer.
func (g *GatedSigner) PublicKey() ssh.PublicKey { return g.hw.PublicKey() }

// Sign implements ssh.Signer.
func (g *GatedSigner) Sign(rand io.Reader, data []byte) (*ssh.Signature, error) {
	if err := g.ensureConfirmed(); err != nil {
		return nil, err
	}

	sig, err := g.hw.Sign(rand, data)
	if err != nil {
		if stderrors.Is(err, ErrKeyInvalidated) {
			// Distinct message: the key cannot ever work again, unlike a
			// generic auth failure.
			g.sink.Linef("Key '%s' was invalidated by the device keystore and can no longer be used. Generate or import a replacement key.", g.nickname)
		}
		return nil, fmt.Errorf("hardware signing with key '%s' failed: %w", g.nickname, err)
	}
	return sig, nil
}

func (g *GatedSigner) ensureConfirmed() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.confirmEach && g.confirmed {
		return nil
	}
	label := fmt.Sprintf("Confirm use of key '%s'", g.nickname)
	if !g.prompts.RequestBiometric(label, g.nickname) {
		return fmt.Errorf("key '%s': %w", g.nickname, ErrConfirmationDeclined)
	}
	g.confirmed = true
	return nil
}
