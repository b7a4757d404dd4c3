// internal/forward/agent.go
//
// Agent forwarding exposes the in-memory key registry to the remote side as
// an SSH agent. The host's agent policy decides whether each remote signing
// request needs an explicit confirmation.

package forward

import (
	"bytes"
	"crypto/rand"
	stderrors "errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"sshBridge/internal/auth"
	"sshBridge/internal/console"
	"sshBridge/internal/models"
	"sshBridge/internal/prompt"
)

// ErrAgentLocked is returned for operations attempted while the agent is
// locked.
var ErrAgentLocked = stderrors.New("agent is locked")

// RegistryAgent implements agent.Agent on top of the shared key registry.
type RegistryAgent struct {
	registry *auth.Registry
	prompts  *prompt.Broker
	sink     *console.Sink
	confirm  bool

	mu         sync.Mutex
	locked     bool
	passphrase []byte
}

// NewRegistryAgent builds the agent surface for one connection. policy is the
// host's UseAuthAgent setting; AuthAgentConfirm gates every remote signature
// behind a prompt.
func NewRegistryAgent(registry *auth.Registry, prompts *prompt.Broker, sink *console.Sink, policy string) *RegistryAgent {
	return &RegistryAgent{
		registry: registry,
		prompts:  prompts,
		sink:     sink,
		confirm:  policy == models.AuthAgentConfirm,
	}
}

// List returns the public keys of every unlocked registry entry. A locked
// agent reports an empty list, not an error, matching common agent behavior.
func (a *RegistryAgent) List() ([]*agent.Key, error) {
	a.mu.Lock()
	locked := a.locked
	a.mu.Unlock()
	if locked {
		return nil, nil
	}

	var keys []*agent.Key
	for _, holder := range a.registry.Snapshot() {
		pub := holder.Signer.PublicKey()
		keys = append(keys, &agent.Key{
			Format:  pub.Type(),
			Blob:    pub.Marshal(),
			Comment: holder.Pubkey.Nickname,
		})
	}
	return keys, nil
}

// Sign services a remote signature request against a registry key.
func (a *RegistryAgent) Sign(key ssh.PublicKey, data []byte) (*ssh.Signature, error) {
	a.mu.Lock()
	locked := a.locked
	a.mu.Unlock()
	if locked {
		return nil, ErrAgentLocked
	}

	blob := key.Marshal()
	nickname, ok := a.registry.NicknameForPublicKey(blob)
	if !ok {
		return nil, fmt.Errorf("agent: requested key is not available")
	}
	holder, ok := a.registry.Get(nickname)
	if !ok {
		return nil, fmt.Errorf("agent: requested key is not available")
	}

	if a.confirm {
		label := fmt.Sprintf("Allow remote host to use key '%s'?", nickname)
		confirmed, answered := a.prompts.RequestBoolean("", label)
		if !answered || !confirmed {
			a.sink.Linef("Denied agent signature with key '%s'", nickname)
			return nil, fmt.Errorf("agent: use of key '%s' was not confirmed", nickname)
		}
	}

	sig, err := holder.Signer.Sign(rand.Reader, data)
	if err != nil {
		return nil, fmt.Errorf("agent: signing with key '%s' failed: %w", nickname, err)
	}
	a.sink.Linef("Signed agent request with key '%s'", nickname)
	return sig, nil
}

// Add installs a key pushed by the remote side into the in-memory registry.
// Nothing is persisted.
func (a *RegistryAgent) Add(key agent.AddedKey) error {
	a.mu.Lock()
	locked := a.locked
	a.mu.Unlock()
	if locked {
		return ErrAgentLocked
	}

	signer, err := ssh.NewSignerFromKey(key.PrivateKey)
	if err != nil {
		return fmt.Errorf("agent: failed to build signer from added key: %w", err)
	}

	nickname := key.Comment
	if nickname == "" {
		nickname = fmt.Sprintf("agent-%s", ssh.FingerprintSHA256(signer.PublicKey()))
	}

	a.registry.Add(models.Pubkey{
		Nickname: nickname,
		Type:     signer.PublicKey().Type(),
		Source:   models.KeySourceImported,
	}, signer)
	a.sink.Linef("Agent added key '%s'", nickname)
	return nil
}

// Remove evicts the matching key from the registry.
func (a *RegistryAgent) Remove(key ssh.PublicKey) error {
	a.mu.Lock()
	locked := a.locked
	a.mu.Unlock()
	if locked {
		return ErrAgentLocked
	}

	if !a.registry.RemoveByPublicKey(key.Marshal()) {
		return fmt.Errorf("agent: requested key is not available")
	}
	return nil
}

// RemoveAll clears the registry.
func (a *RegistryAgent) RemoveAll() error {
	a.mu.Lock()
	locked := a.locked
	a.mu.Unlock()
	if locked {
		return ErrAgentLocked
	}

	a.registry.Clear()
	return nil
}

// Lock freezes the agent until Unlock is called with the same passphrase.
func (a *RegistryAgent) Lock(passphrase []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.locked {
		return ErrAgentLocked
	}
	a.locked = true
	a.passphrase = append([]byte(nil), passphrase...)
	return nil
}

// Unlock reverses Lock when the passphrase matches.
func (a *RegistryAgent) Unlock(passphrase []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.locked {
		return stderrors.New("agent is not locked")
	}
	if !bytes.Equal(a.passphrase, passphrase) {
		return stderrors.New("incorrect agent passphrase")
	}
	a.locked = false
	a.passphrase = nil
	return nil
}

// Signers exposes the unlocked registry signers.
func (a *RegistryAgent) Signers() ([]ssh.Signer, error) {
	a.mu.Lock()
	locked := a.locked
	a.mu.Unlock()
	if locked {
		return nil, ErrAgentLocked
	}

	var signers []ssh.Signer
	for _, holder := range a.registry.Snapshot() {
		signers = append(signers, holder.Signer)
	}
	return signers, nil
}

// ForwardAgent wires agent forwarding onto an established client and requests
// it for the session channel.
func ForwardAgent(client *ssh.Client, session *ssh.Session, keyring agent.Agent) error {
	if err := agent.ForwardToAgent(client, keyring); err != nil {
		return fmt.Errorf("failed to set up agent forwarding: %w", err)
	}
	if err := agent.RequestAgentForwarding(session); err != nil {
		return fmt.Errorf("failed to request agent forwarding: %w", err)
	}
	return nil
}
