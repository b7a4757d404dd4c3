// internal/auth/engine.go
//
// Client authentication engine. Methods are offered to the SSH library in a
// fixed priority order (publickey, then keyboard-interactive, then password)
// and the library intersects that order with what the server advertises after
// the opportunistic "none" attempt. Per-attempt state lives in the engine
// instance, which is created fresh for every connection attempt.

package auth

import (
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"sshBridge/internal/console"
	"sshBridge/internal/models"
	"sshBridge/internal/prompt"
)

const (
	// MaxAuthTries bounds retries of the interactive methods within one
	// connection attempt. Carried over from the previous client behaviour;
	// a tuning choice, not a protocol requirement.
	MaxAuthTries = 20

	// authRetryDelay spaces repeated attempts so a failing loop does not
	// hammer the server.
	authRetryDelay = time.Second
)

// ErrPromptCanceled reports that the operator dismissed a password or
// keyboard-interactive prompt, ending the interactive attempt.
var ErrPromptCanceled = stderrors.New("authentication prompt canceled")

// SecretStore supplies the saved login secret for a host, consulted at most
// once per connection attempt.
type SecretStore interface {
	GetPassword(id models.HostIdentity) (string, bool)
}

// Engine drives authentication for a single connection attempt.
type Engine struct {
	host     *models.Host
	creds    CredentialSource
	secrets  SecretStore
	registry *Registry
	prompts  *prompt.Broker
	sink     *console.Sink

	mu               sync.Mutex
	pubkeysExhausted bool
	savedSecretUsed  bool
	attempts         int
}

// NewEngine builds an engine for one attempt against host. secrets may be
// nil when no saved-secret store is configured.
func NewEngine(host *models.Host, creds CredentialSource, secrets SecretStore, registry *Registry, prompts *prompt.Broker, sink *console.Sink) *Engine {
	return &Engine{
		host:     host,
		creds:    creds,
		secrets:  secrets,
		registry: registry,
		prompts:  prompts,
		sink:     sink,
	}
}

// MethodNames lists the methods the engine will offer, in priority order.
func (e *Engine) MethodNames() []string {
	names := make([]string, 0, 3)
	if e.host.PubkeyID != models.PubkeyNever {
		names = append(names, "publickey")
	}
	names = append(names, "keyboard-interactive", "password")
	return names
}

// Methods assembles the ssh.AuthMethod list in priority order. A host key
// policy of "never" produces no publickey method at all.
func (e *Engine) Methods() []ssh.AuthMethod {
	var methods []ssh.AuthMethod
	if e.host.PubkeyID != models.PubkeyNever {
		methods = append(methods, ssh.PublicKeysCallback(e.publicKeySigners))
	}
	methods = append(methods,
		ssh.RetryableAuthMethod(ssh.KeyboardInteractive(e.keyboardInteractive), MaxAuthTries),
		ssh.RetryableAuthMethod(ssh.PasswordCallback(e.passwordPrompt), MaxAuthTries),
	)
	return methods
}

// pause sleeps between repeated attempts of the same method.
func (e *Engine) pause() {
	e.mu.Lock()
	attempts := e.attempts
	e.attempts++
	e.mu.Unlock()

	if attempts > 0 {
		time.Sleep(authRetryDelay)
	}
}

// trySavedSecret returns the saved secret for this host if one exists and
// has not been consumed during this connection attempt. It is consumed at
// most once regardless of how many prompts appear.
func (e *Engine) trySavedSecret() (string, bool) {
	if e.secrets == nil {
		return "", false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.savedSecretUsed {
		return "", false
	}
	secret, ok := e.secrets.GetPassword(e.host.Identity)
	if !ok {
		return "", false
	}
	e.savedSecretUsed = true
	return secret, true
}

// publicKeySigners produces the candidate signers for the publickey method.
// The first call collects everything eligible under the host's key policy;
// once exhausted the method yields nothing more for this attempt, even if
// the server re-advertises it.
func (e *Engine) publicKeySigners() ([]ssh.Signer, error) {
	e.mu.Lock()
	if e.pubkeysExhausted {
		e.mu.Unlock()
		return nil, nil
	}
	e.pubkeysExhausted = true
	e.mu.Unlock()

	if e.host.PubkeyID == models.PubkeyAny {
		return e.anyKeySigners(), nil
	}
	return e.specificKeySigners(), nil
}

// anyKeySigners iterates every key currently unlocked in the registry,
// honoring per-key confirmation.
func (e *Engine) anyKeySigners() []ssh.Signer {
	e.sink.Linef("Attempting 'publickey' authentication with any in-memory key")

	var signers []ssh.Signer
	for _, holder := range e.registry.Snapshot() {
		if holder.Pubkey.Confirmation && !e.confirmKeyUse(holder.Pubkey.Nickname) {
			continue
		}
		signers = append(signers, holder.Signer)
	}
	if len(signers) == 0 {
		e.sink.Linef("No unlocked keys available for 'publickey' authentication")
	}
	return signers
}

// specificKeySigners resolves the single key configured for this host,
// unlocking it if needed and caching the result for the process lifetime.
func (e *Engine) specificKeySigners() []ssh.Signer {
	nickname := e.host.PubkeyID
	e.sink.Linef("Attempting 'publickey' authentication with key '%s'", nickname)

	if holder, ok := e.registry.Get(nickname); ok {
		if holder.Pubkey.Confirmation && !e.confirmKeyUse(nickname) {
			return nil
		}
		return []ssh.Signer{holder.Signer}
	}

	pubkey, err := e.creds.ResolveByIdentifier(nickname)
	if err != nil || pubkey == nil {
		e.sink.Linef("Selected key '%s' could not be found", nickname)
		return nil
	}

	if pubkey.IsHardwareBacked() {
		hw, err := e.creds.HardwareSigner(pubkey)
		if err != nil {
			e.sink.Linef("Key '%s' is unavailable: %v", nickname, err)
			return nil
		}
		signer := NewGatedSigner(nickname, hw, e.prompts, e.sink, pubkey.Confirmation)
		e.registry.Add(*pubkey, signer)
		return []ssh.Signer{signer}
	}

	var passphrase string
	if pubkey.Encrypted {
		label := fmt.Sprintf("Passphrase for key '%s'", nickname)
		text, answered := e.prompts.RequestString("", label, true)
		if !answered {
			// A dismissed passphrase prompt skips this method only.
			e.sink.Linef("Passphrase entry for key '%s' canceled", nickname)
			return nil
		}
		passphrase = text
	}

	signer, err := DecodeSigner(pubkey, passphrase)
	if err != nil {
		e.sink.Linef("Bad passphrase for key '%s'. Authentication failed.", nickname)
		return nil
	}

	e.registry.Add(*pubkey, signer)
	return []ssh.Signer{signer}
}

func (e *Engine) confirmKeyUse(nickname string) bool {
	label := fmt.Sprintf("Allow use of key '%s'?", nickname)
	ok, answered := e.prompts.RequestBoolean("", label)
	return answered && ok
}

// keyboardInteractive answers a server challenge round. Non-echoing prompts
// are answered from the saved secret when one is available and untried this
// attempt; everything else goes to the operator.
func (e *Engine) keyboardInteractive(name, instruction string, questions []string, echos []bool) ([]string, error) {
	if len(questions) != len(echos) {
		return nil, fmt.Errorf("malformed keyboard-interactive challenge: %d questions, %d echo flags", len(questions), len(echos))
	}
	if len(questions) > 0 {
		e.pause()
		e.sink.Linef("Trying 'keyboard-interactive' authentication")
	}

	answers := make([]string, len(questions))
	for i, question := range questions {
		secret := !echos[i]

		if secret {
			if saved, ok := e.trySavedSecret(); ok {
				answers[i] = saved
				continue
			}
		}

		text, answered := e.prompts.RequestString(instruction, question, secret)
		if !answered {
			return nil, fmt.Errorf("keyboard-interactive: %w", ErrPromptCanceled)
		}
		answers[i] = text
	}
	return answers, nil
}

// passwordPrompt supplies the password method: saved secret first (once per
// attempt), then the operator.
func (e *Engine) passwordPrompt() (string, error) {
	e.pause()

	if saved, ok := e.trySavedSecret(); ok {
		e.sink.Linef("Trying 'password' authentication with saved password")
		return saved, nil
	}

	e.sink.Linef("Trying 'password' authentication")
	text, answered := e.prompts.RequestString("", "Password", true)
	if !answered {
		return "", fmt.Errorf("password: %w", ErrPromptCanceled)
	}
	return text, nil
}
