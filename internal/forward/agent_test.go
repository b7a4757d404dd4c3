package forward

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"sshBridge/internal/auth"
	"sshBridge/internal/console"
	"sshBridge/internal/models"
	"sshBridge/internal/prompt"
)

func agentTestSigner(t *testing.T) (ssh.Signer, ed25519.PrivateKey) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	return signer, priv
}

// answerPrompts resolves every broker request with the given response.
func answerPrompts(t *testing.T, broker *prompt.Broker, resp prompt.Response) {
	t.Helper()
	go func() {
		for {
			select {
			case req := <-broker.Requests():
				req.Answer(resp)
			case <-broker.Done():
				return
			}
		}
	}()
}

func newTestAgent(t *testing.T, policy string, resp prompt.Response) (*RegistryAgent, *auth.Registry, *bytes.Buffer) {
	t.Helper()
	broker := prompt.NewBroker()
	t.Cleanup(broker.Close)
	answerPrompts(t, broker, resp)

	registry := auth.NewRegistry()
	out := &bytes.Buffer{}
	return NewRegistryAgent(registry, broker, console.NewSink(out), policy), registry, out
}

func TestAgentListReflectsRegistry(t *testing.T) {
	keyring, registry, _ := newTestAgent(t, models.AuthAgentYes, prompt.Response{})

	keys, err := keyring.List()
	require.NoError(t, err)
	assert.Empty(t, keys)

	signer, _ := agentTestSigner(t)
	registry.Add(models.Pubkey{Nickname: "work"}, signer)

	keys, err = keyring.List()
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "work", keys[0].Comment)
	assert.Equal(t, signer.PublicKey().Marshal(), keys[0].Blob)
}

func TestAgentSignWithKnownKey(t *testing.T) {
	keyring, registry, out := newTestAgent(t, models.AuthAgentYes, prompt.Response{})
	signer, _ := agentTestSigner(t)
	registry.Add(models.Pubkey{Nickname: "work"}, signer)

	data := []byte("channel data to sign")
	sig, err := keyring.Sign(signer.PublicKey(), data)
	require.NoError(t, err)
	require.NoError(t, signer.PublicKey().Verify(data, sig))
	assert.Contains(t, out.String(), "Signed agent request with key 'work'")
}

func TestAgentSignWithECDSAKey(t *testing.T) {
	keyring, registry, _ := newTestAgent(t, models.AuthAgentYes, prompt.Response{})

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	registry.Add(models.Pubkey{Nickname: "ec"}, signer)

	// ECDSA signing reads from the rand source; a nil reader would panic.
	data := []byte("channel data to sign")
	sig, err := keyring.Sign(signer.PublicKey(), data)
	require.NoError(t, err)
	require.NoError(t, signer.PublicKey().Verify(data, sig))
}

func TestAgentSignUnknownKey(t *testing.T) {
	keyring, _, _ := newTestAgent(t, models.AuthAgentYes, prompt.Response{})
	signer, _ := agentTestSigner(t)

	_, err := keyring.Sign(signer.PublicKey(), []byte("data"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not available")
}

func TestAgentSignConfirmPolicy(t *testing.T) {
	confirmed, registry, _ := newTestAgent(t, models.AuthAgentConfirm, prompt.Response{Answered: true, Confirmed: true})
	signer, _ := agentTestSigner(t)
	registry.Add(models.Pubkey{Nickname: "guarded"}, signer)

	_, err := confirmed.Sign(signer.PublicKey(), []byte("data"))
	assert.NoError(t, err)

	declined, registry2, out := newTestAgent(t, models.AuthAgentConfirm, prompt.Response{Answered: true, Confirmed: false})
	registry2.Add(models.Pubkey{Nickname: "guarded"}, signer)

	_, err = declined.Sign(signer.PublicKey(), []byte("data"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not confirmed")
	assert.Contains(t, out.String(), "Denied agent signature")
}

func TestAgentAddUsesCommentOrFingerprint(t *testing.T) {
	keyring, registry, _ := newTestAgent(t, models.AuthAgentYes, prompt.Response{})
	_, priv := agentTestSigner(t)

	require.NoError(t, keyring.Add(agent.AddedKey{PrivateKey: priv, Comment: "pushed"}))
	_, ok := registry.Get("pushed")
	assert.True(t, ok)

	_, priv2 := agentTestSigner(t)
	require.NoError(t, keyring.Add(agent.AddedKey{PrivateKey: priv2}))

	var fallback bool
	for _, holder := range registry.Snapshot() {
		if holder.Pubkey.Nickname != "pushed" {
			assert.Contains(t, holder.Pubkey.Nickname, "agent-SHA256:")
			fallback = true
		}
	}
	assert.True(t, fallback, "a comment-less key gets a fingerprint nickname")
}

func TestAgentRemove(t *testing.T) {
	keyring, registry, _ := newTestAgent(t, models.AuthAgentYes, prompt.Response{})
	signer, _ := agentTestSigner(t)
	registry.Add(models.Pubkey{Nickname: "gone"}, signer)

	require.NoError(t, keyring.Remove(signer.PublicKey()))
	assert.Zero(t, registry.Len())
	assert.Error(t, keyring.Remove(signer.PublicKey()))
}

func TestAgentRemoveAll(t *testing.T) {
	keyring, registry, _ := newTestAgent(t, models.AuthAgentYes, prompt.Response{})
	signer, _ := agentTestSigner(t)
	registry.Add(models.Pubkey{Nickname: "a"}, signer)

	require.NoError(t, keyring.RemoveAll())
	assert.Zero(t, registry.Len())
}

func TestAgentLockBlocksOperations(t *testing.T) {
	keyring, registry, _ := newTestAgent(t, models.AuthAgentYes, prompt.Response{})
	signer, priv := agentTestSigner(t)
	registry.Add(models.Pubkey{Nickname: "work"}, signer)

	require.NoError(t, keyring.Lock([]byte("secret")))

	keys, err := keyring.List()
	require.NoError(t, err, "a locked agent lists nothing, not an error")
	assert.Empty(t, keys)

	_, err = keyring.Sign(signer.PublicKey(), []byte("data"))
	assert.ErrorIs(t, err, ErrAgentLocked)
	assert.ErrorIs(t, keyring.Add(agent.AddedKey{PrivateKey: priv}), ErrAgentLocked)
	assert.ErrorIs(t, keyring.Remove(signer.PublicKey()), ErrAgentLocked)
	assert.ErrorIs(t, keyring.RemoveAll(), ErrAgentLocked)

	_, err = keyring.Signers()
	assert.ErrorIs(t, err, ErrAgentLocked)

	assert.Error(t, keyring.Unlock([]byte("wrong")))
	require.NoError(t, keyring.Unlock([]byte("secret")))

	keys, err = keyring.List()
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestAgentUnlockWhenNotLocked(t *testing.T) {
	keyring, _, _ := newTestAgent(t, models.AuthAgentYes, prompt.Response{})
	assert.Error(t, keyring.Unlock([]byte("anything")))
}
