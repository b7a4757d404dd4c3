package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"sshBridge/internal/models"
)

func testSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	return signer
}

func TestRegistryAddGetRemove(t *testing.T) {
	r := NewRegistry()
	signer := testSigner(t)

	r.Add(models.Pubkey{Nickname: "work"}, signer)

	holder, ok := r.Get("work")
	require.True(t, ok)
	assert.Equal(t, "work", holder.Pubkey.Nickname)
	assert.Equal(t, signer, holder.Signer)

	assert.True(t, r.Remove("work"))
	assert.False(t, r.Remove("work"), "removing a missing entry reports false")
	_, ok = r.Get("work")
	assert.False(t, ok)
}

func TestRegistryLookupByPublicKey(t *testing.T) {
	r := NewRegistry()
	signer := testSigner(t)
	other := testSigner(t)
	r.Add(models.Pubkey{Nickname: "mine"}, signer)

	nickname, ok := r.NicknameForPublicKey(signer.PublicKey().Marshal())
	require.True(t, ok)
	assert.Equal(t, "mine", nickname)

	_, ok = r.NicknameForPublicKey(other.PublicKey().Marshal())
	assert.False(t, ok)

	assert.True(t, r.RemoveByPublicKey(signer.PublicKey().Marshal()))
	assert.Zero(t, r.Len())
}

func TestRegistrySnapshotIsSorted(t *testing.T) {
	r := NewRegistry()
	r.Add(models.Pubkey{Nickname: "zulu"}, testSigner(t))
	r.Add(models.Pubkey{Nickname: "alpha"}, testSigner(t))
	r.Add(models.Pubkey{Nickname: "mike"}, testSigner(t))

	snapshot := r.Snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, "alpha", snapshot[0].Pubkey.Nickname)
	assert.Equal(t, "mike", snapshot[1].Pubkey.Nickname)
	assert.Equal(t, "zulu", snapshot[2].Pubkey.Nickname)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	signer := testSigner(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			nick := string(rune('a' + n))
			r.Add(models.Pubkey{Nickname: nick}, signer)
			r.Get(nick)
			r.Snapshot()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, r.Len())
	r.Clear()
	assert.Zero(t, r.Len())
}
