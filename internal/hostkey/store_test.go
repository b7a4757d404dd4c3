package hostkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"sshBridge/internal/models"
)

func testKeyBytes(t *testing.T) (string, []byte) {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return sshPub.Type(), sshPub.Marshal()
}

func TestFileStoreRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ssh", "known_hosts")
	store := NewFileStore(path)
	id := models.HostIdentity{Hostname: "example.com", Port: 2222}

	algo, keyBytes := testKeyBytes(t)
	require.NoError(t, store.Add(Record{Identity: id, Algorithm: algo, KeyBytes: keyBytes}))

	records, err := store.Lookup(id)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].Identity)
	assert.Equal(t, algo, records[0].Algorithm)
	assert.Equal(t, keyBytes, records[0].KeyBytes)

	// A second store on the same file sees the persisted record.
	again, err := NewFileStore(path).Lookup(id)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, keyBytes, again[0].KeyBytes)
}

func TestFileStoreDefaultPortForm(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known_hosts")
	store := NewFileStore(path)
	id := models.HostIdentity{Hostname: "plain.example.com", Port: models.DefaultSSHPort}

	algo, keyBytes := testKeyBytes(t)
	require.NoError(t, store.Add(Record{Identity: id, Algorithm: algo, KeyBytes: keyBytes}))

	records, err := store.Lookup(id)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].Identity)
}

func TestFileStoreAddReplacesSameAlgorithm(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known_hosts")
	store := NewFileStore(path)
	id := models.HostIdentity{Hostname: "rotate.example.com", Port: 22}

	algo, oldKey := testKeyBytes(t)
	_, newKey := testKeyBytes(t)
	require.NoError(t, store.Add(Record{Identity: id, Algorithm: algo, KeyBytes: oldKey}))
	require.NoError(t, store.Add(Record{Identity: id, Algorithm: algo, KeyBytes: newKey}))

	records, err := store.Lookup(id)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, newKey, records[0].KeyBytes)
}

func TestFileStoreRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known_hosts")
	store := NewFileStore(path)
	id := models.HostIdentity{Hostname: "gone.example.com", Port: 22}

	algo, keyBytes := testKeyBytes(t)
	require.NoError(t, store.Add(Record{Identity: id, Algorithm: algo, KeyBytes: keyBytes}))
	require.NoError(t, store.Remove(id, algo, keyBytes))

	records, err := store.Lookup(id)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestKnownAlgorithms(t *testing.T) {
	store := NewMemStore()
	id := models.HostIdentity{Hostname: "algo.example.com", Port: 22}
	other := models.HostIdentity{Hostname: "other.example.com", Port: 22}

	algo, keyBytes := testKeyBytes(t)
	require.NoError(t, store.Add(Record{Identity: id, Algorithm: algo, KeyBytes: keyBytes}))

	algos, err := store.KnownAlgorithms(id)
	require.NoError(t, err)
	assert.Equal(t, []string{algo}, algos)

	none, err := store.KnownAlgorithms(other)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestParseHostPattern(t *testing.T) {
	id, ok := parseHostPattern("[example.com]:2222")
	require.True(t, ok)
	assert.Equal(t, models.HostIdentity{Hostname: "example.com", Port: 2222}, id)

	id, ok = parseHostPattern("example.com")
	require.True(t, ok)
	assert.Equal(t, models.HostIdentity{Hostname: "example.com", Port: 22}, id)

	_, ok = parseHostPattern("[broken")
	assert.False(t, ok)
}
