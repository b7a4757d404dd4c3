package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundtrip(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	require.Len(t, salt, SaltSize)

	cipher := NewCipher("master-passphrase", salt)

	encrypted, err := cipher.Encrypt("s3cret-value")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-value", encrypted)

	decrypted, err := cipher.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "s3cret-value", decrypted)
}

func TestDecryptWithWrongPassphraseFails(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)

	encrypted, err := NewCipher("right", salt).Encrypt("payload")
	require.NoError(t, err)

	_, err = NewCipher("wrong", salt).Decrypt(encrypted)
	assert.Error(t, err)
}

func TestDecryptWithDifferentSaltFails(t *testing.T) {
	saltA, err := NewSalt()
	require.NoError(t, err)
	saltB, err := NewSalt()
	require.NoError(t, err)
	require.NotEqual(t, saltA, saltB)

	encrypted, err := NewCipher("pass", saltA).Encrypt("payload")
	require.NoError(t, err)

	_, err = NewCipher("pass", saltB).Decrypt(encrypted)
	assert.Error(t, err)
}

func TestEncryptBytesProducesFreshNonce(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	cipher := NewCipher("pass", salt)

	first, err := cipher.EncryptBytes([]byte("same input"))
	require.NoError(t, err)
	second, err := cipher.EncryptBytes([]byte("same input"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}
