// internal/crypto/crypto.go
//
// Encryption of data at rest (private key blobs, saved passwords) using
// AES-256-GCM with a PBKDF2-derived key.

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32

	// SaltSize is the PBKDF2 salt length in bytes.
	SaltSize = 16

	pbkdf2Iterations = 4096
)

// Cipher is an AES-256-GCM cipher bound to a passphrase-derived key.
type Cipher struct {
	key []byte
}

// NewCipher derives a cipher key from the passphrase and salt.
func NewCipher(passphrase string, salt []byte) *Cipher {
	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, KeySize, sha256.New)
	return &Cipher{key: key}
}

// NewSalt generates a fresh random salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// Encrypt seals plaintext and returns hex(nonce || ciphertext).
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	sealed, err := c.EncryptBytes([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sealed), nil
}

// EncryptBytes seals plaintext and returns nonce || ciphertext.
func (c *Cipher) EncryptBytes(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aesGCM.Seal(nil, nonce, plaintext, nil)

	combined := make([]byte, len(nonce)+len(sealed))
	copy(combined, nonce)
	copy(combined[len(nonce):], sealed)
	return combined, nil
}

// Decrypt opens a hex(nonce || ciphertext) string produced by Encrypt.
func (c *Cipher) Decrypt(encryptedHex string) (string, error) {
	combined, err := hex.DecodeString(encryptedHex)
	if err != nil {
		return "", fmt.Errorf("failed to decode hex: %w", err)
	}
	plaintext, err := c.DecryptBytes(combined)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// DecryptBytes opens nonce || ciphertext produced by EncryptBytes. A wrong
// passphrase fails the GCM tag check and returns an error.
func (c *Cipher) DecryptBytes(combined []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := aesGCM.NonceSize()
	if len(combined) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce := combined[:nonceSize]
	ciphertext := combined[nonceSize:]

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}
