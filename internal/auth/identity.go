// internal/auth/identity.go

package auth

import (
	stderrors "errors"
	"fmt"

	"golang.org/x/crypto/ssh"

	"sshBridge/internal/console"
	"sshBridge/internal/crypto"
	"sshBridge/internal/models"
)

// CredentialSource resolves stored key records. The on-device encrypted
// store implements it; tests use fakes.
type CredentialSource interface {
	// ResolveByIdentifier looks up one key record by nickname. A nil record
	// with a nil error means the identifier is unknown.
	ResolveByIdentifier(id string) (*models.Pubkey, error)

	// ResolveAllCached lists records eligible for the "any key" policy,
	// typically preloaded into the registry at startup.
	ResolveAllCached() ([]*models.Pubkey, error)

	// HardwareSigner returns the signing capability for a keystore-backed
	// record. The private key never leaves the secure hardware.
	HardwareSigner(pubkey *models.Pubkey) (HardwareSigner, error)
}

// DecodeSigner turns a software key record into an ssh.Signer. Generated
// keys use the internal format (salt || AES-GCM sealed PEM, see EncodeKey);
// imported keys are plain PEM, optionally passphrase-protected.
func DecodeSigner(pubkey *models.Pubkey, passphrase string) (ssh.Signer, error) {
	if pubkey.IsHardwareBacked() {
		return nil, fmt.Errorf("key '%s' is hardware-backed and cannot be decoded", pubkey.Nickname)
	}

	switch pubkey.Source {
	case models.KeySourceImported:
		if !pubkey.Encrypted {
			signer, err := ssh.ParsePrivateKey(pubkey.PrivateKey)
			if err != nil {
				return nil, fmt.Errorf("failed to parse imported key '%s': %w", pubkey.Nickname, err)
			}
			return signer, nil
		}
		signer, err := ssh.ParsePrivateKeyWithPassphrase(pubkey.PrivateKey, []byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt imported key '%s': %w", pubkey.Nickname, err)
		}
		return signer, nil

	case models.KeySourceGenerated:
		pemBytes := pubkey.PrivateKey
		if pubkey.Encrypted {
			var err error
			pemBytes, err = decodeSealedKey(pubkey.PrivateKey, passphrase)
			if err != nil {
				return nil, fmt.Errorf("failed to decrypt key '%s': %w", pubkey.Nickname, err)
			}
		}
		signer, err := ssh.ParsePrivateKey(pemBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse key '%s': %w", pubkey.Nickname, err)
		}
		return signer, nil

	default:
		return nil, fmt.Errorf("unknown key source %q for '%s'", pubkey.Source, pubkey.Nickname)
	}
}

// EncodeKey seals PEM-encoded private key material in the internal format:
// salt || nonce || ciphertext.
func EncodeKey(pemBytes []byte, passphrase string) ([]byte, error) {
	salt, err := crypto.NewSalt()
	if err != nil {
		return nil, err
	}
	cipher := crypto.NewCipher(passphrase, salt)
	sealed, err := cipher.EncryptBytes(pemBytes)
	if err != nil {
		return nil, err
	}
	return append(salt, sealed...), nil
}

func decodeSealedKey(blob []byte, passphrase string) ([]byte, error) {
	if len(blob) <= crypto.SaltSize {
		return nil, stderrors.New("sealed key blob too short")
	}
	cipher := crypto.NewCipher(passphrase, blob[:crypto.SaltSize])
	return cipher.DecryptBytes(blob[crypto.SaltSize:])
}

// PreloadRegistry decodes every stored software key that needs no passphrase
// and caches it, making them available to the "any key" policy before a
// connection starts. Passphrase-protected and hardware-backed keys stay
// on-demand; a record that fails to decode is reported and skipped.
func PreloadRegistry(registry *Registry, creds CredentialSource, sink *console.Sink) error {
	records, err := creds.ResolveAllCached()
	if err != nil {
		return fmt.Errorf("failed to list stored keys: %w", err)
	}

	for _, record := range records {
		if record.IsHardwareBacked() || record.Encrypted {
			continue
		}
		if _, ok := registry.Get(record.Nickname); ok {
			continue
		}
		signer, err := DecodeSigner(record, "")
		if err != nil {
			sink.Linef("Could not load key '%s': %v", record.Nickname, err)
			continue
		}
		registry.Add(*record, signer)
	}
	return nil
}

// IsPassphraseMissing reports whether err indicates an encrypted PEM block
// that needs a passphrase.
func IsPassphraseMissing(err error) bool {
	var missing *ssh.PassphraseMissingError
	return stderrors.As(err, &missing)
}
