// internal/models/password.go

package models

import (
	"errors"

	"sshBridge/internal/crypto"
)

// Password is a saved login secret, encrypted at rest. Saved secrets are
// consulted at most once per connection attempt for password and
// keyboard-interactive auto-fill.
type Password struct {
	Label    string `json:"label"`
	Password string `json:"password"` // encrypted
}

// NewPassword encrypts plainPassword and wraps it in a Password record.
func NewPassword(label, plainPassword string, cipher *crypto.Cipher) (*Password, error) {
	if label == "" {
		return nil, errors.New("label cannot be empty")
	}
	if plainPassword == "" {
		return nil, errors.New("password cannot be empty")
	}

	encrypted, err := cipher.Encrypt(plainPassword)
	if err != nil {
		return nil, err
	}

	return &Password{
		Label:    label,
		Password: encrypted,
	}, nil
}

// GetDecrypted returns the cleartext secret.
func (p *Password) GetDecrypted(cipher *crypto.Cipher) (string, error) {
	return cipher.Decrypt(p.Password)
}

// Update replaces the stored secret.
func (p *Password) Update(newPlainPassword string, cipher *crypto.Cipher) error {
	if newPlainPassword == "" {
		return errors.New("new password cannot be empty")
	}

	encrypted, err := cipher.Encrypt(newPlainPassword)
	if err != nil {
		return err
	}

	p.Password = encrypted
	return nil
}

// Clone returns a copy of the record.
func (p *Password) Clone() *Password {
	return &Password{
		Label:    p.Label,
		Password: p.Password,
	}
}
