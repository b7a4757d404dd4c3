// internal/models/pubkey.go

package models

// Pubkey source formats.
const (
	KeySourceGenerated = "generated" // internal format: AES-GCM encrypted PEM
	KeySourceImported  = "imported"  // plain (optionally passphrase-protected) PEM
	KeySourceKeystore  = "keystore"  // hardware-backed, private key never exported
)

// Pubkey describes a stored client authentication key. For software keys the
// private material is kept encrypted at rest and decoded lazily on first use.
// For keystore-backed keys only the public half is stored here; signing is
// delegated to the secure hardware.
type Pubkey struct {
	Nickname     string `json:"nickname"`
	Type         string `json:"type"`   // key algorithm label: RSA, DSA, EC, Ed25519
	Source       string `json:"source"` // generated, imported or keystore
	PrivateKey   []byte `json:"private_key,omitempty"`
	PublicKey    []byte `json:"public_key,omitempty"`
	Encrypted    bool   `json:"encrypted"`    // private blob needs a passphrase
	Confirmation bool   `json:"confirmation"` // prompt before every use of this key
}

// IsHardwareBacked reports whether signing must go through the secure
// keystore rather than in-memory key material.
func (p *Pubkey) IsHardwareBacked() bool {
	return p.Source == KeySourceKeystore
}

// Clone returns a copy of the key record.
func (p *Pubkey) Clone() *Pubkey {
	c := *p
	c.PrivateKey = append([]byte(nil), p.PrivateKey...)
	c.PublicKey = append([]byte(nil), p.PublicKey...)
	return &c
}
