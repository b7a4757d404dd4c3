// internal/auth/registry.go

package auth

import (
	"bytes"
	"sort"
	"sync"

	"golang.org/x/crypto/ssh"

	"sshBridge/internal/models"
)

// KeyHolder pairs a key record with its unlocked signer.
type KeyHolder struct {
	Pubkey models.Pubkey
	Signer ssh.Signer
}

// Registry is the process-wide cache of unlocked keys, shared across all
// concurrent transports so multiple host connections can reuse the same
// unlocked material. All mutation is mutex-guarded.
type Registry struct {
	mu   sync.RWMutex
	keys map[string]*KeyHolder
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{keys: make(map[string]*KeyHolder)}
}

// Add caches an unlocked key under its nickname, replacing any previous
// entry.
func (r *Registry) Add(pubkey models.Pubkey, signer ssh.Signer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[pubkey.Nickname] = &KeyHolder{Pubkey: pubkey, Signer: signer}
}

// Get returns the holder cached under nickname.
func (r *Registry) Get(nickname string) (*KeyHolder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	holder, ok := r.keys[nickname]
	return holder, ok
}

// Remove evicts one entry. Returns false when no entry existed.
func (r *Registry) Remove(nickname string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.keys[nickname]; !ok {
		return false
	}
	delete(r.keys, nickname)
	return true
}

// NicknameForPublicKey finds the entry whose signer matches the wire-format
// public key blob.
func (r *Registry) NicknameForPublicKey(blob []byte) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for nickname, holder := range r.keys {
		if bytes.Equal(holder.Signer.PublicKey().Marshal(), blob) {
			return nickname, true
		}
	}
	return "", false
}

// RemoveByPublicKey evicts the entry matching the public key blob.
func (r *Registry) RemoveByPublicKey(blob []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for nickname, holder := range r.keys {
		if bytes.Equal(holder.Signer.PublicKey().Marshal(), blob) {
			delete(r.keys, nickname)
			return true
		}
	}
	return false
}

// Clear evicts everything.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = make(map[string]*KeyHolder)
}

// Snapshot returns the holders in stable nickname order.
func (r *Registry) Snapshot() []*KeyHolder {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nicknames := make([]string, 0, len(r.keys))
	for nickname := range r.keys {
		nicknames = append(nicknames, nickname)
	}
	sort.Strings(nicknames)

	holders := make([]*KeyHolder, 0, len(nicknames))
	for _, nickname := range nicknames {
		holders = append(holders, r.keys[nickname])
	}
	return holders
}

// Len reports the number of cached keys.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys)
}
