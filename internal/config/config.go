// internal/config/config.go
//
// Persistent store for hosts, keys, saved passwords and port-forward
// definitions. One JSON file, secrets encrypted with a master passphrase;
// the PBKDF2 salt lives alongside the data. The store implements the
// credential, saved-secret and host-lookup surfaces the transport consumes.

package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"sshBridge/internal/auth"
	"sshBridge/internal/crypto"
	"sshBridge/internal/errors"
	"sshBridge/internal/models"
)

const (
	DefaultConfigFileName = "config.json"
	DefaultConfigDir      = ".config/sshbridge"
	DefaultFilePerms      = 0600
)

// forwardEntry binds a forward definition to the host it belongs to.
type forwardEntry struct {
	HostNickname string             `json:"host_nickname"`
	Forward      models.PortForward `json:"forward"`
}

type fileSchema struct {
	Salt      []byte            `json:"salt,omitempty"`
	Hosts     []models.Host     `json:"hosts"`
	Pubkeys   []models.Pubkey   `json:"pubkeys"`
	Passwords []models.Password `json:"passwords"`
	Forwards  []forwardEntry    `json:"forwards"`
}

// Store is the on-disk configuration manager.
type Store struct {
	path string

	mu     sync.Mutex
	data   *fileSchema
	cipher *crypto.Cipher
}

// NewStore creates a store bound to configPath, falling back to the default
// location when empty.
func NewStore(configPath string) *Store {
	if configPath == "" {
		defaultPath, err := DefaultConfigPath()
		if err == nil {
			configPath = defaultPath
		} else {
			configPath = DefaultConfigFileName
		}
	}
	return &Store{
		path: configPath,
		data: &fileSchema{},
	}
}

// DefaultConfigPath resolves (and creates) the per-user configuration
// directory.
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get home directory: %w", err)
	}
	configDir := filepath.Join(homeDir, DefaultConfigDir)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("could not create config directory: %w", err)
	}
	return filepath.Join(configDir, DefaultConfigFileName), nil
}

// Dir returns the directory holding the configuration file.
func (s *Store) Dir() string {
	return filepath.Dir(s.path)
}

// Load reads the configuration from disk, initializing an empty file when
// none exists yet.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	configDir := filepath.Dir(s.path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			s.data = &fileSchema{
				Hosts:     make([]models.Host, 0),
				Pubkeys:   make([]models.Pubkey, 0),
				Passwords: make([]models.Password, 0),
				Forwards:  make([]forwardEntry, 0),
			}
			return s.saveLocked()
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, s.data); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// Save writes the configuration back to disk.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	configDir := filepath.Dir(s.path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(s.data, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(s.path, data, DefaultFilePerms); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Unlock derives the secret cipher from the master passphrase. A salt is
// generated and persisted on first unlock.
func (s *Store) Unlock(masterPassphrase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.data.Salt) == 0 {
		salt, err := crypto.NewSalt()
		if err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
		s.data.Salt = salt
		if err := s.saveLocked(); err != nil {
			return err
		}
	}

	s.cipher = crypto.NewCipher(masterPassphrase, s.data.Salt)
	return nil
}

// Cipher returns the unlocked secret cipher, nil before Unlock.
func (s *Store) Cipher() *crypto.Cipher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cipher
}

// Hosts returns a copy of the configured hosts.
func (s *Store) Hosts() []models.Host {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Host, len(s.data.Hosts))
	copy(out, s.data.Hosts)
	return out
}

// AddHost registers a host. Nicknames are unique.
func (s *Store) AddHost(host models.Host) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.Hosts {
		if existing.Nickname == host.Nickname {
			return fmt.Errorf("host '%s' already exists", host.Nickname)
		}
	}
	s.data.Hosts = append(s.data.Hosts, host)
	return nil
}

// UpdateHost replaces the host stored under nickname.
func (s *Store) UpdateHost(nickname string, host models.Host) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.data.Hosts {
		if existing.Nickname == nickname {
			s.data.Hosts[i] = host
			return nil
		}
	}
	return fmt.Errorf("host '%s' not found", nickname)
}

// DeleteHost removes a host and its forward definitions.
func (s *Store) DeleteHost(nickname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.data.Hosts {
		if other.JumpHost == nickname {
			return fmt.Errorf("host '%s' is used as a jump host by '%s'", nickname, other.Nickname)
		}
	}

	for i, existing := range s.data.Hosts {
		if existing.Nickname == nickname {
			s.data.Hosts = append(s.data.Hosts[:i], s.data.Hosts[i+1:]...)
			s.deleteForwardsLocked(nickname)
			return nil
		}
	}
	return fmt.Errorf("host '%s' not found", nickname)
}

// HostByNickname resolves one host, also serving jump-chain lookups.
func (s *Store) HostByNickname(nickname string) (*models.Host, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.Hosts {
		if s.data.Hosts[i].Nickname == nickname {
			host := s.data.Hosts[i]
			return &host, true
		}
	}
	return nil, false
}

// Pubkeys returns a copy of the stored key records.
func (s *Store) Pubkeys() []models.Pubkey {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Pubkey, 0, len(s.data.Pubkeys))
	for i := range s.data.Pubkeys {
		out = append(out, *s.data.Pubkeys[i].Clone())
	}
	return out
}

// AddPubkey stores a key record. Nicknames are unique.
func (s *Store) AddPubkey(pubkey models.Pubkey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.Pubkeys {
		if existing.Nickname == pubkey.Nickname {
			return fmt.Errorf("key '%s' already exists", pubkey.Nickname)
		}
	}
	s.data.Pubkeys = append(s.data.Pubkeys, pubkey)
	return nil
}

// DeletePubkey removes a key unless a host still references it.
func (s *Store) DeletePubkey(nickname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, host := range s.data.Hosts {
		if host.PubkeyID == nickname {
			return fmt.Errorf("key '%s' is in use by host '%s'", nickname, host.Nickname)
		}
	}
	for i, existing := range s.data.Pubkeys {
		if existing.Nickname == nickname {
			s.data.Pubkeys = append(s.data.Pubkeys[:i], s.data.Pubkeys[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("key '%s' not found", nickname)
}

// Passwords returns a copy of the saved password records.
func (s *Store) Passwords() []models.Password {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Password, len(s.data.Passwords))
	copy(out, s.data.Passwords)
	return out
}

// AddPassword stores an encrypted password record. Labels are unique.
func (s *Store) AddPassword(password models.Password) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.Passwords {
		if existing.Label == password.Label {
			return fmt.Errorf("password '%s' already exists", password.Label)
		}
	}
	s.data.Passwords = append(s.data.Passwords, password)
	return nil
}

// DeletePassword removes a saved password unless a host still references it.
func (s *Store) DeletePassword(label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, host := range s.data.Hosts {
		if host.PasswordID == label {
			return fmt.Errorf("password '%s' is in use by host '%s'", label, host.Nickname)
		}
	}
	for i, existing := range s.data.Passwords {
		if existing.Label == label {
			s.data.Passwords = append(s.data.Passwords[:i], s.data.Passwords[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("password '%s' not found", label)
}

// AddForward stores a forward definition for a host.
func (s *Store) AddForward(hostNickname string, forward models.PortForward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.data.Forwards {
		if entry.HostNickname == hostNickname && entry.Forward.Nickname == forward.Nickname {
			return fmt.Errorf("forward '%s' already exists for host '%s'", forward.Nickname, hostNickname)
		}
	}
	s.data.Forwards = append(s.data.Forwards, forwardEntry{HostNickname: hostNickname, Forward: forward})
	return nil
}

// DeleteForward removes one forward definition.
func (s *Store) DeleteForward(hostNickname, forwardNickname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, entry := range s.data.Forwards {
		if entry.HostNickname == hostNickname && entry.Forward.Nickname == forwardNickname {
			s.data.Forwards = append(s.data.Forwards[:i], s.data.Forwards[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("forward '%s' not found for host '%s'", forwardNickname, hostNickname)
}

// ForwardsForHost returns the forward definitions configured for a host.
func (s *Store) ForwardsForHost(hostNickname string) []*models.PortForward {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.PortForward
	for i := range s.data.Forwards {
		if s.data.Forwards[i].HostNickname == hostNickname {
			forward := s.data.Forwards[i].Forward
			out = append(out, &forward)
		}
	}
	return out
}

func (s *Store) deleteForwardsLocked(hostNickname string) {
	kept := s.data.Forwards[:0]
	for _, entry := range s.data.Forwards {
		if entry.HostNickname != hostNickname {
			kept = append(kept, entry)
		}
	}
	s.data.Forwards = kept
}

// GetPassword implements the saved-secret lookup: the secret saved for the
// host matching id, decrypted with the unlocked cipher.
func (s *Store) GetPassword(id models.HostIdentity) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cipher == nil {
		return "", false
	}

	var label string
	for _, host := range s.data.Hosts {
		if host.Identity == id && host.PasswordID != "" {
			label = host.PasswordID
			break
		}
	}
	if label == "" {
		return "", false
	}

	for i := range s.data.Passwords {
		if s.data.Passwords[i].Label == label {
			secret, err := s.data.Passwords[i].GetDecrypted(s.cipher)
			if err != nil {
				return "", false
			}
			return secret, true
		}
	}
	return "", false
}

// ResolveByIdentifier implements the credential lookup by key nickname.
func (s *Store) ResolveByIdentifier(id string) (*models.Pubkey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.Pubkeys {
		if s.data.Pubkeys[i].Nickname == id {
			return s.data.Pubkeys[i].Clone(), nil
		}
	}
	return nil, nil
}

// ResolveAllCached lists every stored key record, for the "any key" policy.
func (s *Store) ResolveAllCached() ([]*models.Pubkey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Pubkey, 0, len(s.data.Pubkeys))
	for i := range s.data.Pubkeys {
		out = append(out, s.data.Pubkeys[i].Clone())
	}
	return out, nil
}

// HardwareSigner reports that no secure keystore exists on this platform.
func (s *Store) HardwareSigner(pubkey *models.Pubkey) (auth.HardwareSigner, error) {
	return nil, errors.Newf(errors.CredentialUnavailable, "key '%s' requires a hardware keystore, which is not available", pubkey.Nickname)
}
