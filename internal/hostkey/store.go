// internal/hostkey/store.go

package hostkey

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"sshBridge/internal/models"
)

// Record is one trusted server key. Records are never mutated, only added
// and removed.
type Record struct {
	Identity  models.HostIdentity
	Algorithm string
	KeyBytes  []byte
}

// Store is the known-hosts persistence consumed by the verifier.
type Store interface {
	// Lookup returns every record stored for the identity, any algorithm.
	Lookup(id models.HostIdentity) ([]Record, error)

	// Add stores a record. Replaces an existing record with the same
	// identity and algorithm.
	Add(rec Record) error

	// Remove deletes the record matching identity, algorithm and key bytes.
	Remove(id models.HostIdentity, algorithm string, keyBytes []byte) error

	// KnownAlgorithms lists the algorithms with a stored record for the
	// identity, used to steer host-key algorithm negotiation.
	KnownAlgorithms(id models.HostIdentity) ([]string, error)
}

// FileStore keeps records in a single OpenSSH known_hosts format file,
// addressed with the bracketed "[host]:port" form.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore opens (or later creates) the known_hosts file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultKnownHostsPath returns the application's known_hosts location.
func DefaultKnownHostsPath(configDir string) string {
	return filepath.Join(configDir, "ssh", "known_hosts")
}

func (s *FileStore) load() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read known_hosts file: %w", err)
	}

	var records []Record
	rest := data
	for len(rest) > 0 {
		_, hosts, key, _, remaining, err := ssh.ParseKnownHosts(rest)
		if err != nil {
			// Tolerate trailing blank/garbage lines the way OpenSSH does.
			break
		}
		rest = remaining

		for _, h := range hosts {
			id, ok := parseHostPattern(h)
			if !ok {
				continue
			}
			records = append(records, Record{
				Identity:  id,
				Algorithm: key.Type(),
				KeyBytes:  key.Marshal(),
			})
		}
	}
	return records, nil
}

func (s *FileStore) save(records []Record) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	var buf bytes.Buffer
	for _, rec := range records {
		key, err := ssh.ParsePublicKey(rec.KeyBytes)
		if err != nil {
			return fmt.Errorf("failed to parse stored key for %s: %w", rec.Identity, err)
		}
		line := knownhosts.Line([]string{knownhosts.Normalize(rec.Identity.Addr())}, key)
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	if err := os.WriteFile(s.path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write known_hosts file %s: %w", s.path, err)
	}
	return nil
}

// Lookup implements Store.
func (s *FileStore) Lookup(id models.HostIdentity) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, rec := range records {
		if rec.Identity == id {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Add implements Store.
func (s *FileStore) Add(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	kept := records[:0]
	for _, r := range records {
		if r.Identity == rec.Identity && r.Algorithm == rec.Algorithm {
			continue
		}
		kept = append(kept, r)
	}
	kept = append(kept, rec)
	return s.save(kept)
}

// Remove implements Store.
func (s *FileStore) Remove(id models.HostIdentity, algorithm string, keyBytes []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	kept := records[:0]
	for _, r := range records {
		if r.Identity == id && r.Algorithm == algorithm && bytes.Equal(r.KeyBytes, keyBytes) {
			continue
		}
		kept = append(kept, r)
	}
	return s.save(kept)
}

// KnownAlgorithms implements Store.
func (s *FileStore) KnownAlgorithms(id models.HostIdentity) ([]string, error) {
	records, err := s.Lookup(id)
	if err != nil {
		return nil, err
	}
	var algos []string
	for _, rec := range records {
		algos = append(algos, rec.Algorithm)
	}
	return algos, nil
}

// parseHostPattern turns "[host]:port" or plain "host" (implying port 22)
// into a HostIdentity.
func parseHostPattern(pattern string) (models.HostIdentity, bool) {
	if len(pattern) > 2 && pattern[0] == '[' {
		end := bytes.IndexByte([]byte(pattern), ']')
		if end < 0 || end+1 >= len(pattern) || pattern[end+1] != ':' {
			return models.HostIdentity{}, false
		}
		var port int
		if _, err := fmt.Sscanf(pattern[end+2:], "%d", &port); err != nil {
			return models.HostIdentity{}, false
		}
		return models.HostIdentity{Hostname: pattern[1:end], Port: port}, true
	}
	return models.HostIdentity{Hostname: pattern, Port: models.DefaultSSHPort}, true
}

// MemStore is an in-memory Store used by tests and ephemeral sessions.
type MemStore struct {
	mu      sync.Mutex
	records []Record
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore { return &MemStore{} }

// Lookup implements Store.
func (s *MemStore) Lookup(id models.HostIdentity) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, rec := range s.records {
		if rec.Identity == id {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Add implements Store.
func (s *MemStore) Add(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	for _, r := range s.records {
		if r.Identity == rec.Identity && r.Algorithm == rec.Algorithm {
			continue
		}
		kept = append(kept, r)
	}
	s.records = append(kept, rec)
	return nil
}

// Remove implements Store.
func (s *MemStore) Remove(id models.HostIdentity, algorithm string, keyBytes []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	for _, r := range s.records {
		if r.Identity == id && r.Algorithm == algorithm && bytes.Equal(r.KeyBytes, keyBytes) {
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return nil
}

// KnownAlgorithms implements Store.
func (s *MemStore) KnownAlgorithms(id models.HostIdentity) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var algos []string
	for _, rec := range s.records {
		if rec.Identity == id {
			algos = append(algos, rec.Algorithm)
		}
	}
	return algos, nil
}
