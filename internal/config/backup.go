// internal/config/backup.go

package config

import (
	"fmt"
	"os"
)

const backupSuffix = ".old"

// Backup writes a copy of the configuration file next to the original,
// taken before destructive edits so a bad change can be undone.
func (s *Store) Backup() error {
	content, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	if err := os.WriteFile(s.path+backupSuffix, content, DefaultFilePerms); err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	return nil
}

// Restore replaces the configuration file with its backup copy and reloads.
func (s *Store) Restore() error {
	content, err := os.ReadFile(s.path + backupSuffix)
	if err != nil {
		return fmt.Errorf("error reading backup file: %w", err)
	}
	if err := os.WriteFile(s.path, content, DefaultFilePerms); err != nil {
		return fmt.Errorf("error restoring config file: %w", err)
	}
	return s.Load()
}
