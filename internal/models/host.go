// internal/models/host.go

package models

import (
	"fmt"
	"net"
	"strconv"
)

// Key policy sentinels for Host.PubkeyID. Any other value is the nickname
// of a specific stored key.
const (
	PubkeyNever = "never"
	PubkeyAny   = "any"
)

// Agent forwarding modes.
const (
	AuthAgentNo      = "no"
	AuthAgentYes     = "yes"
	AuthAgentConfirm = "confirm"
)

const DefaultSSHPort = 22

// HostIdentity is the (hostname, port) pair that scopes trust decisions and
// credential lookups. Immutable once a connection attempt starts.
type HostIdentity struct {
	Hostname string `json:"hostname"`
	Port     int    `json:"port"`
}

// String renders the identity in the bracketed form used by known_hosts
// entries, e.g. "[example.com]:2222".
func (h HostIdentity) String() string {
	return fmt.Sprintf("[%s]:%d", h.Hostname, h.Port)
}

// Addr returns the dialable "host:port" address.
func (h HostIdentity) Addr() string {
	return net.JoinHostPort(h.Hostname, strconv.Itoa(h.Port))
}

// Host is a configured connection target.
type Host struct {
	Nickname     string       `json:"nickname"`
	Username     string       `json:"username"`
	Identity     HostIdentity `json:"identity"`
	PubkeyID     string       `json:"pubkey_id"`      // "never", "any" or a key nickname
	PasswordID   string       `json:"password_id"`    // label of a saved password, optional
	JumpHost     string       `json:"jump_host"`      // nickname of the jump host, optional
	UseAuthAgent string       `json:"use_auth_agent"` // "no", "yes" or "confirm"
	WantSession  bool         `json:"want_session"`
	TerminalType string       `json:"terminal_type"`

	// Compression is carried in the record for compatibility but is inert:
	// golang.org/x/crypto/ssh does not implement transport compression.
	Compression bool `json:"compression"`
}

// DefaultNickname builds a nickname the way the interactive client labels
// ad-hoc hosts.
func DefaultNickname(username, hostname string, port int) string {
	if port == DefaultSSHPort {
		return fmt.Sprintf("%s@%s", username, hostname)
	}
	return fmt.Sprintf("%s@%s:%d", username, hostname, port)
}
