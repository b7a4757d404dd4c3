// internal/models/forward.go

package models

import "fmt"

// Port forward kinds.
const (
	ForwardLocal   = "local"
	ForwardRemote  = "remote"
	ForwardDynamic = "dynamic" // SOCKS relay
)

// PortForward is a configured forward channel. The handle is populated only
// while the forward is enabled and is owned exclusively by the multiplexer;
// disabling releases and clears it.
type PortForward struct {
	Nickname   string `json:"nickname"`
	Kind       string `json:"kind"`
	SourcePort int    `json:"source_port"`
	DestAddr   string `json:"dest_addr,omitempty"`
	DestPort   int    `json:"dest_port,omitempty"`
	Enabled    bool   `json:"-"`

	handle interface{}
}

// Description renders a human-readable summary for output sink lines.
func (p *PortForward) Description() string {
	switch p.Kind {
	case ForwardLocal:
		return fmt.Sprintf("%s (L%d -> %s:%d)", p.Nickname, p.SourcePort, p.DestAddr, p.DestPort)
	case ForwardRemote:
		return fmt.Sprintf("%s (R%d -> %s:%d)", p.Nickname, p.SourcePort, p.DestAddr, p.DestPort)
	case ForwardDynamic:
		return fmt.Sprintf("%s (D%d)", p.Nickname, p.SourcePort)
	default:
		return p.Nickname
	}
}

// Handle returns the opaque forwarder handle, nil when disabled.
func (p *PortForward) Handle() interface{} { return p.handle }

// SetHandle stores the forwarder handle; called only by the multiplexer.
func (p *PortForward) SetHandle(h interface{}) { p.handle = h }
