// internal/forward/multiplexer.go
//
// The multiplexer owns every configured port forward of one connection.
// Forwards can be registered before the transport is authenticated; they are
// started automatically once a channel host is bound. Enable and disable
// report success as a boolean, failure reasons go to the output sink.

package forward

import (
	"fmt"
	"net"
	"sync"

	"sshBridge/internal/console"
	"sshBridge/internal/models"
)

// ChannelHost opens channels over an established, authenticated connection.
// *ssh.Client satisfies it.
type ChannelHost interface {
	Dial(network, addr string) (net.Conn, error)
	Listen(network, addr string) (net.Listener, error)
}

// forwarder is a running relay bound to one PortForward.
type forwarder interface {
	start() error
	stop()
}

// Multiplexer manages the port forwards of a single connection.
type Multiplexer struct {
	sink *console.Sink

	mu       sync.Mutex
	host     ChannelHost
	forwards []*models.PortForward
}

// NewMultiplexer returns an empty multiplexer. Bind must be called before any
// forward can be enabled.
func NewMultiplexer(sink *console.Sink) *Multiplexer {
	return &Multiplexer{sink: sink}
}

// Bind attaches the authenticated channel host and starts every registered
// forward. Failures are reported per forward and do not abort the rest.
func (m *Multiplexer) Bind(host ChannelHost) {
	m.mu.Lock()
	m.host = host
	forwards := make([]*models.PortForward, len(m.forwards))
	copy(forwards, m.forwards)
	m.mu.Unlock()

	for _, pf := range forwards {
		if !m.Enable(pf) {
			m.sink.Linef("Error setting up port forward %s", pf.Description())
		}
	}
}

// Unbind stops every running forward and detaches the channel host. Forward
// registrations survive so a reconnect can start them again.
func (m *Multiplexer) Unbind() {
	m.mu.Lock()
	forwards := make([]*models.PortForward, len(m.forwards))
	copy(forwards, m.forwards)
	m.host = nil
	m.mu.Unlock()

	for _, pf := range forwards {
		if pf.Handle() != nil {
			m.Disable(pf)
		}
	}
}

// Add registers a forward definition. Registration alone starts nothing.
func (m *Multiplexer) Add(pf *models.PortForward) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.forwards {
		if existing == pf {
			return fmt.Errorf("port forward %s is already registered", pf.Nickname)
		}
	}
	m.forwards = append(m.forwards, pf)
	return nil
}

// Remove disables the forward if it is running, then drops its registration.
// Returns false when the forward was never registered.
func (m *Multiplexer) Remove(pf *models.PortForward) bool {
	if !m.registered(pf) {
		return false
	}
	if pf.Handle() != nil {
		m.Disable(pf)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.forwards {
		if existing == pf {
			m.forwards = append(m.forwards[:i], m.forwards[i+1:]...)
			return true
		}
	}
	return false
}

// Enable starts the relay for a registered forward. Returns false when the
// forward is unknown, the connection is not yet authenticated, or the relay
// could not be set up.
func (m *Multiplexer) Enable(pf *models.PortForward) bool {
	if !m.registered(pf) {
		m.sink.Linef("Attempt to enable unknown port forward %s", pf.Nickname)
		return false
	}

	m.mu.Lock()
	host := m.host
	m.mu.Unlock()
	if host == nil {
		m.sink.Linef("Attempt to enable port forward %s before connection is established", pf.Nickname)
		return false
	}

	if pf.Handle() != nil {
		// Already running.
		return true
	}

	fwd, err := m.buildForwarder(pf, host)
	if err != nil {
		m.sink.Linef("Could not create port forward %s: %v", pf.Description(), err)
		return false
	}
	if err := fwd.start(); err != nil {
		m.sink.Linef("Could not start port forward %s: %v", pf.Description(), err)
		return false
	}

	pf.SetHandle(fwd)
	pf.Enabled = true
	m.sink.Linef("Enabled port forward %s", pf.Description())
	return true
}

// Disable stops a running forward. A registered forward that holds no relay
// handle is reported and left untouched.
func (m *Multiplexer) Disable(pf *models.PortForward) bool {
	if !m.registered(pf) {
		m.sink.Linef("Attempt to disable unknown port forward %s", pf.Nickname)
		return false
	}

	handle := pf.Handle()
	if handle == nil {
		m.sink.Linef("Attempt to disable port forward %s that was never enabled", pf.Nickname)
		return false
	}

	fwd, ok := handle.(forwarder)
	if !ok {
		m.sink.Linef("Port forward %s holds a foreign handle", pf.Nickname)
		return false
	}

	fwd.stop()
	pf.SetHandle(nil)
	pf.Enabled = false
	m.sink.Linef("Disabled port forward %s", pf.Description())
	return true
}

// List returns a snapshot of the registered forwards.
func (m *Multiplexer) List() []*models.PortForward {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.PortForward, len(m.forwards))
	copy(out, m.forwards)
	return out
}

func (m *Multiplexer) registered(pf *models.PortForward) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.forwards {
		if existing == pf {
			return true
		}
	}
	return false
}

func (m *Multiplexer) buildForwarder(pf *models.PortForward, host ChannelHost) (forwarder, error) {
	switch pf.Kind {
	case models.ForwardLocal:
		return newLocalForwarder(pf, host, m.sink), nil
	case models.ForwardRemote:
		return newRemoteForwarder(pf, host, m.sink), nil
	case models.ForwardDynamic:
		return newDynamicForwarder(pf, host, m.sink), nil
	default:
		return nil, fmt.Errorf("unknown forward kind %q", pf.Kind)
	}
}
