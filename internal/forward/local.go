// internal/forward/local.go

package forward

import (
	"fmt"
	"net"

	"sshBridge/internal/console"
	"sshBridge/internal/models"
)

// localForwarder listens on a local TCP port and relays each accepted
// connection through the transport to the configured destination.
type localForwarder struct {
	listenerForwarder
	pf   *models.PortForward
	host ChannelHost
	sink *console.Sink
}

func newLocalForwarder(pf *models.PortForward, host ChannelHost, sink *console.Sink) *localForwarder {
	f := &localForwarder{
		pf:   pf,
		host: host,
		sink: sink,
	}
	f.stopCh = make(chan struct{})
	f.handle = f.handleConn
	return f
}

func (f *localForwarder) start() error {
	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", f.pf.SourcePort))
	if err != nil {
		return fmt.Errorf("failed to listen on local port %d: %w", f.pf.SourcePort, err)
	}
	f.listener = listener
	go f.serve()
	return nil
}

func (f *localForwarder) handleConn(local net.Conn) {
	dest := net.JoinHostPort(f.pf.DestAddr, fmt.Sprintf("%d", f.pf.DestPort))
	remote, err := f.host.Dial("tcp", dest)
	if err != nil {
		f.sink.Linef("Port forward %s: failed to open channel to %s: %v", f.pf.Nickname, dest, err)
		local.Close()
		return
	}
	relay(local, remote)
}
