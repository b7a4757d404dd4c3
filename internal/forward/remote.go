// internal/forward/remote.go

package forward

import (
	"fmt"
	"net"

	"sshBridge/internal/console"
	"sshBridge/internal/models"
)

// remoteForwarder asks the server to listen on a remote port and relays each
// incoming channel to the configured local destination.
type remoteForwarder struct {
	listenerForwarder
	pf   *models.PortForward
	host ChannelHost
	sink *console.Sink
}

func newRemoteForwarder(pf *models.PortForward, host ChannelHost, sink *console.Sink) *remoteForwarder {
	f := &remoteForwarder{
		pf:   pf,
		host: host,
		sink: sink,
	}
	f.stopCh = make(chan struct{})
	f.handle = f.handleConn
	return f
}

func (f *remoteForwarder) start() error {
	listener, err := f.host.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", f.pf.SourcePort))
	if err != nil {
		return fmt.Errorf("failed to request remote listener on port %d: %w", f.pf.SourcePort, err)
	}
	f.listener = listener
	go f.serve()
	return nil
}

func (f *remoteForwarder) handleConn(remote net.Conn) {
	dest := net.JoinHostPort(f.pf.DestAddr, fmt.Sprintf("%d", f.pf.DestPort))
	local, err := net.Dial("tcp", dest)
	if err != nil {
		f.sink.Linef("Port forward %s: failed to reach local destination %s: %v", f.pf.Nickname, dest, err)
		remote.Close()
		return
	}
	relay(remote, local)
}
