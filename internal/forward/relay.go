// internal/forward/relay.go

package forward

import (
	"io"
	"net"

	"golang.org/x/sync/errgroup"
)

// relay copies bytes both ways until either side closes, then tears down
// both connections.
func relay(a, b net.Conn) {
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(a, b)
		a.Close()
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(b, a)
		b.Close()
		return err
	})
	g.Wait() //nolint:errcheck // relay teardown errors are expected
}

// listenerForwarder is the accept-loop shape shared by the concrete
// forwarders: a listener feeding per-connection handlers until stopped.
type listenerForwarder struct {
	listener net.Listener
	stopCh   chan struct{}
	handle   func(net.Conn)
}

func (l *listenerForwarder) serve() {
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.stopCh:
				return
			default:
			}
			return
		}
		go l.handle(conn)
	}
}

func (l *listenerForwarder) stop() {
	select {
	case <-l.stopCh:
		return
	default:
		close(l.stopCh)
	}
	if l.listener != nil {
		l.listener.Close()
	}
}
