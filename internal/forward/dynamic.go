// internal/forward/dynamic.go
//
// Dynamic forwards run a small SOCKS server on a local port. SOCKS4, SOCKS4a
// and SOCKS5 are supported, CONNECT only; each accepted request becomes a
// direct-tcpip channel over the transport.

package forward

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"sshBridge/internal/console"
	"sshBridge/internal/models"
)

const (
	socksVersion4 = 4
	socksVersion5 = 5

	socksCmdConnect = 1

	socks5AddrIPv4   = 1
	socks5AddrDomain = 3
	socks5AddrIPv6   = 4

	socks5ReplyOK              = 0
	socks5ReplyFailure         = 1
	socks5ReplyCmdUnsupported  = 7
	socks5ReplyAddrUnsupported = 8

	socks4ReplyGranted  = 90
	socks4ReplyRejected = 91
)

// dynamicForwarder serves SOCKS CONNECT requests on a local port.
type dynamicForwarder struct {
	listenerForwarder
	pf   *models.PortForward
	host ChannelHost
	sink *console.Sink
}

func newDynamicForwarder(pf *models.PortForward, host ChannelHost, sink *console.Sink) *dynamicForwarder {
	f := &dynamicForwarder{
		pf:   pf,
		host: host,
		sink: sink,
	}
	f.stopCh = make(chan struct{})
	f.handle = f.handleConn
	return f
}

func (f *dynamicForwarder) start() error {
	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", f.pf.SourcePort))
	if err != nil {
		return fmt.Errorf("failed to listen on local port %d: %w", f.pf.SourcePort, err)
	}
	f.listener = listener
	go f.serve()
	return nil
}

func (f *dynamicForwarder) handleConn(client net.Conn) {
	reader := bufio.NewReader(client)

	dest, err := negotiateSocks(reader, client)
	if err != nil {
		f.sink.Linef("Port forward %s: SOCKS negotiation failed: %v", f.pf.Nickname, err)
		client.Close()
		return
	}

	remote, err := f.host.Dial("tcp", dest)
	if err != nil {
		f.sink.Linef("Port forward %s: failed to open channel to %s: %v", f.pf.Nickname, dest, err)
		client.Close()
		return
	}

	// Replay anything the client pipelined past the request.
	if n := reader.Buffered(); n > 0 {
		buffered, _ := reader.Peek(n)
		if _, err := remote.Write(buffered); err != nil {
			client.Close()
			remote.Close()
			return
		}
		reader.Discard(n) //nolint:errcheck // peeked bytes are buffered
	}

	relay(client, remote)
}

// negotiateSocks runs the version-appropriate handshake and returns the
// requested destination as host:port. The success reply has been written
// when it returns nil.
func negotiateSocks(r *bufio.Reader, w io.Writer) (string, error) {
	version, err := r.ReadByte()
	if err != nil {
		return "", fmt.Errorf("failed to read SOCKS version: %w", err)
	}

	switch version {
	case socksVersion4:
		return negotiateSocks4(r, w)
	case socksVersion5:
		return negotiateSocks5(r, w)
	default:
		return "", fmt.Errorf("unsupported SOCKS version %d", version)
	}
}

// negotiateSocks4 handles SOCKS4 and the 4a domain extension. The version
// byte has already been consumed.
func negotiateSocks4(r *bufio.Reader, w io.Writer) (string, error) {
	header := make([]byte, 7) // cmd, port(2), ip(4)
	if _, err := io.ReadFull(r, header); err != nil {
		return "", fmt.Errorf("failed to read SOCKS4 request: %w", err)
	}
	if header[0] != socksCmdConnect {
		w.Write([]byte{0, socks4ReplyRejected, 0, 0, 0, 0, 0, 0}) //nolint:errcheck
		return "", fmt.Errorf("unsupported SOCKS4 command %d", header[0])
	}

	port := int(binary.BigEndian.Uint16(header[1:3]))
	ip := header[3:7]

	// Null-terminated user id, ignored.
	if _, err := r.ReadString(0); err != nil {
		return "", fmt.Errorf("failed to read SOCKS4 user id: %w", err)
	}

	var host string
	if ip[0] == 0 && ip[1] == 0 && ip[2] == 0 && ip[3] != 0 {
		// SOCKS4a: the hostname follows as another null-terminated string.
		name, err := r.ReadString(0)
		if err != nil {
			return "", fmt.Errorf("failed to read SOCKS4a hostname: %w", err)
		}
		host = name[:len(name)-1]
	} else {
		host = net.IP(ip).String()
	}

	if _, err := w.Write([]byte{0, socks4ReplyGranted, 0, 0, 0, 0, 0, 0}); err != nil {
		return "", fmt.Errorf("failed to write SOCKS4 reply: %w", err)
	}
	return net.JoinHostPort(host, fmt.Sprintf("%d", port)), nil
}

// negotiateSocks5 handles the RFC 1928 flow with the no-auth method. The
// version byte has already been consumed.
func negotiateSocks5(r *bufio.Reader, w io.Writer) (string, error) {
	nmethods, err := r.ReadByte()
	if err != nil {
		return "", fmt.Errorf("failed to read SOCKS5 method count: %w", err)
	}
	methods := make([]byte, nmethods)
	if _, err := io.ReadFull(r, methods); err != nil {
		return "", fmt.Errorf("failed to read SOCKS5 methods: %w", err)
	}
	if _, err := w.Write([]byte{socksVersion5, 0}); err != nil {
		return "", fmt.Errorf("failed to write SOCKS5 method selection: %w", err)
	}

	header := make([]byte, 4) // ver, cmd, rsv, atyp
	if _, err := io.ReadFull(r, header); err != nil {
		return "", fmt.Errorf("failed to read SOCKS5 request: %w", err)
	}
	if header[1] != socksCmdConnect {
		writeSocks5Reply(w, socks5ReplyCmdUnsupported)
		return "", fmt.Errorf("unsupported SOCKS5 command %d", header[1])
	}

	var host string
	switch header[3] {
	case socks5AddrIPv4:
		addr := make([]byte, 4)
		if _, err := io.ReadFull(r, addr); err != nil {
			writeSocks5Reply(w, socks5ReplyFailure)
			return "", fmt.Errorf("failed to read SOCKS5 IPv4 address: %w", err)
		}
		host = net.IP(addr).String()

	case socks5AddrDomain:
		length, err := r.ReadByte()
		if err != nil {
			writeSocks5Reply(w, socks5ReplyFailure)
			return "", fmt.Errorf("failed to read SOCKS5 domain length: %w", err)
		}
		domain := make([]byte, length)
		if _, err := io.ReadFull(r, domain); err != nil {
			writeSocks5Reply(w, socks5ReplyFailure)
			return "", fmt.Errorf("failed to read SOCKS5 domain: %w", err)
		}
		host = string(domain)

	case socks5AddrIPv6:
		addr := make([]byte, 16)
		if _, err := io.ReadFull(r, addr); err != nil {
			writeSocks5Reply(w, socks5ReplyFailure)
			return "", fmt.Errorf("failed to read SOCKS5 IPv6 address: %w", err)
		}
		host = net.IP(addr).String()

	default:
		writeSocks5Reply(w, socks5ReplyAddrUnsupported)
		return "", fmt.Errorf("unsupported SOCKS5 address type %d", header[3])
	}

	portBytes := make([]byte, 2)
	if _, err := io.ReadFull(r, portBytes); err != nil {
		writeSocks5Reply(w, socks5ReplyFailure)
		return "", fmt.Errorf("failed to read SOCKS5 port: %w", err)
	}
	port := int(binary.BigEndian.Uint16(portBytes))

	if err := writeSocks5Reply(w, socks5ReplyOK); err != nil {
		return "", fmt.Errorf("failed to write SOCKS5 reply: %w", err)
	}
	return net.JoinHostPort(host, fmt.Sprintf("%d", port)), nil
}

func writeSocks5Reply(w io.Writer, code byte) error {
	_, err := w.Write([]byte{socksVersion5, code, 0, socks5AddrIPv4, 0, 0, 0, 0, 0, 0})
	return err
}
