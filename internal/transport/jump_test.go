package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"sshBridge/internal/auth"
	"sshBridge/internal/console"
	"sshBridge/internal/errors"
	"sshBridge/internal/hostkey"
	"sshBridge/internal/models"
	"sshBridge/internal/prompt"
)

// hostMap is an in-memory HostSource.
type hostMap map[string]*models.Host

func (m hostMap) HostByNickname(nickname string) (*models.Host, bool) {
	host, ok := m[nickname]
	return host, ok
}

func chainHost(nickname, jump string) *models.Host {
	return &models.Host{
		Nickname: nickname,
		Username: "deploy",
		Identity: models.HostIdentity{Hostname: nickname + ".example.com", Port: 22},
		JumpHost: jump,
	}
}

func newTestConnector(t *testing.T, hosts hostMap) *ChainConnector {
	t.Helper()
	broker := prompt.NewBroker()
	t.Cleanup(broker.Close)
	sink := console.NewSink(&bytes.Buffer{})
	verifier := hostkey.NewVerifier(hostkey.NewMemStore(), broker, sink)
	return NewChainConnector(hosts, verifier, nil, nil, auth.NewRegistry(), broker, sink)
}

func TestEstablishWithoutJumpHostReturnsNils(t *testing.T) {
	connector := newTestConnector(t, hostMap{})

	conn, links, err := connector.Establish(context.Background(), chainHost("direct", ""))
	require.NoError(t, err)
	assert.Nil(t, conn)
	assert.Nil(t, links)
}

func TestEstablishDetectsCycle(t *testing.T) {
	hosts := hostMap{
		"a": chainHost("a", "b"),
		"b": chainHost("b", "a"),
	}
	connector := newTestConnector(t, hosts)

	_, _, err := connector.Establish(context.Background(), chainHost("edge", "a"))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.ChainLinkFailure))
	assert.Contains(t, err.Error(), "cycle at 'a'")
}

func TestEstablishDetectsSelfReference(t *testing.T) {
	target := chainHost("edge", "edge")
	connector := newTestConnector(t, hostMap{"edge": target})

	_, _, err := connector.Establish(context.Background(), target)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.ChainLinkFailure))
	assert.Contains(t, err.Error(), "cycle at 'edge'")
}

func TestEstablishUnknownJumpHost(t *testing.T) {
	connector := newTestConnector(t, hostMap{})

	_, _, err := connector.Establish(context.Background(), chainHost("edge", "ghost"))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.ChainLinkFailure))
	assert.Contains(t, err.Error(), "jump host 'ghost' is not configured")
}

// stubPipe satisfies the read/write halves stub channels need.
type stubPipe struct{}

func (stubPipe) Read(p []byte) (int, error)  { return 0, io.EOF }
func (stubPipe) Write(p []byte) (int, error) { return len(p), nil }

// stubChannel is an ssh.Channel that accepts everything and carries nothing.
type stubChannel struct{ stubPipe }

func (stubChannel) Close() error      { return nil }
func (stubChannel) CloseWrite() error { return nil }
func (stubChannel) SendRequest(name string, wantReply bool, payload []byte) (bool, error) {
	return false, nil
}
func (stubChannel) Stderr() io.ReadWriter { return stubPipe{} }

// stubServerConn is an ssh.Conn standing in for an authenticated link so
// chain teardown can be observed without a real handshake.
type stubServerConn struct {
	nickname string
	onClose  func(nickname string)
	once     sync.Once
	done     chan struct{}
}

func newStubServerConn(nickname string, onClose func(string)) *stubServerConn {
	return &stubServerConn{
		nickname: nickname,
		onClose:  onClose,
		done:     make(chan struct{}),
	}
}

func (c *stubServerConn) User() string          { return "deploy" }
func (c *stubServerConn) SessionID() []byte     { return []byte(c.nickname) }
func (c *stubServerConn) ClientVersion() []byte { return []byte("SSH-2.0-client") }
func (c *stubServerConn) ServerVersion() []byte { return []byte("SSH-2.0-server") }
func (c *stubServerConn) RemoteAddr() net.Addr  { return &net.TCPAddr{} }
func (c *stubServerConn) LocalAddr() net.Addr   { return &net.TCPAddr{} }

func (c *stubServerConn) SendRequest(name string, wantReply bool, payload []byte) (bool, []byte, error) {
	return true, nil, nil
}

func (c *stubServerConn) OpenChannel(name string, data []byte) (ssh.Channel, <-chan *ssh.Request, error) {
	reqs := make(chan *ssh.Request)
	close(reqs)
	return stubChannel{}, reqs, nil
}

func (c *stubServerConn) Close() error {
	c.once.Do(func() {
		if c.onClose != nil {
			c.onClose(c.nickname)
		}
		close(c.done)
	})
	return nil
}

func (c *stubServerConn) Wait() error {
	<-c.done
	return io.EOF
}

func TestEstablishRollsBackEarlierLinksOnFailure(t *testing.T) {
	hosts := hostMap{
		"a": chainHost("a", ""),
		"b": chainHost("b", "a"),
		"c": chainHost("c", "b"),
	}
	connector := newTestConnector(t, hosts)

	var mu sync.Mutex
	var closed []string
	record := func(nickname string) {
		mu.Lock()
		closed = append(closed, nickname)
		mu.Unlock()
	}

	origDial, origConn := dialTCP, newClientConn
	t.Cleanup(func() { dialTCP, newClientConn = origDial, origConn })

	dialTCP = func(ctx context.Context, addr string) (net.Conn, error) {
		local, _ := net.Pipe()
		return local, nil
	}
	newClientConn = func(conn net.Conn, addr string, config *ssh.ClientConfig) (ssh.Conn, <-chan ssh.NewChannel, <-chan *ssh.Request, error) {
		switch addr {
		case hosts["a"].Identity.Addr():
			return newStubServerConn("a", record), nil, nil, nil
		case hosts["b"].Identity.Addr():
			return newStubServerConn("b", record), nil, nil, nil
		default:
			return nil, nil, nil, fmt.Errorf("ssh: handshake failed: no supported methods remain")
		}
	}

	_, _, err := connector.Establish(context.Background(), chainHost("edge", "c"))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.ChainLinkFailure))
	assert.Contains(t, err.Error(), "jump host 'c' handshake failed")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"b", "a"}, closed, "links opened before the failure close most-recent-first")
}
