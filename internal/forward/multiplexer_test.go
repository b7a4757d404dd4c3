package forward

import (
	"bytes"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sshBridge/internal/console"
	"sshBridge/internal/models"
)

const (
	eventuallyWait = 2 * time.Second
	eventuallyTick = 10 * time.Millisecond
)

// fakeHost hands out in-memory pipes instead of SSH channels.
type fakeHost struct {
	mu     sync.Mutex
	dialed []string
}

func (f *fakeHost) Dial(network, addr string) (net.Conn, error) {
	f.mu.Lock()
	f.dialed = append(f.dialed, addr)
	f.mu.Unlock()

	local, remote := net.Pipe()
	go func() {
		// Swallow relayed bytes so writers never block.
		buf := make([]byte, 1024)
		for {
			if _, err := remote.Read(buf); err != nil {
				remote.Close()
				return
			}
		}
	}()
	return local, nil
}

func (f *fakeHost) Listen(network, addr string) (net.Listener, error) {
	return net.Listen("tcp", "127.0.0.1:0")
}

func newTestMultiplexer() (*Multiplexer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return NewMultiplexer(console.NewSink(out)), out
}

func dynamicForward(nickname string) *models.PortForward {
	return &models.PortForward{Nickname: nickname, Kind: models.ForwardDynamic, SourcePort: 0}
}

func TestEnableBeforeBindFails(t *testing.T) {
	mux, out := newTestMultiplexer()
	pf := dynamicForward("socks")
	require.NoError(t, mux.Add(pf))

	assert.False(t, mux.Enable(pf))
	assert.Contains(t, out.String(), "before connection is established")
	assert.Nil(t, pf.Handle())
}

func TestEnableUnknownForwardFails(t *testing.T) {
	mux, out := newTestMultiplexer()
	mux.Bind(&fakeHost{})

	assert.False(t, mux.Enable(dynamicForward("ghost")))
	assert.Contains(t, out.String(), "unknown port forward")
}

func TestDisableNeverEnabledFails(t *testing.T) {
	mux, out := newTestMultiplexer()
	pf := dynamicForward("idle")
	require.NoError(t, mux.Add(pf))

	assert.False(t, mux.Disable(pf))
	assert.Contains(t, out.String(), "never enabled")
}

func TestEnableDisableLifecycle(t *testing.T) {
	mux, out := newTestMultiplexer()
	pf := dynamicForward("socks")
	require.NoError(t, mux.Add(pf))
	mux.Bind(&fakeHost{})

	require.True(t, mux.Enable(pf))
	assert.True(t, pf.Enabled)
	assert.NotNil(t, pf.Handle())
	assert.Contains(t, out.String(), "Enabled port forward")

	// Enabling a running forward is a no-op success.
	assert.True(t, mux.Enable(pf))

	require.True(t, mux.Disable(pf))
	assert.False(t, pf.Enabled)
	assert.Nil(t, pf.Handle())
	assert.Contains(t, out.String(), "Disabled port forward")
}

func TestDisableRejectsForeignHandle(t *testing.T) {
	mux, out := newTestMultiplexer()
	pf := dynamicForward("hijacked")
	require.NoError(t, mux.Add(pf))
	pf.SetHandle("not a forwarder")

	assert.False(t, mux.Disable(pf))
	assert.Contains(t, out.String(), "foreign handle")
}

func TestBindStartsRegisteredForwards(t *testing.T) {
	mux, _ := newTestMultiplexer()
	pf := dynamicForward("autostart")
	require.NoError(t, mux.Add(pf))

	mux.Bind(&fakeHost{})
	assert.True(t, pf.Enabled)
	assert.NotNil(t, pf.Handle())

	// Unbind stops the relay but keeps the registration for reconnects.
	mux.Unbind()
	assert.False(t, pf.Enabled)
	assert.Nil(t, pf.Handle())
	assert.Len(t, mux.List(), 1)
}

func TestAddRejectsDuplicate(t *testing.T) {
	mux, _ := newTestMultiplexer()
	pf := dynamicForward("dup")
	require.NoError(t, mux.Add(pf))
	assert.Error(t, mux.Add(pf))
}

func TestRemoveDisablesFirst(t *testing.T) {
	mux, _ := newTestMultiplexer()
	pf := dynamicForward("shortlived")
	require.NoError(t, mux.Add(pf))
	mux.Bind(&fakeHost{})
	require.True(t, mux.Enable(pf))

	assert.True(t, mux.Remove(pf))
	assert.Nil(t, pf.Handle())
	assert.False(t, pf.Enabled)
	assert.Empty(t, mux.List())

	assert.False(t, mux.Remove(pf), "removing an unregistered forward reports false")
}

func TestLocalForwardRelaysThroughHost(t *testing.T) {
	mux, _ := newTestMultiplexer()
	host := &fakeHost{}
	pf := &models.PortForward{
		Nickname:   "web",
		Kind:       models.ForwardLocal,
		SourcePort: 0,
		DestAddr:   "internal.example.com",
		DestPort:   8080,
	}
	require.NoError(t, mux.Add(pf))
	mux.Bind(host)
	require.True(t, mux.Enable(pf))
	defer mux.Disable(pf)

	fwd, ok := pf.Handle().(*localForwarder)
	require.True(t, ok)

	conn, err := net.Dial("tcp", fwd.listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		host.mu.Lock()
		defer host.mu.Unlock()
		return len(host.dialed) == 1 && host.dialed[0] == "internal.example.com:8080"
	}, eventuallyWait, eventuallyTick)
}
