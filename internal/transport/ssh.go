// internal/transport/ssh.go
//
// SessionTransport composes the verifier, authentication engine, jump-chain
// connector and forward multiplexer into one connection lifecycle: connect,
// authenticate, open the interactive session, steady-state read/write/resize,
// close or disconnect.

package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"sshBridge/internal/auth"
	"sshBridge/internal/console"
	"sshBridge/internal/errors"
	"sshBridge/internal/forward"
	"sshBridge/internal/hostkey"
	"sshBridge/internal/models"
	"sshBridge/internal/prompt"
)

const (
	keepaliveInterval = 30 * time.Second

	defaultCols = 80
	defaultRows = 24
)

// termSize caches PTY dimensions requested before the session is open.
type termSize struct {
	cols, rows    int
	width, height int
	set           bool
}

// SessionTransport is the SSH implementation of Transport.
type SessionTransport struct {
	host     *models.Host
	verifier *hostkey.Verifier
	creds    auth.CredentialSource
	secrets  auth.SecretStore
	registry *auth.Registry
	prompts  *prompt.Broker
	sink     *console.Sink
	chain    *ChainConnector
	mux      *forward.Multiplexer

	// onDisconnect fires exactly once per session when the transport reaches
	// Disconnected or Closed; the flag reports a user-initiated teardown.
	onDisconnect func(userInitiated bool)

	mu       sync.Mutex
	state    ConnState
	info     ConnectionInfo
	client   *ssh.Client
	session  *ssh.Session
	stdin    io.WriteCloser
	stdout   io.Reader
	links    []*ssh.Client
	size     termSize
	notified bool
	stopCh   chan struct{}

	// Grace-window bookkeeping: transient losses and close requests are
	// deferred while grace is active and flushed when it ends.
	grace        bool
	pendingClose bool
	pendingLoss  error
}

// Options carries the optional collaborators of a SessionTransport.
type Options struct {
	// Hosts resolves jump-chain references. Required when the host names a
	// jump host.
	Hosts HostSource

	// Secrets is the saved-secret store, may be nil.
	Secrets auth.SecretStore

	// OnDisconnect receives the single disconnect notification, may be nil.
	OnDisconnect func(userInitiated bool)
}

// NewSessionTransport assembles a transport for one host.
func NewSessionTransport(host *models.Host, verifier *hostkey.Verifier, creds auth.CredentialSource, registry *auth.Registry, prompts *prompt.Broker, sink *console.Sink, opts Options) *SessionTransport {
	t := &SessionTransport{
		host:         host,
		verifier:     verifier,
		creds:        creds,
		secrets:      opts.Secrets,
		registry:     registry,
		prompts:      prompts,
		sink:         sink,
		mux:          forward.NewMultiplexer(sink),
		onDisconnect: opts.OnDisconnect,
		state:        StateIdle,
		stopCh:       make(chan struct{}),
	}
	if opts.Hosts != nil {
		t.chain = NewChainConnector(opts.Hosts, verifier, creds, opts.Secrets, registry, prompts, sink)
	}
	return t
}

// State reports the current lifecycle state.
func (t *SessionTransport) State() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Info returns the negotiated connection parameters. Valid once the
// handshake has completed.
func (t *SessionTransport) Info() ConnectionInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info
}

// Forwards exposes port-forward control.
func (t *SessionTransport) Forwards() *forward.Multiplexer { return t.mux }

func (t *SessionTransport) setState(s ConnState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// Connect runs the full lifecycle up to SessionOpen (or Authenticated when
// the host wants no interactive session).
func (t *SessionTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StateIdle {
		state := t.state
		t.mu.Unlock()
		return fmt.Errorf("connect called in state %s", state)
	}
	t.state = StateConnecting
	t.mu.Unlock()

	t.sink.Linef("Connecting to %s...", t.host.Identity)

	conn, links, err := t.dial(ctx)
	if err != nil {
		t.fail(err)
		return err
	}

	client, err := t.handshake(conn)
	if err != nil {
		conn.Close()
		closeLinks(links)
		t.fail(err)
		return err
	}

	t.mu.Lock()
	t.client = client
	t.links = links
	t.state = StateAuthenticated
	t.info.ServerVersion = string(client.ServerVersion())
	t.mu.Unlock()

	t.sink.Linef("Authentication succeeded (server %s)", string(client.ServerVersion()))

	t.mux.Bind(client)

	if t.host.WantSession {
		if err := t.openSession(client); err != nil {
			t.fail(err)
			return err
		}
		t.setState(StateSessionOpen)
	}

	go t.keepalive(client)
	go t.watch(client)
	return nil
}

// dial produces the raw transport, through the jump chain when one is
// configured.
func (t *SessionTransport) dial(ctx context.Context) (net.Conn, []*ssh.Client, error) {
	if t.host.JumpHost != "" {
		if t.chain == nil {
			return nil, nil, errors.Newf(errors.ChainLinkFailure, "host '%s' names jump host '%s' but no host source is configured", t.host.Nickname, t.host.JumpHost)
		}
		t.setState(StateJumpResolving)
		return t.chain.Establish(ctx, t.host)
	}

	conn, err := dialTCP(ctx, t.host.Identity.Addr())
	if err != nil {
		return nil, nil, errors.Newf(errors.TransportLost, "failed to reach %s: %v", t.host.Identity, err)
	}
	return conn, nil, nil
}

// handshake verifies the server key and authenticates over an established
// raw transport.
func (t *SessionTransport) handshake(conn net.Conn) (*ssh.Client, error) {
	t.setState(StateHostKeyPending)

	engine := auth.NewEngine(t.host, t.creds, t.secrets, t.registry, t.prompts, t.sink)
	config := &ssh.ClientConfig{
		User: t.host.Username,
		Auth: engine.Methods(),
		HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			if err := t.verifier.Verify(t.host.Identity, key.Type(), key.Marshal()); err != nil {
				return err
			}
			t.mu.Lock()
			t.info.HostKeyAlgorithm = key.Type()
			t.info.HostKeyFingerprint = ssh.FingerprintSHA256(key)
			t.state = StateAuthenticating
			t.mu.Unlock()
			return nil
		},
		HostKeyAlgorithms: t.verifier.KnownAlgorithms(t.host.Identity),
		Timeout:           connectTimeout,
	}

	sshConn, channels, requests, err := newClientConn(conn, t.host.Identity.Addr(), config)
	if err != nil {
		if errors.IsKind(err, errors.TrustRejected) {
			return nil, err
		}
		return nil, errors.New(errors.AuthExhausted, fmt.Sprintf("failed to authenticate to %s", t.host.Identity), err)
	}
	return ssh.NewClient(sshConn, channels, requests), nil
}

// openSession requests the PTY and shell for the interactive session,
// applying any size cached before the session existed.
func (t *SessionTransport) openSession(client *ssh.Client) error {
	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	if t.host.UseAuthAgent != models.AuthAgentNo {
		keyring := forward.NewRegistryAgent(t.registry, t.prompts, t.sink, t.host.UseAuthAgent)
		if err := forward.ForwardAgent(client, session, keyring); err != nil {
			// Agent forwarding is best-effort, the session proceeds without it.
			t.sink.Linef("Agent forwarding unavailable: %v", err)
		}
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return fmt.Errorf("failed to open session stdin: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return fmt.Errorf("failed to open session stdout: %w", err)
	}
	session.Stderr = sinkWriter{t.sink}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}

	t.mu.Lock()
	cols, rows := defaultCols, defaultRows
	if t.size.set {
		cols, rows = t.size.cols, t.size.rows
	}
	term := t.host.TerminalType
	t.mu.Unlock()
	if term == "" {
		term = "xterm-256color"
	}

	if err := session.RequestPty(term, rows, cols, modes); err != nil {
		session.Close()
		return fmt.Errorf("failed to request pty: %w", err)
	}
	if err := session.Shell(); err != nil {
		session.Close()
		return fmt.Errorf("failed to start shell: %w", err)
	}

	t.mu.Lock()
	t.session = session
	t.stdin = stdin
	t.stdout = stdout
	t.mu.Unlock()
	return nil
}

// Write sends bytes to the interactive session.
func (t *SessionTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	stdin := t.stdin
	t.mu.Unlock()
	if stdin == nil {
		return 0, errors.Newf(errors.TransportLost, "no open session to write to")
	}
	return stdin.Write(p)
}

// Reader streams the interactive session output. Nil until SessionOpen.
func (t *SessionTransport) Reader() io.Reader {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stdout
}

// Resize records the requested PTY dimensions and forwards them to the live
// session when one is open. Early calls are cached and applied when the
// session opens.
func (t *SessionTransport) Resize(cols, rows, width, height int) error {
	t.mu.Lock()
	t.size = termSize{cols: cols, rows: rows, width: width, height: height, set: true}
	session := t.session
	state := t.state
	t.mu.Unlock()

	if state != StateSessionOpen || session == nil {
		return nil
	}
	if err := session.WindowChange(rows, cols); err != nil {
		return fmt.Errorf("failed to resize session: %w", err)
	}
	return nil
}

// EnterGrace opens a window during which transport loss and close requests
// are deferred instead of dispatched.
func (t *SessionTransport) EnterGrace() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.grace = true
}

// LeaveGrace closes the grace window and flushes anything deferred inside it.
func (t *SessionTransport) LeaveGrace() {
	t.mu.Lock()
	t.grace = false
	doClose := t.pendingClose
	loss := t.pendingLoss
	t.pendingClose = false
	t.pendingLoss = nil
	t.mu.Unlock()

	if doClose {
		t.Close()
		return
	}
	if loss != nil {
		t.dispatchLoss(loss)
	}
}

// Close tears the connection down: session first, then the primary
// transport, then the chain links most-recently-established first.
// Idempotent; deferred while a grace window is open.
func (t *SessionTransport) Close() error {
	t.mu.Lock()
	if t.grace {
		t.pendingClose = true
		t.mu.Unlock()
		return nil
	}
	if t.state == StateClosed || t.state == StateDisconnected {
		t.mu.Unlock()
		return nil
	}
	t.state = StateClosed
	t.mu.Unlock()

	t.teardown()
	t.notify(true)
	return nil
}

// fail moves a connection that never fully came up to Disconnected.
func (t *SessionTransport) fail(err error) {
	t.sink.Linef("Connection failed: %v", err)
	t.setState(StateDisconnected)
	t.notify(false)
}

// transportLost handles an unexpected drop of the underlying connection.
func (t *SessionTransport) transportLost(err error) {
	t.mu.Lock()
	if t.state == StateClosed || t.state == StateDisconnected {
		t.mu.Unlock()
		return
	}
	if t.grace {
		if t.pendingLoss == nil {
			t.pendingLoss = err
		}
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	t.dispatchLoss(err)
}

func (t *SessionTransport) dispatchLoss(err error) {
	t.mu.Lock()
	if t.state == StateClosed || t.state == StateDisconnected {
		t.mu.Unlock()
		return
	}
	t.state = StateDisconnected
	t.mu.Unlock()

	t.sink.Linef("Connection lost: %v", err)
	t.teardown()
	t.notify(false)
}

// teardown releases everything in the documented order. Safe to call once
// the terminal state has been set.
func (t *SessionTransport) teardown() {
	t.mu.Lock()
	session := t.session
	client := t.client
	links := t.links
	t.session = nil
	t.stdin = nil
	t.client = nil
	t.links = nil
	select {
	case <-t.stopCh:
	default:
		close(t.stopCh)
	}
	t.mu.Unlock()

	t.mux.Unbind()
	if session != nil {
		session.Close()
	}
	if client != nil {
		client.Close()
	}
	closeLinks(links)
}

// notify fires the disconnect notification exactly once.
func (t *SessionTransport) notify(userInitiated bool) {
	t.mu.Lock()
	if t.notified {
		t.mu.Unlock()
		return
	}
	t.notified = true
	cb := t.onDisconnect
	t.mu.Unlock()

	if cb != nil {
		cb(userInitiated)
	}
}

// keepalive pings the server periodically so dead connections are noticed
// even when the session is idle.
func (t *SessionTransport) keepalive(client *ssh.Client) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				t.transportLost(fmt.Errorf("keepalive failed: %w", err))
				return
			}
		}
	}
}

// watch waits for the underlying connection to end and classifies the cause.
func (t *SessionTransport) watch(client *ssh.Client) {
	err := client.Wait()
	if err == nil {
		err = fmt.Errorf("connection closed by remote host")
	}
	t.transportLost(errors.New(errors.TransportLost, "transport ended", err))
}

// AgentKeyring builds the agent surface for this transport's policy, for
// callers that manage their own sessions.
func (t *SessionTransport) AgentKeyring() agent.Agent {
	return forward.NewRegistryAgent(t.registry, t.prompts, t.sink, t.host.UseAuthAgent)
}

// Client returns the underlying client once authenticated, for collaborators
// such as file transfer.
func (t *SessionTransport) Client() (*ssh.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil, errors.Newf(errors.TransportLost, "transport is not connected")
	}
	return t.client, nil
}

// sinkWriter adapts the output sink to io.Writer for session stderr.
type sinkWriter struct {
	sink *console.Sink
}

func (w sinkWriter) Write(p []byte) (int, error) {
	w.sink.Linef("%s", string(p))
	return len(p), nil
}
