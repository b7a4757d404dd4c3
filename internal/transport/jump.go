// internal/transport/jump.go
//
// Jump-chain establishment. A host may name another configured host as its
// jump host, which may in turn name its own; the chain is resolved
// depth-first so the innermost link is connected and authenticated before
// anything outward of it. Any link failure rolls back every link already
// opened during this attempt.

package transport

import (
	"context"
	"net"
	"time"

	"golang.org/x/crypto/ssh"

	"sshBridge/internal/auth"
	"sshBridge/internal/console"
	"sshBridge/internal/errors"
	"sshBridge/internal/hostkey"
	"sshBridge/internal/models"
	"sshBridge/internal/prompt"
)

const connectTimeout = 15 * time.Second

// Dial vars are indirected so tests can substitute in-memory endpoints.
var (
	dialTCP = func(ctx context.Context, addr string) (net.Conn, error) {
		d := net.Dialer{Timeout: connectTimeout}
		return d.DialContext(ctx, "tcp", addr)
	}

	newClientConn = func(conn net.Conn, addr string, config *ssh.ClientConfig) (ssh.Conn, <-chan ssh.NewChannel, <-chan *ssh.Request, error) {
		return ssh.NewClientConn(conn, addr, config)
	}
)

// HostSource resolves configured hosts by nickname for jump-chain links.
type HostSource interface {
	HostByNickname(nickname string) (*models.Host, bool)
}

// ChainConnector builds the authenticated jump chain for a target host.
type ChainConnector struct {
	hosts    HostSource
	verifier *hostkey.Verifier
	creds    auth.CredentialSource
	secrets  auth.SecretStore
	registry *auth.Registry
	prompts  *prompt.Broker
	sink     *console.Sink
}

// NewChainConnector wires the connector to the collaborators every link
// needs. Each link runs the full verify-then-authenticate flow with its own
// host's credentials.
func NewChainConnector(hosts HostSource, verifier *hostkey.Verifier, creds auth.CredentialSource, secrets auth.SecretStore, registry *auth.Registry, prompts *prompt.Broker, sink *console.Sink) *ChainConnector {
	return &ChainConnector{
		hosts:    hosts,
		verifier: verifier,
		creds:    creds,
		secrets:  secrets,
		registry: registry,
		prompts:  prompts,
		sink:     sink,
	}
}

// Establish connects and authenticates every link of target's jump chain and
// returns a connection to target's own address tunneled through the
// outermost link, plus the link clients innermost-first. A target with no
// jump host returns all nils; the caller dials directly.
//
// The returned clients stay open and become property of the caller; closing
// them in reverse order (outermost first) is the caller's job.
func (c *ChainConnector) Establish(ctx context.Context, target *models.Host) (net.Conn, []*ssh.Client, error) {
	if target.JumpHost == "" {
		return nil, nil, nil
	}

	visited := map[string]bool{target.Nickname: true}
	links, err := c.connectLink(ctx, target.JumpHost, visited)
	if err != nil {
		return nil, nil, err
	}

	outer := links[len(links)-1]
	conn, err := outer.Dial("tcp", target.Identity.Addr())
	if err != nil {
		closeLinks(links)
		return nil, nil, errors.Newf(errors.ChainLinkFailure, "failed to open tunnel from '%s' to %s: %v", target.JumpHost, target.Identity, err)
	}
	return conn, links, nil
}

// connectLink connects the named link, recursing into its own jump host
// first. Returns the chain innermost-first, ending with the named link.
func (c *ChainConnector) connectLink(ctx context.Context, nickname string, visited map[string]bool) ([]*ssh.Client, error) {
	if visited[nickname] {
		return nil, errors.Newf(errors.ChainLinkFailure, "jump-host chain contains a cycle at '%s'", nickname)
	}
	visited[nickname] = true

	host, ok := c.hosts.HostByNickname(nickname)
	if !ok {
		return nil, errors.Newf(errors.ChainLinkFailure, "jump host '%s' is not configured", nickname)
	}

	var inner []*ssh.Client
	if host.JumpHost != "" {
		var err error
		inner, err = c.connectLink(ctx, host.JumpHost, visited)
		if err != nil {
			return nil, err
		}
	}

	c.sink.Linef("Connecting jump-chain link '%s' (%s)", host.Nickname, host.Identity)

	var conn net.Conn
	var err error
	if len(inner) > 0 {
		conn, err = inner[len(inner)-1].Dial("tcp", host.Identity.Addr())
	} else {
		conn, err = dialTCP(ctx, host.Identity.Addr())
	}
	if err != nil {
		closeLinks(inner)
		return nil, errors.Newf(errors.ChainLinkFailure, "failed to reach jump host '%s' at %s: %v", host.Nickname, host.Identity, err)
	}

	client, err := c.handshake(conn, host)
	if err != nil {
		conn.Close()
		closeLinks(inner)
		return nil, errors.New(errors.ChainLinkFailure, "jump host '"+host.Nickname+"' handshake failed", err)
	}

	c.sink.Linef("Established jump-chain link '%s'", host.Nickname)
	return append(inner, client), nil
}

// handshake runs host-key verification and authentication for one link over
// an already-connected transport.
func (c *ChainConnector) handshake(conn net.Conn, host *models.Host) (*ssh.Client, error) {
	engine := auth.NewEngine(host, c.creds, c.secrets, c.registry, c.prompts, c.sink)
	config := &ssh.ClientConfig{
		User:              host.Username,
		Auth:              engine.Methods(),
		HostKeyCallback:   c.verifier.Callback(host.Identity),
		HostKeyAlgorithms: c.verifier.KnownAlgorithms(host.Identity),
		Timeout:           connectTimeout,
	}

	sshConn, channels, requests, err := newClientConn(conn, host.Identity.Addr(), config)
	if err != nil {
		return nil, err
	}
	return ssh.NewClient(sshConn, channels, requests), nil
}

// closeLinks tears down chain links in reverse order of establishment.
func closeLinks(links []*ssh.Client) {
	for i := len(links) - 1; i >= 0; i-- {
		links[i].Close()
	}
}
