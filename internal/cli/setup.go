package cli

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/term"

	"sshBridge/internal/auth"
	"sshBridge/internal/config"
	"sshBridge/internal/console"
	"sshBridge/internal/hostkey"
	"sshBridge/internal/models"
	"sshBridge/internal/prompt"
	"sshBridge/internal/transport"
	"sshBridge/internal/ui"
)

// connection bundles an established transport with its collaborators and
// cleanup.
type connection struct {
	transport    *transport.SessionTransport
	store        *config.Store
	sink         *console.Sink
	disconnected chan bool
	cleanup      func()
}

// establish loads the configuration, wires the prompt surface and connects
// to the named host. wantSession overrides the host's own session setting so
// transfer commands can connect without a PTY.
func establish(ctx context.Context, nickname string, wantSession bool) (*connection, error) {
	store := config.NewStore(configPath)
	if err := store.Load(); err != nil {
		return nil, err
	}

	host, ok := store.HostByNickname(nickname)
	if !ok {
		return nil, fmt.Errorf("host '%s' not found, add it with 'sshbridge hosts add'", nickname)
	}
	host.WantSession = wantSession

	if err := unlockStore(store); err != nil {
		return nil, err
	}

	broker := prompt.NewBroker()
	prompter := ui.NewPrompter(broker, os.Stdin, os.Stdout)
	go prompter.Run()

	sink := console.NewSink(os.Stdout).WithField("host", host.Nickname)
	keyStore := hostkey.NewFileStore(hostkey.DefaultKnownHostsPath(store.Dir()))
	verifier := hostkey.NewVerifier(keyStore, broker, sink)
	registry := auth.NewRegistry()
	if err := auth.PreloadRegistry(registry, store, sink); err != nil {
		sink.Linef("Could not preload stored keys: %v", err)
	}

	disconnected := make(chan bool, 1)
	tr := transport.NewSessionTransport(host, verifier, store, registry, broker, sink, transport.Options{
		Hosts:   store,
		Secrets: store,
		OnDisconnect: func(userInitiated bool) {
			select {
			case disconnected <- userInitiated:
			default:
			}
		},
	})

	for _, pf := range store.ForwardsForHost(host.Nickname) {
		if err := tr.Forwards().Add(pf); err != nil {
			sink.Linef("Skipping forward %s: %v", pf.Description(), err)
		}
	}

	if err := tr.Connect(ctx); err != nil {
		broker.Close()
		return nil, err
	}

	return &connection{
		transport:    tr,
		store:        store,
		sink:         sink,
		disconnected: disconnected,
		cleanup: func() {
			tr.Close()
			broker.Close()
		},
	}, nil
}

// unlockStore derives the secret cipher when stored credentials need it.
func unlockStore(store *config.Store) error {
	if len(store.Passwords()) == 0 && !hasEncryptedKeys(store) {
		return nil
	}

	fmt.Print("Master passphrase: ")
	passphrase, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read master passphrase: %w", err)
	}
	return store.Unlock(string(passphrase))
}

func hasEncryptedKeys(store *config.Store) bool {
	for _, key := range store.Pubkeys() {
		if key.Encrypted && key.Source == models.KeySourceGenerated {
			return true
		}
	}
	return false
}
