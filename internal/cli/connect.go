package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"sshBridge/internal/transport"
)

var connectCmd = &cobra.Command{
	Use:   "connect <host-nickname>",
	Short: "Connect to a configured host",
	Args:  cobra.ExactArgs(1),
	RunE:  runConnect,
}

var connectNoSession bool

func init() {
	connectCmd.Flags().BoolVar(&connectNoSession, "no-session", false, "keep the connection up for forwards only, without a shell")
	rootCmd.AddCommand(connectCmd)
}

func runConnect(cmd *cobra.Command, args []string) error {
	conn, err := establish(cmd.Context(), args[0], !connectNoSession)
	if err != nil {
		return err
	}
	defer conn.cleanup()

	if connectNoSession {
		conn.sink.Linef("Connected without a session, forwards active. Press Ctrl+C to disconnect.")
		<-conn.disconnected
		return nil
	}

	return runSession(conn.transport, conn.disconnected)
}

// runSession relays the local terminal to the remote session until either
// side ends.
func runSession(tr *transport.SessionTransport, disconnected <-chan bool) error {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("failed to set raw terminal mode: %w", err)
	}
	defer term.Restore(fd, oldState) //nolint:errcheck

	resize := func() {
		if cols, rows, err := term.GetSize(fd); err == nil {
			tr.Resize(cols, rows, 0, 0) //nolint:errcheck
		}
	}
	resize()
	stopResize := watchResize(resize)
	defer stopResize()

	sessionDone := make(chan struct{})
	go func() {
		if r := tr.Reader(); r != nil {
			io.Copy(os.Stdout, r) //nolint:errcheck
		}
		close(sessionDone)
	}()
	go func() {
		io.Copy(tr, os.Stdin) //nolint:errcheck
	}()

	select {
	case <-sessionDone:
	case <-disconnected:
	}
	return nil
}
