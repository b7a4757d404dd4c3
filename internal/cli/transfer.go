package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sshBridge/internal/transfer"
)

var useScp bool

var putCmd = &cobra.Command{
	Use:   "put <host-nickname> <local-path> <remote-path>",
	Short: "Copy a local file or directory to a host",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := establish(cmd.Context(), args[0], false)
		if err != nil {
			return err
		}
		defer conn.cleanup()

		client, err := conn.transport.Client()
		if err != nil {
			return err
		}

		if useScp {
			return transfer.ScpUpload(cmd.Context(), client, args[1], args[2])
		}

		ft, err := transfer.NewFileTransfer(client)
		if err != nil {
			return err
		}
		defer ft.Close()

		info, err := os.Stat(args[1])
		if err != nil {
			return fmt.Errorf("failed to stat local path: %w", err)
		}
		if info.IsDir() {
			return ft.UploadDirectory(args[1], args[2], progressReporter(conn))
		}
		return ft.UploadFile(args[1], args[2], progressReporter(conn))
	},
}

var getCmd = &cobra.Command{
	Use:   "get <host-nickname> <remote-path> <local-path>",
	Short: "Copy a remote file or directory from a host",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := establish(cmd.Context(), args[0], false)
		if err != nil {
			return err
		}
		defer conn.cleanup()

		client, err := conn.transport.Client()
		if err != nil {
			return err
		}

		if useScp {
			return transfer.ScpDownload(cmd.Context(), client, args[1], args[2])
		}

		ft, err := transfer.NewFileTransfer(client)
		if err != nil {
			return err
		}
		defer ft.Close()

		info, err := ft.GetRemoteFileInfo(args[1])
		if err != nil {
			return fmt.Errorf("failed to stat remote path: %w", err)
		}
		if info.IsDir() {
			return ft.DownloadDirectory(args[1], args[2], progressReporter(conn))
		}
		return ft.DownloadFile(args[1], args[2], progressReporter(conn))
	},
}

// progressReporter streams transfer progress to the connection's sink.
func progressReporter(conn *connection) chan<- transfer.Progress {
	ch := make(chan transfer.Progress, 16)
	go func() {
		var lastFile string
		for p := range ch {
			if p.FileName != lastFile {
				lastFile = p.FileName
				conn.sink.Linef("Transferring %s (%d bytes)", p.FileName, p.TotalBytes)
			}
		}
	}()
	return ch
}

func init() {
	putCmd.Flags().BoolVar(&useScp, "scp", false, "use the scp protocol instead of SFTP")
	getCmd.Flags().BoolVar(&useScp, "scp", false, "use the scp protocol instead of SFTP")
	rootCmd.AddCommand(putCmd, getCmd)
}
