package cli

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "sshbridge",
	Short: "SSH session transport with trust-on-first-use host keys and jump-host chains",
	Long: `sshbridge manages SSH connections the way a hardened interactive client does:
host keys are verified against a local known-hosts store with explicit
trust-on-first-use prompting, authentication walks public keys, keyboard-
interactive and password methods in priority order, and connections can be
tunneled through chains of jump hosts.

Port forwards (local, remote and dynamic SOCKS) are configured per host and
come up automatically once a connection authenticates.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logrus.SetOutput(os.Stderr)
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		} else {
			logrus.SetLevel(logrus.WarnLevel)
		}
	},
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
