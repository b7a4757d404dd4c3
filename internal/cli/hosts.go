package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sshBridge/internal/config"
	"sshBridge/internal/models"
)

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "Manage configured hosts",
}

var hostsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured hosts",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := config.NewStore(configPath)
		if err := store.Load(); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NICKNAME\tADDRESS\tUSER\tKEY\tJUMP\tAGENT")
		for _, host := range store.Hosts() {
			jump := host.JumpHost
			if jump == "" {
				jump = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				host.Nickname, host.Identity.Addr(), host.Username, host.PubkeyID, jump, host.UseAuthAgent)
		}
		return w.Flush()
	},
}

var addHost models.Host

var hostsAddCmd = &cobra.Command{
	Use:   "add <hostname>",
	Short: "Add a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := config.NewStore(configPath)
		if err := store.Load(); err != nil {
			return err
		}

		addHost.Identity.Hostname = args[0]
		if addHost.Username == "" {
			return fmt.Errorf("--user is required")
		}
		if addHost.Nickname == "" {
			addHost.Nickname = models.DefaultNickname(addHost.Username, addHost.Identity.Hostname, addHost.Identity.Port)
		}
		addHost.WantSession = true

		if err := store.AddHost(addHost); err != nil {
			return err
		}
		if err := store.Save(); err != nil {
			return err
		}
		fmt.Printf("Added host '%s'\n", addHost.Nickname)
		return nil
	},
}

var hostsDeleteCmd = &cobra.Command{
	Use:   "delete <nickname>",
	Short: "Delete a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := config.NewStore(configPath)
		if err := store.Load(); err != nil {
			return err
		}
		if err := store.DeleteHost(args[0]); err != nil {
			return err
		}
		return store.Save()
	},
}

func init() {
	hostsAddCmd.Flags().StringVar(&addHost.Nickname, "nickname", "", "host nickname (defaults to user@host)")
	hostsAddCmd.Flags().StringVar(&addHost.Username, "user", "", "login username")
	hostsAddCmd.Flags().IntVar(&addHost.Identity.Port, "port", models.DefaultSSHPort, "server port")
	hostsAddCmd.Flags().StringVar(&addHost.PubkeyID, "key", models.PubkeyAny, "key policy: 'never', 'any' or a key nickname")
	hostsAddCmd.Flags().StringVar(&addHost.PasswordID, "password-label", "", "label of a saved password")
	hostsAddCmd.Flags().StringVar(&addHost.JumpHost, "jump", "", "nickname of the jump host to tunnel through")
	hostsAddCmd.Flags().StringVar(&addHost.UseAuthAgent, "agent", models.AuthAgentNo, "agent forwarding: 'no', 'yes' or 'confirm'")
	hostsAddCmd.Flags().StringVar(&addHost.TerminalType, "terminal", "xterm-256color", "terminal type for the remote PTY")

	hostsCmd.AddCommand(hostsListCmd, hostsAddCmd, hostsDeleteCmd)
	rootCmd.AddCommand(hostsCmd)
}
