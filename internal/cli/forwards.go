package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sshBridge/internal/config"
	"sshBridge/internal/models"
)

var forwardsCmd = &cobra.Command{
	Use:   "forwards",
	Short: "Manage port forwards",
}

var forwardsListCmd = &cobra.Command{
	Use:   "list <host-nickname>",
	Short: "List the forwards configured for a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := config.NewStore(configPath)
		if err := store.Load(); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NICKNAME\tKIND\tSOURCE\tDESTINATION")
		for _, pf := range store.ForwardsForHost(args[0]) {
			dest := "-"
			if pf.Kind != models.ForwardDynamic {
				dest = fmt.Sprintf("%s:%d", pf.DestAddr, pf.DestPort)
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", pf.Nickname, pf.Kind, pf.SourcePort, dest)
		}
		return w.Flush()
	},
}

var addForward models.PortForward

var forwardsAddCmd = &cobra.Command{
	Use:   "add <host-nickname> <forward-nickname>",
	Short: "Add a forward definition to a host",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := config.NewStore(configPath)
		if err := store.Load(); err != nil {
			return err
		}

		addForward.Nickname = args[1]
		switch addForward.Kind {
		case models.ForwardLocal, models.ForwardRemote:
			if addForward.DestAddr == "" || addForward.DestPort == 0 {
				return fmt.Errorf("--dest-addr and --dest-port are required for %s forwards", addForward.Kind)
			}
		case models.ForwardDynamic:
		default:
			return fmt.Errorf("unknown forward kind %q (use 'local', 'remote' or 'dynamic')", addForward.Kind)
		}
		if addForward.SourcePort == 0 {
			return fmt.Errorf("--source-port is required")
		}

		if err := store.AddForward(args[0], addForward); err != nil {
			return err
		}
		return store.Save()
	},
}

var forwardsDeleteCmd = &cobra.Command{
	Use:   "delete <host-nickname> <forward-nickname>",
	Short: "Delete a forward definition",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := config.NewStore(configPath)
		if err := store.Load(); err != nil {
			return err
		}
		if err := store.DeleteForward(args[0], args[1]); err != nil {
			return err
		}
		return store.Save()
	},
}

func init() {
	forwardsAddCmd.Flags().StringVar(&addForward.Kind, "kind", models.ForwardLocal, "forward kind: 'local', 'remote' or 'dynamic'")
	forwardsAddCmd.Flags().IntVar(&addForward.SourcePort, "source-port", 0, "port to listen on")
	forwardsAddCmd.Flags().StringVar(&addForward.DestAddr, "dest-addr", "", "destination host")
	forwardsAddCmd.Flags().IntVar(&addForward.DestPort, "dest-port", 0, "destination port")

	forwardsCmd.AddCommand(forwardsListCmd, forwardsAddCmd, forwardsDeleteCmd)
	rootCmd.AddCommand(forwardsCmd)
}
