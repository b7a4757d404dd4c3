package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"sshBridge/internal/config"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := config.NewStore(configPath)
		if err := store.Load(); err != nil {
			return err
		}
		if err := store.Backup(); err != nil {
			return err
		}
		fmt.Println("Configuration backed up")
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore the configuration file from its backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := config.NewStore(configPath)
		if err := store.Restore(); err != nil {
			return err
		}
		fmt.Println("Configuration restored from backup")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backupCmd, restoreCmd)
}
