package main

import (
	"log/slog"

	"github.com/openmined/vaultsync/internal/client/config"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the vault and remote status",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, closeFn, err := openClient(cmd, slog.LevelWarn)
			if err != nil {
				return err
			}
			defer closeFn()

			st, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}

			serverURL := ""
			if c.Config().Backend == config.BackendServer {
				serverURL = c.Config().ServerURL
			}
			renderStatus(cmd.OutOrStdout(), serverURL, st)
			return nil
		},
	}
}
