package main

import (
	"fmt"

	"github.com/openmined/vaultsync/internal/client/config"
	"github.com/openmined/vaultsync/internal/utils"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newInitCmd())
}

func newInitCmd() *cobra.Command {
	var apiKey string
	var backend string
	var conflicts string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file for a vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath(cmd)
			out := cmd.OutOrStdout()

			if utils.FileExists(path) && !force {
				cfg, err := config.Load(path)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "Vault already initialized")
				printConfig(cmd, path, cfg)
				return nil
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if apiKey != "" {
				cfg.APIKey = apiKey
			}
			if backend != "" {
				cfg.Backend = backend
			}
			if conflicts != "" {
				cfg.ConflictResolution = conflicts
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			cmd.SilenceUsage = true
			if err := cfg.Save(path); err != nil {
				return err
			}

			fmt.Fprintln(out, "Vault initialized")
			printConfig(cmd, path, cfg)
			return nil
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVarP(&apiKey, "api-key", "k", "", "api key of the ledger server")
	cmd.Flags().StringVarP(&backend, "backend", "b", "", "remote backend (server or tree)")
	cmd.Flags().StringVar(&conflicts, "conflicts", "", "conflict resolution (last-write-wins or create-conflict-file)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	return cmd
}

func printConfig(cmd *cobra.Command, path string, cfg *config.Config) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config Path: %s\n", green.Render(path))
	fmt.Fprintf(out, "Vault Dir:   %s\n", cyan.Render(cfg.VaultDir))
	fmt.Fprintf(out, "Data Dir:    %s\n", cyan.Render(cfg.DataDir))
	fmt.Fprintf(out, "Backend:     %s\n", cyan.Render(cfg.Backend))
	if cfg.Backend == config.BackendServer {
		fmt.Fprintf(out, "Server:      %s\n", cyan.Render(cfg.ServerURL))
	} else {
		fmt.Fprintf(out, "Repository:  %s\n", cyan.Render(cfg.Tree.Owner+"/"+cfg.Tree.Repo+"@"+cfg.Tree.Branch))
	}
}
