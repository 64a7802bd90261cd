package main

import (
	"fmt"

	"github.com/openmined/vaultsync/internal/version"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newVersionCmd())
}

func newVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print vaultsync version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := version.Detailed()
			if short {
				out = version.Version
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "print only the version number")
	return cmd
}
