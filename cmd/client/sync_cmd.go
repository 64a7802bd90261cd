package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/charmbracelet/huh"
	"github.com/openmined/vaultsync/internal/client"
	"github.com/openmined/vaultsync/internal/client/sync"
	"github.com/spf13/cobra"
)

// confirmForcePush asks before a force push discards remote only data.
var confirmForcePush = func(cmd *cobra.Command) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title("Force push the vault?").
		Description("Every remote file is overwritten with the local copy and remote only files are deleted.").
		Affirmative("Overwrite remote").
		Negative("Cancel").
		Value(&ok).
		Run()
	return ok, err
}

func init() {
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newPushCmd())
	rootCmd.AddCommand(newPullCmd())
	rootCmd.AddCommand(newDiffCmd())
	rootCmd.AddCommand(newWatchCmd())
}

type passFunc func(ctx context.Context, c *client.Client) (*sync.SyncResult, error)

// runPass opens the client, runs one pass and prints its summary. A pass with
// per file errors fails the command.
func runPass(cmd *cobra.Command, op string, fn passFunc) error {
	c, closeFn, err := openClient(cmd, slog.LevelWarn)
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := fn(cmd.Context(), c)

	var conflicts *sync.ConflictsDetectedError
	if errors.As(err, &conflicts) {
		renderDiff(cmd.OutOrStdout(), &sync.DiffResult{Conflicts: conflicts.Paths})
		return fmt.Errorf("%s refused: %w", op, err)
	} else if err != nil {
		return err
	}

	renderResult(cmd.OutOrStdout(), op, res)
	if !res.Success() {
		return fmt.Errorf("%s finished with %d errors", op, len(res.Errors))
	}
	return nil
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one two way sync pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPass(cmd, "sync", func(ctx context.Context, c *client.Client) (*sync.SyncResult, error) {
				return c.Sync(ctx)
			})
		},
	}
}

func newPushCmd() *cobra.Command {
	var force bool
	var yes bool

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Mirror the vault onto the remote",
		Long: `Mirror the vault onto the remote: upload files only present locally and
delete files only present on the remote. Refuses when a file differs on both
sides. With --force every local file overwrites the remote copy.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return runPass(cmd, "push", func(ctx context.Context, c *client.Client) (*sync.SyncResult, error) {
					return c.Orchestrator().Push(ctx)
				})
			}

			if !yes {
				ok, err := confirmForcePush(cmd)
				if err != nil {
					return err
				}
				if !ok {
					printWarning(cmd.OutOrStdout(), "force push cancelled")
					return nil
				}
			}

			return runPass(cmd, "force push", func(ctx context.Context, c *client.Client) (*sync.SyncResult, error) {
				return c.Orchestrator().ForcePush(ctx)
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite the remote with the vault")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Mirror the remote onto the vault",
		Long: `Mirror the remote onto the vault: download files only present on the
remote and delete files only present locally. Refuses when a file differs on
both sides.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPass(cmd, "pull", func(ctx context.Context, c *client.Client) (*sync.SyncResult, error) {
				return c.Orchestrator().Pull(ctx)
			})
		},
	}
}

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff",
		Short: "Show how the vault and the remote differ",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, closeFn, err := openClient(cmd, slog.LevelWarn)
			if err != nil {
				return err
			}
			defer closeFn()

			diff, err := c.Orchestrator().Diff(cmd.Context())
			if err != nil {
				return err
			}
			renderDiff(cmd.OutOrStdout(), diff)
			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the vault in sync until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, closeFn, err := openClient(cmd, slog.LevelInfo)
			if err != nil {
				return err
			}
			defer closeFn()

			defer slog.Info("Bye!")
			return c.Watch(cmd.Context())
		},
	}
}
