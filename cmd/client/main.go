package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/openmined/vaultsync/internal/client"
	"github.com/openmined/vaultsync/internal/client/config"
	"github.com/openmined/vaultsync/internal/utils"
	"github.com/openmined/vaultsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "VAULTSYNC"

var (
	home, _ = os.UserHomeDir()

	errorLabel = color.New(color.FgHiRed, color.Bold).SprintFunc()
	warnLabel  = color.New(color.FgHiYellow, color.Bold).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:           "vaultsync",
	Short:         "Keep a notes vault in sync with a remote",
	Version:       version.Detailed(),
	SilenceErrors: true,
}

func init() {
	addGlobalFlags(rootCmd)
}

func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().SortFlags = false
	cmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "vaultsync config file")
	cmd.PersistentFlags().String("vault", "", "vault directory")
	cmd.PersistentFlags().StringP("server", "s", "", "ledger server url")
	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
}

func main() {
	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", errorLabel("ERROR"), err)
		os.Exit(1)
	}
}

// loadConfig merges the config file, the environment and the flags. The
// result is validated when the client is created.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)

	path := resolveConfigPath(cmd)
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", path, err)
		}
	}

	v.BindPFlag("vault_dir", cmd.Flag("vault"))
	v.BindPFlag("server_url", cmd.Flag("server"))

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := config.FromViper(v)
	cfg.Path = path
	return cfg, nil
}

// openClient loads the config, installs the logger and creates the client.
// Console logs go to stderr so command output stays clean.
func openClient(cmd *cobra.Command, level slog.Level) (*client.Client, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	if f := cmd.Flag("debug"); f != nil && f.Value.String() == "true" {
		level = slog.LevelDebug
	}

	logger, closer, err := utils.NewLogger(utils.LogConfig{File: cfg.LogFile, Level: level, Stdout: cmd.ErrOrStderr()})
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)

	c, err := client.New(cfg, client.WithLogger(logger))
	if err != nil {
		closer.Close()
		return nil, nil, err
	}

	cmd.SilenceUsage = true
	return c, func() {
		if err := c.Close(); err != nil {
			slog.Warn("client close", "error", err)
		}
		closer.Close()
	}, nil
}

func printWarning(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s: %s\n", warnLabel("WARNING"), msg)
}
