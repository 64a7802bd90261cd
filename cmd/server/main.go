package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/openmined/vaultsync/internal/server"
	"github.com/openmined/vaultsync/internal/utils"
	"github.com/openmined/vaultsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "VAULTSYNC_SERVER"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "vaultsync-server",
		Short:   "Vaultsync ledger server",
		Version: version.Detailed(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			cmd.SilenceUsage = true

			logger, closer, err := utils.NewLogger(utils.LogConfig{File: cfg.LogFile, Level: logLevel(cmd)})
			if err != nil {
				return err
			}
			defer closer.Close()
			slog.SetDefault(logger)

			srv, err := server.New(cfg)
			if err != nil {
				return err
			}

			defer slog.Info("Bye!")
			return srv.Start(cmd.Context())
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringP("config", "f", "", "Path to the config file (json or yaml)")
	cmd.Flags().StringP("bind", "b", server.DefaultAddr, "Address to bind the server")
	cmd.Flags().StringP("cert", "c", "", "Path to the certificate file")
	cmd.Flags().StringP("key", "k", "", "Path to the key file")
	cmd.Flags().String("vault", server.DefaultVaultDir, "Directory holding the vault content")
	cmd.Flags().String("db", server.DefaultDBPath, "Path to the ledger database")
	cmd.Flags().Bool("debug", false, "Enable debug logging")
	return cmd
}

func main() {
	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*server.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetDefault("http.addr", server.DefaultAddr)
	v.SetDefault("vault_dir", server.DefaultVaultDir)
	v.SetDefault("db_path", server.DefaultDBPath)
	v.SetDefault("rate_limit", server.DefaultRateLimit)
	v.SetDefault("log_file", server.DefaultLogFilePath)
	v.SetDefault("blob.backend", "disk")
	// registered so env overrides unmarshal into nested keys
	for _, key := range []string{
		"api_key", "http.cert_file", "http.key_file", "blob.dir",
		"blob.s3.bucket_name", "blob.s3.region", "blob.s3.access_key",
		"blob.s3.secret_key", "blob.s3.endpoint", "blob.s3.use_accelerate",
	} {
		v.SetDefault(key, "")
	}

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config read '%s': %w", path, err)
		}
	}

	v.BindPFlag("http.addr", cmd.Flags().Lookup("bind"))
	v.BindPFlag("http.cert_file", cmd.Flags().Lookup("cert"))
	v.BindPFlag("http.key_file", cmd.Flags().Lookup("key"))
	v.BindPFlag("vault_dir", cmd.Flags().Lookup("vault"))
	v.BindPFlag("db_path", cmd.Flags().Lookup("db"))

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg server.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	if cfg.Blob.Backend != "s3" {
		cfg.Blob.S3 = nil
	}
	return &cfg, nil
}

func logLevel(cmd *cobra.Command) slog.Level {
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
