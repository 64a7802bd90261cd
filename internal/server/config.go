package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openmined/vaultsync/internal/server/blob"
	"github.com/openmined/vaultsync/internal/utils"
	"github.com/ulule/limiter/v3"
)

const (
	DefaultAddr      = "127.0.0.1:8080"
	DefaultRateLimit = "100-S"
)

var (
	home, _            = os.UserHomeDir()
	DefaultDataDir     = filepath.Join(home, ".vaultsync-server")
	DefaultVaultDir    = filepath.Join(DefaultDataDir, "vault")
	DefaultDBPath      = filepath.Join(DefaultDataDir, "ledger.db")
	DefaultLogFilePath = filepath.Join(DefaultDataDir, "logs", "server.log")
)

type Config struct {
	HTTP      HTTPConfig  `mapstructure:"http"`
	APIKey    string      `mapstructure:"api_key"`
	DBPath    string      `mapstructure:"db_path"`
	VaultDir  string      `mapstructure:"vault_dir"`
	Blob      blob.Config `mapstructure:"blob"`
	RateLimit string      `mapstructure:"rate_limit"`
	LogFile   string      `mapstructure:"log_file"`
}

type HTTPConfig struct {
	Addr     string `mapstructure:"addr"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// Validate fills in defaults and resolves paths. The disk blob backend keeps
// content under the vault dir unless blob.dir says otherwise.
func (c *Config) Validate() error {
	var err error

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultAddr
	}
	if (c.HTTP.CertFile == "") != (c.HTTP.KeyFile == "") {
		return errors.New("http cert_file and key_file must be set together")
	}

	if c.VaultDir == "" {
		c.VaultDir = DefaultVaultDir
	}
	if c.VaultDir, err = utils.ResolvePath(c.VaultDir); err != nil {
		return fmt.Errorf("vault dir: %w", err)
	}

	if c.DBPath == "" {
		c.DBPath = DefaultDBPath
	}
	if c.DBPath, err = utils.ResolvePath(c.DBPath); err != nil {
		return fmt.Errorf("db path: %w", err)
	}

	if c.Blob.Backend == "" {
		c.Blob.Backend = blob.BackendDisk
	}
	if c.Blob.Backend == blob.BackendDisk {
		if c.Blob.Dir == "" {
			c.Blob.Dir = c.VaultDir
		}
		if c.Blob.Dir, err = utils.ResolvePath(c.Blob.Dir); err != nil {
			return fmt.Errorf("blob dir: %w", err)
		}
	}
	if err := c.Blob.Validate(); err != nil {
		return err
	}

	if c.RateLimit != "" {
		if _, err := limiter.NewRateFromFormatted(c.RateLimit); err != nil {
			return fmt.Errorf("rate limit %q: %w", c.RateLimit, err)
		}
	}

	return nil
}
