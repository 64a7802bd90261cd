package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/openmined/vaultsync/internal/client/localstore"
	"github.com/openmined/vaultsync/internal/client/remote"
	"github.com/openmined/vaultsync/internal/client/sync"
	"github.com/openmined/vaultsync/internal/utils"
	"github.com/spf13/viper"
)

const (
	BackendServer = "server"
	BackendTree   = "tree"
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigPath  = filepath.Join(home, ".vaultsync", "config.json")
	DefaultDataDir     = filepath.Join(home, ".vaultsync")
	DefaultLogFilePath = filepath.Join(home, ".vaultsync", "logs", "vaultsync.log")
)

var (
	DefaultAutoSyncInterval = 5 * time.Minute
	DefaultDebounceDelay    = sync.DefaultDebounceDelay
)

var ErrInvalid = errors.New("invalid config")

type TreeConfig struct {
	APIURL string `json:"api_url,omitempty"`
	Owner  string `json:"owner,omitempty"`
	Repo   string `json:"repo,omitempty"`
	Branch string `json:"branch,omitempty"`
	Token  string `json:"token,omitempty"`
}

type Config struct {
	ServerURL          string        `json:"server_url,omitempty"`
	APIKey             string        `json:"api_key,omitempty"`
	VaultDir           string        `json:"vault_dir"`
	DataDir            string        `json:"data_dir"`
	Backend            string        `json:"backend"`
	Tree               TreeConfig    `json:"tree,omitempty"`
	ConflictResolution string        `json:"conflict_resolution"`
	SyncDeletes        bool          `json:"sync_deletes"`
	UseTrash           bool          `json:"use_trash_for_deletes"`
	ForcePushMode      bool          `json:"force_push_mode"`
	AutoSyncInterval   time.Duration `json:"auto_sync_interval"`
	DebounceDelay      time.Duration `json:"debounce_delay"`
	ExcludedFolders    []string      `json:"excluded_folders"`
	NoSyncFile         string        `json:"nosync_file"`
	StateBackend       string        `json:"state_backend"`
	ListenEvents       bool          `json:"listen_events"`
	LogFile            string        `json:"log_file,omitempty"`
	Path               string        `json:"-"`
}

// SetDefaults registers the default of every setting on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("backend", BackendServer)
	v.SetDefault("data_dir", DefaultDataDir)
	v.SetDefault("tree.branch", "main")
	v.SetDefault("tree.api_url", remote.DefaultTreeAPIURL)
	v.SetDefault("conflict_resolution", string(sync.PolicyLastWriteWins))
	v.SetDefault("sync_deletes", true)
	v.SetDefault("use_trash_for_deletes", true)
	v.SetDefault("force_push_mode", false)
	v.SetDefault("auto_sync_interval", DefaultAutoSyncInterval)
	v.SetDefault("debounce_delay", DefaultDebounceDelay)
	v.SetDefault("excluded_folders", localstore.DefaultExcludedFolders)
	v.SetDefault("nosync_file", localstore.DefaultNoSyncFile)
	v.SetDefault("state_backend", sync.StateBackendSqlite)
	v.SetDefault("listen_events", true)
	v.SetDefault("log_file", DefaultLogFilePath)
}

// FromViper builds a Config from the settings in v. The result is not
// validated.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Path:               v.ConfigFileUsed(),
		ServerURL:          v.GetString("server_url"),
		APIKey:             v.GetString("api_key"),
		VaultDir:           v.GetString("vault_dir"),
		DataDir:            v.GetString("data_dir"),
		Backend:            v.GetString("backend"),
		ConflictResolution: v.GetString("conflict_resolution"),
		SyncDeletes:        v.GetBool("sync_deletes"),
		UseTrash:           v.GetBool("use_trash_for_deletes"),
		ForcePushMode:      v.GetBool("force_push_mode"),
		AutoSyncInterval:   v.GetDuration("auto_sync_interval"),
		DebounceDelay:      v.GetDuration("debounce_delay"),
		ExcludedFolders:    v.GetStringSlice("excluded_folders"),
		NoSyncFile:         v.GetString("nosync_file"),
		StateBackend:       v.GetString("state_backend"),
		ListenEvents:       v.GetBool("listen_events"),
		LogFile:            v.GetString("log_file"),
		Tree: TreeConfig{
			APIURL: v.GetString("tree.api_url"),
			Owner:  v.GetString("tree.owner"),
			Repo:   v.GetString("tree.repo"),
			Branch: v.GetString("tree.branch"),
			Token:  v.GetString("tree.token"),
		},
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks the settings and resolves every path to an absolute one.
// It never contacts the remote.
func (c *Config) Validate() error {
	var err error

	if c.VaultDir == "" {
		return invalid("vault dir is required")
	}
	if c.VaultDir, err = utils.ResolvePath(c.VaultDir); err != nil {
		return invalid("vault dir: %v", err)
	}

	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.DataDir, err = utils.ResolvePath(c.DataDir); err != nil {
		return invalid("data dir: %v", err)
	}

	if c.Path != "" {
		if c.Path, err = utils.ResolvePath(c.Path); err != nil {
			return invalid("config path: %v", err)
		}
	}

	switch c.Backend {
	case "", BackendServer:
		c.Backend = BackendServer
		if err := validateURL(c.ServerURL); err != nil {
			return invalid("server url: %v", err)
		}
		if c.APIKey == "" {
			return invalid("api key is required for the server backend")
		}
	case BackendTree:
		if c.Tree.Owner == "" || c.Tree.Repo == "" {
			return invalid("tree owner and repo are required")
		}
		if c.Tree.Token == "" {
			return invalid("tree token is required")
		}
		if c.Tree.APIURL != "" {
			if err := validateURL(c.Tree.APIURL); err != nil {
				return invalid("tree api url: %v", err)
			}
		}
	default:
		return invalid("unknown backend %q", c.Backend)
	}

	policy, err := sync.ParseConflictPolicy(c.ConflictResolution)
	if err != nil {
		return invalid("%v", err)
	}
	c.ConflictResolution = string(policy)

	switch c.StateBackend {
	case "":
		c.StateBackend = sync.StateBackendSqlite
	case sync.StateBackendSqlite, sync.StateBackendBolt:
	default:
		return invalid("unknown state backend %q", c.StateBackend)
	}

	if c.AutoSyncInterval < 0 {
		return invalid("auto sync interval must not be negative")
	}
	if c.DebounceDelay <= 0 {
		c.DebounceDelay = DefaultDebounceDelay
	}
	if c.NoSyncFile == "" {
		c.NoSyncFile = localstore.DefaultNoSyncFile
	}

	folders := make([]string, 0, len(c.ExcludedFolders))
	for _, f := range c.ExcludedFolders {
		f = utils.NormPath(strings.TrimSpace(f))
		if f != "" && !slices.Contains(folders, f) {
			folders = append(folders, f)
		}
	}
	c.ExcludedFolders = folders

	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// RemoteBackend builds the remote backend the settings select.
func (c *Config) RemoteBackend() (remote.Backend, error) {
	if c.Backend == BackendTree {
		return remote.NewTreeBackend(remote.TreeConfig{
			APIURL: c.Tree.APIURL,
			Owner:  c.Tree.Owner,
			Repo:   c.Tree.Repo,
			Branch: c.Tree.Branch,
			Token:  c.Tree.Token,
		})
	}
	return remote.NewServerBackend(c.ServerURL, c.APIKey)
}

// SyncOptions maps the settings onto orchestrator options.
func (c *Config) SyncOptions() sync.Options {
	opts := sync.DefaultOptions()
	opts.ConflictPolicy = sync.ConflictPolicy(c.ConflictResolution)
	opts.SyncDeletes = c.SyncDeletes
	opts.UseTrash = c.UseTrash
	return opts
}

func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Load reads a json config file, applying defaults for missing settings.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config read %q: %w", path, err)
	}
	return FromViper(v), nil
}
