package main

import (
	"os"
	"path/filepath"

	"github.com/openmined/vaultsync/internal/client/config"
	"github.com/openmined/vaultsync/internal/utils"
	"github.com/spf13/cobra"
)

// resolveConfigPath picks the config file: the --config flag, then
// VAULTSYNC_CONFIG_PATH, then the first existing file among the default
// path and the XDG locations. Falls back to the default path.
func resolveConfigPath(cmd *cobra.Command) string {
	if cfgFlag := cmd.Flag("config"); cfgFlag != nil && cfgFlag.Changed {
		return cfgFlag.Value.String()
	}

	if envPath := os.Getenv("VAULTSYNC_CONFIG_PATH"); envPath != "" {
		return envPath
	}

	candidates := []string{config.DefaultConfigPath}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, "vaultsync", "config.json"))
	}
	candidates = append(candidates, filepath.Join(home, ".config", "vaultsync", "config.json"))

	for _, candidate := range candidates {
		if utils.FileExists(candidate) {
			return candidate
		}
	}

	return config.DefaultConfigPath
}
