// ABOUTME: Default filesystem locations for hearth config, data and the daemon socket
// ABOUTME: Honors HEARTH_* overrides and the XDG base directory variables

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Path returns the path to the daemon config file.
// Priority: HEARTH_CONFIG env var > XDG_CONFIG_HOME/hearth/hearthd.yaml > ~/.config/hearth/hearthd.yaml
func Path() string {
	if envPath := os.Getenv("HEARTH_CONFIG"); envPath != "" {
		return envPath
	}
	return filepath.Join(ConfigDir(), "hearthd.yaml")
}

// ConfigDir returns the hearth config directory.
func ConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "." // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "hearth")
}

// DataDir returns the hearth data directory.
// Priority: XDG_DATA_HOME/hearth > ~/.local/share/hearth
func DataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "hearth")
}

// DefaultSocketPath returns where the daemon listens when socket.path is unset.
// Priority: HEARTH_SOCKET > XDG_RUNTIME_DIR/hearth/hearthd.sock > $TMPDIR/hearth-<uid>/hearthd.sock
func DefaultSocketPath() string {
	if p := os.Getenv("HEARTH_SOCKET"); p != "" {
		return p
	}
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, "hearth", "hearthd.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("hearth-%d", os.Getuid()), "hearthd.sock")
}
