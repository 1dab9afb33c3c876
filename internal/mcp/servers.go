// ABOUTME: Loads the capability server list from a TOML file
// ABOUTME: Expands ${VAR} references, validates names and drops disabled servers

package mcp

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/2389/hearth/internal/config"
)

// Transport names accepted in the servers file.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
	TransportSSE   = "sse"
)

// ServerConfig describes one capability server.
//
//	[[server]]
//	name = "fs"
//	command = ["python3", "filesystem_mcp.py"]
//	auto_execute = ["list_directory"]
type ServerConfig struct {
	Name      string `toml:"name"`
	Enabled   *bool  `toml:"enabled"`
	Transport string `toml:"transport"`

	// stdio
	Command []string          `toml:"command"`
	Args    []string          `toml:"args"`
	Env     map[string]string `toml:"env"`

	// http and sse
	URL     string            `toml:"url"`
	Headers map[string]string `toml:"headers"`

	// AutoExecute lists tools on this server that never need confirmation.
	AutoExecute []string `toml:"auto_execute"`
}

// IsEnabled reports whether the server should be started. Servers are enabled
// unless the file says otherwise.
func (c ServerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// EffectiveTransport infers the transport when none is given.
func (c ServerConfig) EffectiveTransport() string {
	if c.Transport != "" {
		return c.Transport
	}
	if c.URL != "" {
		return TransportHTTP
	}
	return TransportStdio
}

// Validate checks the fields required by the server's transport.
func (c ServerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("server name is required")
	}
	if strings.ContainsAny(c.Name, "./") {
		return fmt.Errorf("server name %q must not contain '.' or '/'", c.Name)
	}

	switch c.EffectiveTransport() {
	case TransportStdio:
		if len(c.Command) == 0 || c.Command[0] == "" {
			return fmt.Errorf("server %q: stdio transport requires command", c.Name)
		}
	case TransportHTTP, TransportSSE:
		if c.URL == "" {
			return fmt.Errorf("server %q: %s transport requires url", c.Name, c.EffectiveTransport())
		}
	default:
		return fmt.Errorf("server %q: unknown transport %q", c.Name, c.Transport)
	}
	return nil
}

type serversFile struct {
	Servers []ServerConfig `toml:"server"`
}

// LoadServers reads the enabled servers from the TOML file at path. A missing
// or blank file yields no servers.
func LoadServers(path string) ([]ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading servers file: %w", err)
	}

	return ParseServers(string(data))
}

// ParseServers decodes a servers file body.
func ParseServers(data string) ([]ServerConfig, error) {
	if strings.TrimSpace(data) == "" {
		return nil, nil
	}

	var file serversFile
	md, err := toml.Decode(config.ExpandEnvVars(data), &file)
	if err != nil {
		return nil, fmt.Errorf("parsing servers file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parsing servers file: unknown keys %v", undecoded)
	}

	seen := make(map[string]bool, len(file.Servers))
	var enabled []ServerConfig
	for _, srv := range file.Servers {
		if err := srv.Validate(); err != nil {
			return nil, err
		}
		if seen[srv.Name] {
			return nil, fmt.Errorf("server %q is defined more than once", srv.Name)
		}
		seen[srv.Name] = true

		if srv.IsEnabled() {
			enabled = append(enabled, srv)
		}
	}
	return enabled, nil
}
