// ABOUTME: Configuration loading and parsing for hearthd
// ABOUTME: Supports YAML files with environment variable expansion, duration parsing and defaults

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSystemPrompt is used when model.system_prompt is not set.
const DefaultSystemPrompt = "You are a helpful command-line assistant for Linux. " +
	"Use the tools available to you when they help answer the user's question, " +
	"and provide concise and practical solutions focused on the user's needs."

const (
	DefaultMaxFrameBytes = 16 << 20
	DefaultModelName     = "gemini-2.5-flash"
	DefaultMaxToolRounds = 8
)

// Config represents the complete hearthd configuration
type Config struct {
	Socket        SocketConfig        `yaml:"socket"`
	Sessions      SessionsConfig      `yaml:"sessions"`
	Database      DatabaseConfig      `yaml:"database"`
	Model         ModelConfig         `yaml:"model"`
	Capabilities  CapabilitiesConfig  `yaml:"capabilities"`
	Authorization AuthorizationConfig `yaml:"authorization"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// SocketConfig holds the Unix socket listener configuration
type SocketConfig struct {
	Path          string        `yaml:"path"`
	MaxFrameBytes int           `yaml:"max_frame_bytes"`
	ReadTimeout   time.Duration `yaml:"-"`
	WriteTimeout  time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ReadTimeoutRaw  string `yaml:"read_timeout"`
	WriteTimeoutRaw string `yaml:"write_timeout"`
}

// SessionsConfig holds session storage and expiry configuration
type SessionsConfig struct {
	// Backend is "memory" or "sqlite"
	Backend      string        `yaml:"backend"`
	Serialize    *bool         `yaml:"serialize"`
	TTL          time.Duration `yaml:"-"`
	ReapInterval time.Duration `yaml:"-"`

	TTLRaw          string `yaml:"ttl"`
	ReapIntervalRaw string `yaml:"reap_interval"`
}

// SerializeQueries reports whether queries for the same session run one at a
// time. Defaults to true.
func (s SessionsConfig) SerializeQueries() bool {
	return s.Serialize == nil || *s.Serialize
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ModelConfig holds language model configuration
type ModelConfig struct {
	Provider        string        `yaml:"provider"`
	APIKey          string        `yaml:"api_key"`
	Name            string        `yaml:"name"`
	SystemPrompt    string        `yaml:"system_prompt"`
	MaxToolRounds   int           `yaml:"max_tool_rounds"`
	LegacyTextCalls bool          `yaml:"legacy_text_calls"`
	QueryTimeout    time.Duration `yaml:"-"`

	QueryTimeoutRaw string `yaml:"query_timeout"`
}

// CapabilitiesConfig points at the capability server list
type CapabilitiesConfig struct {
	ServersFile string `yaml:"servers_file"`
}

// AuthorizationConfig controls how unknown tool executions are decided
type AuthorizationConfig struct {
	// Mode is "interactive", "allow" or "deny"
	Mode string `yaml:"mode"`
	// Persist stores always-allow decisions in the database
	Persist bool `yaml:"persist"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values and unset fields get defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse builds a Config from raw YAML.
func Parse(data []byte) (*Config, error) {
	expandedData := ExpandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExpandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func ExpandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Socket.Path == "" {
		c.Socket.Path = DefaultSocketPath()
	}
	if c.Socket.MaxFrameBytes == 0 {
		c.Socket.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if c.Socket.ReadTimeout == 0 {
		c.Socket.ReadTimeout = 30 * time.Second
	}
	if c.Socket.WriteTimeout == 0 {
		c.Socket.WriteTimeout = 30 * time.Second
	}

	if c.Sessions.Backend == "" {
		c.Sessions.Backend = "memory"
	}
	if c.Sessions.TTL == 0 {
		c.Sessions.TTL = 24 * time.Hour
	}
	if c.Sessions.ReapInterval == 0 {
		c.Sessions.ReapInterval = time.Hour
	}

	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(DataDir(), "hearth.db")
	}

	if c.Model.Provider == "" {
		c.Model.Provider = "gemini"
	}
	if c.Model.Name == "" {
		c.Model.Name = DefaultModelName
	}
	if c.Model.SystemPrompt == "" {
		c.Model.SystemPrompt = DefaultSystemPrompt
	}
	if c.Model.MaxToolRounds == 0 {
		c.Model.MaxToolRounds = DefaultMaxToolRounds
	}
	if c.Model.QueryTimeout == 0 {
		c.Model.QueryTimeout = 5 * time.Minute
	}

	if c.Capabilities.ServersFile == "" {
		c.Capabilities.ServersFile = filepath.Join(ConfigDir(), "servers.toml")
	}

	if c.Authorization.Mode == "" {
		c.Authorization.Mode = "interactive"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Socket.Path == "" {
		return fmt.Errorf("socket.path is required")
	}
	if c.Socket.MaxFrameBytes < 0 {
		return fmt.Errorf("socket.max_frame_bytes must not be negative")
	}

	switch c.Sessions.Backend {
	case "memory":
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required when sessions.backend is sqlite")
		}
	default:
		return fmt.Errorf("sessions.backend must be memory or sqlite, got %q", c.Sessions.Backend)
	}
	if c.Sessions.TTL < 0 || c.Sessions.ReapInterval < 0 {
		return fmt.Errorf("sessions durations must not be negative")
	}

	if c.Model.Provider != "gemini" {
		return fmt.Errorf("model.provider %q is not supported", c.Model.Provider)
	}
	if c.Model.MaxToolRounds < 0 {
		return fmt.Errorf("model.max_tool_rounds must not be negative")
	}

	switch c.Authorization.Mode {
	case "interactive", "allow", "deny":
	default:
		return fmt.Errorf("authorization.mode must be interactive, allow or deny, got %q", c.Authorization.Mode)
	}
	if c.Authorization.Persist && c.Database.Path == "" {
		return fmt.Errorf("database.path is required when authorization.persist is set")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not valid", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"socket.read_timeout", cfg.Socket.ReadTimeoutRaw, &cfg.Socket.ReadTimeout},
		{"socket.write_timeout", cfg.Socket.WriteTimeoutRaw, &cfg.Socket.WriteTimeout},
		{"sessions.ttl", cfg.Sessions.TTLRaw, &cfg.Sessions.TTL},
		{"sessions.reap_interval", cfg.Sessions.ReapIntervalRaw, &cfg.Sessions.ReapInterval},
		{"model.query_timeout", cfg.Model.QueryTimeoutRaw, &cfg.Model.QueryTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
