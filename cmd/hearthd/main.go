// ABOUTME: Entry point for hearthd, the local assistant daemon
// ABOUTME: Serves queries over a Unix socket and brokers capability server tools

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/hearth/internal/config"
	"github.com/2389/hearth/internal/daemon"
	"github.com/2389/hearth/internal/logging"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  _                     _   _     _
 | |__   ___  __ _ _ __| |_| |__ | |
 | '_ \ / _ \/ _' | '__| __| '_ \| |
 | | | |  __/ (_| | |  | |_| | | |_|
 |_| |_|\___|\__,_|_|   \__|_| |_(_)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: hearthd <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve      Start the daemon")
		fmt.Println("  init       Create a new config file interactively")
		fmt.Println("  version    Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.Path()

	cyan := color.New(color.FgCyan)
	cyan.Fprint(os.Stderr, banner)

	gray := color.New(color.FgHiBlack)
	gray.Fprintf(os.Stderr, "    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		color.New(color.FgYellow).Fprintf(os.Stderr, "    no config at %s, using defaults\n\n", configPath)
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.New(cfg.Logging, os.Stderr)

	green := color.New(color.FgGreen)
	startupLine := func(label, value string) {
		green.Fprint(os.Stderr, "    ▶ ")
		fmt.Fprintf(os.Stderr, "%-11s%s\n", label+":", value)
	}
	startupLine("Config", configPath)
	startupLine("Socket", cfg.Socket.Path)
	startupLine("Sessions", fmt.Sprintf("%s (ttl %s)", cfg.Sessions.Backend, cfg.Sessions.TTL))
	startupLine("Model", cfg.Model.Provider+"/"+cfg.Model.Name)
	startupLine("Servers", cfg.Capabilities.ServersFile)
	startupLine("Approvals", cfg.Authorization.Mode)
	fmt.Fprintln(os.Stderr)

	logger.Info("starting hearthd",
		"config", configPath,
		"socket", cfg.Socket.Path,
		"version", version,
	)

	d, err := daemon.New(cfg, logger, daemon.WithVersion(version))
	if err != nil {
		return fmt.Errorf("creating daemon: %w", err)
	}

	return d.Run(ctx)
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("hearthd configuration setup")
	fmt.Println("===========================")
	fmt.Println()

	defaultConfigPath := config.Path()
	defaultDBPath := filepath.Join(config.DataDir(), "hearth.db")

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Socket ---")
	socketPath := prompt(reader, "Socket path", config.DefaultSocketPath())

	fmt.Println("\n--- Sessions ---")
	backend := prompt(reader, "Session backend (memory/sqlite)", "memory")
	dbPath := prompt(reader, "SQLite database path", defaultDBPath)

	fmt.Println("\n--- Model ---")
	modelName := prompt(reader, "Gemini model", config.DefaultModelName)
	apiKey := prompt(reader, "API key (leave empty to use ${GEMINI_API_KEY})", "")

	fmt.Println("\n--- Capabilities ---")
	serversFile := prompt(reader, "Capability servers file", filepath.Join(config.ConfigDir(), "servers.toml"))
	mode := prompt(reader, "Approval mode (interactive/allow/deny)", "interactive")
	persist := isYes(prompt(reader, "Remember 'always' approvals across restarts?", "no"))

	fmt.Println("\n--- Logging ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	if apiKey == "" {
		apiKey = "${GEMINI_API_KEY}"
	}

	var cfg strings.Builder
	cfg.WriteString("# hearthd configuration\n")
	cfg.WriteString("# Generated by hearthd init\n\n")

	cfg.WriteString("socket:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", socketPath))
	cfg.WriteString("  read_timeout: \"30s\"\n")
	cfg.WriteString("  write_timeout: \"30s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("sessions:\n")
	cfg.WriteString(fmt.Sprintf("  backend: \"%s\"\n", backend))
	cfg.WriteString("  ttl: \"24h\"\n")
	cfg.WriteString("  reap_interval: \"1h\"\n")
	cfg.WriteString("  serialize: true\n")
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("model:\n")
	cfg.WriteString("  provider: \"gemini\"\n")
	cfg.WriteString(fmt.Sprintf("  name: \"%s\"\n", modelName))
	cfg.WriteString(fmt.Sprintf("  api_key: \"%s\"\n", apiKey))
	cfg.WriteString("  max_tool_rounds: 8\n")
	cfg.WriteString("  query_timeout: \"5m\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("capabilities:\n")
	cfg.WriteString(fmt.Sprintf("  servers_file: \"%s\"\n", serversFile))
	cfg.WriteString("\n")

	cfg.WriteString("authorization:\n")
	cfg.WriteString(fmt.Sprintf("  mode: \"%s\"\n", mode))
	cfg.WriteString(fmt.Sprintf("  persist: %t\n", persist))
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	if _, err := config.Parse([]byte(cfg.String())); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	if _, err := os.Stat(serversFile); os.IsNotExist(err) {
		fmt.Printf("No capability servers yet; add [[server]] entries to %s\n", serversFile)
	}
	fmt.Println("\nTo start the daemon:")
	fmt.Printf("  hearthd serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func isYes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}
