// Package config handles configuration loading for hearthd.
//
// # Overview
//
// Configuration is loaded from a YAML file with environment variable
// expansion. Unset fields receive defaults before validation, so an empty
// file is a valid configuration.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from HEARTH_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/hearth/hearthd.yaml
//  3. ~/.config/hearth/hearthd.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	model:
//	  api_key: "${GEMINI_API_KEY}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to an empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sessions:
//	  ttl: "24h"
//	  reap_interval: "1h"
//
// # Sections
//
//   - socket: Unix socket path, frame size cap, read/write deadlines
//   - sessions: memory or sqlite backend, TTL, reap interval, per-session serialization
//   - database: SQLite file used by the sqlite backend and persisted authorization
//   - model: Gemini API key, model name, system prompt, tool round limit
//   - capabilities: path to the TOML list of capability servers
//   - authorization: interactive, allow or deny for unknown tools
//   - logging: level (debug, info, warn, error) and format (text, json)
package config
