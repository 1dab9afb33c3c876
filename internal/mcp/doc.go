// Package mcp connects hearthd to capability servers speaking the Model
// Context Protocol.
//
// # Overview
//
// Host keeps one client session per enabled server, built on the official
// go-sdk. On Connect it lists each server's tools and resources and caches
// them under qualified names ("server/tool"). CallTool routes an invocation
// to the owning server, reconnecting once if the session has gone away.
//
// # Server List
//
// Servers are declared in a TOML file (capabilities.servers_file):
//
//	[[server]]
//	name = "fs"
//	transport = "stdio"
//	command = ["python3", "filesystem_mcp.py"]
//	args = ["--root", "${HOME}"]
//	auto_execute = ["list_directory"]
//
//	[[server]]
//	name = "search"
//	url = "http://localhost:9000/mcp"
//
// Supported transports:
//
//   - stdio: spawn command (plus args) and speak over its stdin/stdout
//   - http: Streamable HTTP at url
//   - sse: legacy HTTP+SSE at url
//
// Server names may not contain "." or "/" because they form the first half
// of function names handed to the model. Tools listed under auto_execute are
// seeded into the authorization allow-list at startup.
package mcp
