// ABOUTME: Tests for loading the TOML capability server list
// ABOUTME: Covers defaults, disabled servers, env expansion and validation errors

package mcp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServers_MissingFile(t *testing.T) {
	servers, err := LoadServers(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Empty(t, servers)
}

func TestLoadServers_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.toml")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0644))

	servers, err := LoadServers(path)
	require.NoError(t, err)
	assert.Empty(t, servers)
}

func TestParseServers_Valid(t *testing.T) {
	t.Setenv("TEST_FS_ROOT", "/srv/files")

	servers, err := ParseServers(`
[[server]]
name = "fs"
enabled = true
transport = "stdio"
command = ["python3", "filesystem_mcp.py"]
args = ["--root", "${TEST_FS_ROOT}"]
env = { LOG_LEVEL = "debug" }
auto_execute = ["list_directory"]

[[server]]
name = "off"
enabled = false
command = ["server2"]
auto_execute = ["tool2"]

[[server]]
name = "web"
url = "http://localhost:9000/mcp"
headers = { Authorization = "Bearer x" }
`)
	require.NoError(t, err)
	require.Len(t, servers, 2)

	fs := servers[0]
	assert.Equal(t, "fs", fs.Name)
	assert.True(t, fs.IsEnabled())
	assert.Equal(t, TransportStdio, fs.EffectiveTransport())
	assert.Equal(t, []string{"python3", "filesystem_mcp.py"}, fs.Command)
	assert.Equal(t, []string{"--root", "/srv/files"}, fs.Args)
	assert.Equal(t, "debug", fs.Env["LOG_LEVEL"])
	assert.Equal(t, []string{"list_directory"}, fs.AutoExecute)

	web := servers[1]
	assert.Equal(t, "web", web.Name)
	assert.True(t, web.IsEnabled(), "servers default to enabled")
	assert.Equal(t, TransportHTTP, web.EffectiveTransport())
	assert.Equal(t, "Bearer x", web.Headers["Authorization"])
}

func TestParseServers_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing name", "[[server]]\ncommand = [\"x\"]\n"},
		{"dotted name", "[[server]]\nname = \"a.b\"\ncommand = [\"x\"]\n"},
		{"slashed name", "[[server]]\nname = \"a/b\"\ncommand = [\"x\"]\n"},
		{"stdio without command", "[[server]]\nname = \"fs\"\n"},
		{"http without url", "[[server]]\nname = \"web\"\ntransport = \"http\"\n"},
		{"unknown transport", "[[server]]\nname = \"x\"\ntransport = \"ws\"\nurl = \"ws://x\"\n"},
		{"duplicate", "[[server]]\nname = \"fs\"\ncommand = [\"x\"]\n[[server]]\nname = \"fs\"\ncommand = [\"y\"]\n"},
		{"unknown key", "[[server]]\nname = \"fs\"\ncommand = [\"x\"]\ncolour = \"blue\"\n"},
		{"invalid toml", "[[server]\nname = "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseServers(tt.body)
			assert.Error(t, err)
		})
	}
}
