// ABOUTME: Tests for daemon wiring and lifecycle
// ABOUTME: Runs the full stack over a temp socket with a scripted model client

package daemon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389/hearth/internal/authz"
	"github.com/2389/hearth/internal/config"
	"github.com/2389/hearth/internal/ipc"
	"github.com/2389/hearth/internal/mcp"
	"github.com/2389/hearth/internal/model"
	"github.com/2389/hearth/internal/session"
)

type staticModel struct {
	text string
}

func (m staticModel) Generate(_ context.Context, req model.Request) (*model.Reply, error) {
	last := req.History[len(req.History)-1]
	return &model.Reply{Text: m.text + ": " + last.Text}, nil
}

// testConfig returns a config rooted in a temp dir with no capability servers.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Socket.Path = filepath.Join(dir, "d.sock")
	cfg.Database.Path = filepath.Join(dir, "hearth.db")
	cfg.Capabilities.ServersFile = filepath.Join(dir, "servers.toml")
	cfg.Authorization.Mode = "deny"
	return cfg
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noTransport() Option {
	return WithHostOption(mcp.WithTransportFactory(func(cfg mcp.ServerConfig) (gomcp.Transport, error) {
		return nil, errors.New("no transport in tests")
	}))
}

func TestDaemonNew_MemoryBackend(t *testing.T) {
	cfg := testConfig(t)

	d, err := New(cfg, testLogger(), WithModelClient(staticModel{}))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer d.Shutdown()

	if _, ok := d.store.(*session.MemoryStore); !ok {
		t.Errorf("store = %T, want *session.MemoryStore", d.store)
	}
	if d.sqlStore != nil {
		t.Error("sqlite store should not be opened for the memory backend")
	}
	if d.SocketPath() != cfg.Socket.Path {
		t.Errorf("SocketPath() = %q, want %q", d.SocketPath(), cfg.Socket.Path)
	}
	if _, err := os.Stat(cfg.Database.Path); !os.IsNotExist(err) {
		t.Error("database file should not be created")
	}
}

func TestDaemonNew_SQLiteSeedsAutoExecute(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sessions.Backend = "sqlite"
	cfg.Authorization.Persist = true

	servers := `
[[server]]
name = "fs"
command = ["python3", "filesystem_mcp.py"]
auto_execute = ["list_directory", "read_file"]
`
	if err := os.WriteFile(cfg.Capabilities.ServersFile, []byte(servers), 0644); err != nil {
		t.Fatal(err)
	}

	d, err := New(cfg, testLogger(), WithModelClient(staticModel{}), noTransport())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer d.Shutdown()

	if d.sqlStore == nil {
		t.Fatal("sqlite store should be opened")
	}
	if d.store != session.Store(d.sqlStore) {
		t.Error("sessions should be stored in sqlite")
	}

	ctx := context.Background()
	for _, tool := range []string{"list_directory", "read_file"} {
		verdict, err := d.gate.Authorize(ctx, "fs", tool)
		if err != nil {
			t.Fatalf("Authorize(fs, %s): %v", tool, err)
		}
		if verdict != authz.Allowed {
			t.Errorf("fs/%s verdict = %v, want allowed", tool, verdict)
		}
	}

	allowed, err := d.sqlStore.ListAlwaysAllowed(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(allowed) != 2 {
		t.Errorf("persisted allow-list = %v, want 2 entries", allowed)
	}

	verdict, _ := d.gate.Authorize(ctx, "fs", "delete")
	if verdict != authz.MustPrompt {
		t.Error("tools outside auto_execute must still prompt")
	}
}

func TestDaemonNew_PersistWithMemorySessions(t *testing.T) {
	cfg := testConfig(t)
	cfg.Authorization.Persist = true

	d, err := New(cfg, testLogger(), WithModelClient(staticModel{}))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer d.Shutdown()

	if _, ok := d.store.(*session.MemoryStore); !ok {
		t.Errorf("store = %T, want *session.MemoryStore", d.store)
	}
	if d.sqlStore == nil {
		t.Fatal("sqlite store should be opened for persisted approvals")
	}

	ctx := context.Background()
	if err := d.gate.AddAlways(ctx, "fs", "read_file"); err != nil {
		t.Fatalf("AddAlways: %v", err)
	}
	allowed, err := d.sqlStore.ListAlwaysAllowed(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(allowed) != 1 || allowed[0] != "fs/read_file" {
		t.Errorf("persisted allow-list = %v, want [fs/read_file]", allowed)
	}
}

func TestDaemonNew_BadServersFile(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(cfg.Capabilities.ServersFile, []byte("[[server]]\nname = \"a.b\"\ncommand = [\"x\"]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := New(cfg, testLogger(), WithModelClient(staticModel{})); err == nil {
		t.Fatal("expected error for invalid server name")
	}
}

func TestDaemonRun_ServesQueries(t *testing.T) {
	cfg := testConfig(t)

	d, err := New(cfg, testLogger(), WithModelClient(staticModel{text: "model says"}))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case <-d.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("Run exited early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("daemon did not become ready")
	}

	client := ipc.NewClient(cfg.Socket.Path)
	if err := client.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	resp, err := client.Query(ctx, "hello", "")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %s", *resp.Error)
	}
	if resp.Response != "model says: hello" {
		t.Errorf("Response = %q", resp.Response)
	}
	if resp.SessionID == nil || *resp.SessionID == "" {
		t.Fatal("expected a session id")
	}

	ids, err := client.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(ids) != 1 || ids[0] != *resp.SessionID {
		t.Errorf("ListSessions = %v, want [%s]", ids, *resp.SessionID)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}

	if _, err := os.Stat(cfg.Socket.Path); !os.IsNotExist(err) {
		t.Error("socket should be removed after shutdown")
	}
}

func TestNewDecider(t *testing.T) {
	ctx := context.Background()
	req := authz.Request{Server: "fs", Tool: "read_file"}

	tests := []struct {
		mode string
		want authz.Decision
	}{
		{"allow", authz.AllowOnce},
		{"deny", authz.DenyOnce},
		{"interactive", authz.AllowOnce},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			decider, err := newDecider(tt.mode, strings.NewReader("y\n"), io.Discard)
			if err != nil {
				t.Fatalf("newDecider(%q): %v", tt.mode, err)
			}
			got, err := decider.Decide(ctx, req)
			if err != nil {
				t.Fatalf("Decide: %v", err)
			}
			if got != tt.want {
				t.Errorf("Decide() = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := newDecider("maybe", nil, nil); err == nil {
		t.Error("expected error for unknown mode")
	}
}
