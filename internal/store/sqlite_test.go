// ABOUTME: Tests for the SQLite session store and allow-list
// ABOUTME: Covers session CRUD, expiry sweeps, history round-trips and migrations

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/hearth/internal/bridge"
	"github.com/2389/hearth/internal/session"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath, 0)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if store.ttl != session.DefaultTTL {
		t.Errorf("ttl = %v, want %v", store.ttl, session.DefaultTTL)
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath, 0)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestNewSQLiteStore_Memory(t *testing.T) {
	store, err := NewSQLiteStore(":memory:", time.Hour)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := store.Create(context.Background(), "abc"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
}

func TestCreateAndGetSession(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	ctx := context.Background()
	created, err := store.Create(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !created.ExpiresAt.Equal(now.Add(24 * time.Hour)) {
		t.Errorf("ExpiresAt = %v, want %v", created.ExpiresAt, now.Add(24*time.Hour))
	}

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != "sess-1" {
		t.Errorf("ID = %q, want %q", got.ID, "sess-1")
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now)
	}
	if len(got.History) != 0 {
		t.Errorf("expected empty history, got %d turns", len(got.History))
	}
}

func TestGetSession_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "nonexistent")
	if !errors.Is(err, session.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateSession_ExistingIsKept(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	sess.Append(session.Turn{Role: session.RoleUser, Text: "hi"})
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	again, err := store.Create(ctx, "sess-1")
	if err != nil {
		t.Fatalf("second Create failed: %v", err)
	}
	if len(again.History) != 1 {
		t.Errorf("expected existing history to survive, got %d turns", len(again.History))
	}
}

func TestSaveSession_HistoryRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	sess.Append(
		session.Turn{Role: session.RoleUser, Text: "list files"},
		session.Turn{Role: session.RoleModel, Calls: []bridge.FunctionCall{
			{ID: "c1", Name: "fs.list", Arguments: []byte(`{"path":"/tmp"}`)},
		}},
		session.Turn{Role: session.RoleTool, Results: []session.ToolResult{
			{CallID: "c1", Name: "fs.list", Output: "a.txt"},
		}},
		session.Turn{Role: session.RoleModel, Text: "There is a.txt"},
	)
	later := sess.CreatedAt.Add(time.Hour)
	sess.Touch(later, 24*time.Hour)

	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.History) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(got.History))
	}
	if got.History[1].Calls[0].Name != "fs.list" {
		t.Errorf("call name = %q", got.History[1].Calls[0].Name)
	}
	if string(got.History[1].Calls[0].Arguments) != `{"path":"/tmp"}` {
		t.Errorf("call arguments = %s", got.History[1].Calls[0].Arguments)
	}
	if got.History[2].Results[0].Output != "a.txt" {
		t.Errorf("result output = %q", got.History[2].Results[0].Output)
	}
	if !got.ExpiresAt.Equal(later.Add(24 * time.Hour)) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, later.Add(24*time.Hour))
	}
	if !got.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, later)
	}
}

func TestListSessions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"c", "a", "b"} {
		ts := base.Add(time.Duration(i) * time.Minute)
		store.now = func() time.Time { return ts }
		if _, err := store.Create(ctx, id); err != nil {
			t.Fatalf("Create(%s) failed: %v", id, err)
		}
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(list))
	}
	want := []string{"c", "a", "b"}
	for i, sess := range list {
		if sess.ID != want[i] {
			t.Errorf("list[%d] = %q, want %q", i, sess.ID, want[i])
		}
	}
}

func TestSweepExpired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	store.ttl = time.Hour

	for _, id := range []string{"old-1", "old-2"} {
		if _, err := store.Create(ctx, id); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	fresh, err := store.Create(ctx, "fresh")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	fresh.Touch(now.Add(30*time.Minute), time.Hour)
	if err := store.Save(ctx, fresh); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	sweepAt := now.Add(time.Hour)
	removed, err := store.SweepExpired(ctx, sweepAt)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	removed, err = store.SweepExpired(ctx, sweepAt)
	if err != nil {
		t.Fatalf("second SweepExpired failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("second sweep removed = %d, want 0", removed)
	}

	if _, err := store.Get(ctx, "fresh"); err != nil {
		t.Errorf("fresh session should survive: %v", err)
	}
}

func TestConcurrentCreate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := session.GetOrCreate(ctx, store, fmt.Sprintf("sess-%d", i))
			if err != nil {
				errs <- err
				return
			}
			errs <- store.Save(ctx, sess)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent create failed: %v", err)
		}
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != n {
		t.Errorf("expected %d sessions, got %d", n, len(list))
	}
}

func TestAlwaysAllow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ok, err := store.IsAlwaysAllowed(ctx, "fs", "read_file")
	if err != nil {
		t.Fatalf("IsAlwaysAllowed failed: %v", err)
	}
	if ok {
		t.Error("pair should not be allowed before AddAlwaysAllow")
	}

	if err := store.AddAlwaysAllow(ctx, "fs", "read_file"); err != nil {
		t.Fatalf("AddAlwaysAllow failed: %v", err)
	}
	if err := store.AddAlwaysAllow(ctx, "fs", "read_file"); err != nil {
		t.Fatalf("duplicate AddAlwaysAllow failed: %v", err)
	}
	if err := store.AddAlwaysAllow(ctx, "command", "run"); err != nil {
		t.Fatalf("AddAlwaysAllow failed: %v", err)
	}

	ok, err = store.IsAlwaysAllowed(ctx, "fs", "read_file")
	if err != nil {
		t.Fatalf("IsAlwaysAllowed failed: %v", err)
	}
	if !ok {
		t.Error("pair should be allowed after AddAlwaysAllow")
	}

	ok, err = store.IsAlwaysAllowed(ctx, "fs", "write_file")
	if err != nil {
		t.Fatalf("IsAlwaysAllowed failed: %v", err)
	}
	if ok {
		t.Error("other tools on the same server must stay unknown")
	}

	pairs, err := store.ListAlwaysAllowed(ctx)
	if err != nil {
		t.Fatalf("ListAlwaysAllowed failed: %v", err)
	}
	if len(pairs) != 2 || pairs[0] != "command/run" || pairs[1] != "fs/read_file" {
		t.Errorf("ListAlwaysAllowed = %v", pairs)
	}
}

func TestAlwaysAllow_SurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(dbPath, 0)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := store.AddAlwaysAllow(ctx, "fs", "read_file"); err != nil {
		t.Fatalf("AddAlwaysAllow failed: %v", err)
	}
	store.Close()

	reopened, err := NewSQLiteStore(dbPath, 0)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	ok, err := reopened.IsAlwaysAllowed(ctx, "fs", "read_file")
	if err != nil {
		t.Fatalf("IsAlwaysAllowed failed: %v", err)
	}
	if !ok {
		t.Error("always-allow should persist across reopen")
	}
}

func TestMigrations_AddUpdatedAt(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")

	legacy, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("opening legacy db: %v", err)
	}
	_, err = legacy.Exec(`
		CREATE TABLE sessions (
			id         TEXT PRIMARY KEY,
			history    TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			expires_at TEXT NOT NULL
		);
		INSERT INTO sessions (id, history, created_at, expires_at)
		VALUES ('legacy', '[]', '2026-03-01T12:00:00Z', '2026-03-02T12:00:00Z');
	`)
	if err != nil {
		t.Fatalf("creating legacy schema: %v", err)
	}
	legacy.Close()

	store, err := NewSQLiteStore(dbPath, 0)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	got, err := store.Get(context.Background(), "legacy")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.UpdatedAt.Equal(got.CreatedAt) {
		t.Errorf("UpdatedAt should fall back to CreatedAt, got %v", got.UpdatedAt)
	}
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath, 0)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}
