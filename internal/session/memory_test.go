// ABOUTME: Tests for the in-memory session store and session helpers
// ABOUTME: Covers expiry, sweeping, copy isolation and concurrent access

package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/hearth/internal/bridge"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := NewMemoryStore(DefaultTTL, WithClock(fixedClock(now)))

	_, err := st.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	created, err := st.Create(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", created.ID)
	assert.Equal(t, now.Add(24*time.Hour), created.ExpiresAt)
	assert.Empty(t, created.History)

	got, err := st.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, created, got)
}

func TestMemoryStore_CreateExistingReturnsStored(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore(DefaultTTL)

	first, err := st.Create(ctx, "abc")
	require.NoError(t, err)
	first.Append(Turn{Role: RoleUser, Text: "hello"})
	require.NoError(t, st.Save(ctx, first))

	again, err := st.Create(ctx, "abc")
	require.NoError(t, err)
	require.Len(t, again.History, 1)
	assert.Equal(t, 1, st.Len())
}

func TestMemoryStore_CopiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore(DefaultTTL)

	sess, err := st.Create(ctx, "abc")
	require.NoError(t, err)
	sess.Append(Turn{Role: RoleUser, Text: "unsaved"})

	stored, err := st.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Empty(t, stored.History, "mutating a returned copy must not reach the store")

	sess.Append(Turn{Role: RoleModel, Calls: []bridge.FunctionCall{{Name: "fs.list", Arguments: []byte(`{}`)}}})
	require.NoError(t, st.Save(ctx, sess))
	sess.History[1].Calls[0].Arguments[0] = 'X'

	stored, err = st.Get(ctx, "abc")
	require.NoError(t, err)
	require.Len(t, stored.History, 2)
	assert.Equal(t, `{}`, string(stored.History[1].Calls[0].Arguments))
}

func TestMemoryStore_SweepExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := NewMemoryStore(time.Hour, WithClock(fixedClock(now)))

	_, err := st.Create(ctx, "old")
	require.NoError(t, err)

	fresh, err := st.Create(ctx, "fresh")
	require.NoError(t, err)
	fresh.Touch(now.Add(2*time.Hour), time.Hour)
	require.NoError(t, st.Save(ctx, fresh))

	// "old" expires exactly at now+1h, which counts as expired.
	sweepAt := now.Add(time.Hour)
	removed, err := st.SweepExpired(ctx, sweepAt)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = st.SweepExpired(ctx, sweepAt)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	_, err = st.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestMemoryStore_List(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	st := NewMemoryStore(DefaultTTL, WithClock(func() time.Time { return clock }))

	for i, id := range []string{"c", "a", "b"} {
		clock = base.Add(time.Duration(i) * time.Second)
		_, err := st.Create(ctx, id)
		require.NoError(t, err)
	}

	list, err := st.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "a", list[1].ID)
	assert.Equal(t, "b", list[2].ID)
}

func TestMemoryStore_ConcurrentDistinctSessions(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := NewMemoryStore(DefaultTTL, WithClock(fixedClock(now)))

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("sess-%d", i)
			sess, err := GetOrCreate(ctx, st, id)
			if !assert.NoError(t, err) {
				return
			}
			sess.Append(Turn{Role: RoleUser, Text: id})
			assert.NoError(t, st.Save(ctx, sess))
			_, _ = st.List(ctx)
			_, _ = st.SweepExpired(ctx, now)
		}(i)
	}
	wg.Wait()

	list, err := st.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, n)
	for _, sess := range list {
		assert.Equal(t, now.Add(DefaultTTL), sess.ExpiresAt)
		require.Len(t, sess.History, 1)
		assert.Equal(t, sess.ID, sess.History[0].Text)
	}
}

func TestSessionExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sess := New("x", now, time.Minute)

	assert.False(t, sess.Expired(now))
	assert.True(t, sess.Expired(now.Add(time.Minute)))
	assert.True(t, sess.Expired(now.Add(time.Hour)))

	sess.Touch(now.Add(time.Hour), time.Minute)
	assert.False(t, sess.Expired(now.Add(time.Hour)))
	assert.Equal(t, now.Add(time.Hour), sess.UpdatedAt)
}

func TestGetOrCreate(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore(DefaultTTL)

	first, err := GetOrCreate(ctx, st, "abc")
	require.NoError(t, err)
	second, err := GetOrCreate(ctx, st, "abc")
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, 1, st.Len())
}
