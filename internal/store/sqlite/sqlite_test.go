package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Keyring-Network/groundchat/internal/store"
)

var _ store.Backend = (*SQLiteStore)(nil)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "nested", "groundchat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New("")
	require.EqualError(t, err, "sqlite path required")
}

func TestSetGet(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	_, ok, err := st.Get(ctx, "conversation:default")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, st.Set(ctx, "conversation:default", `[{"role":"user","content":"hi"}]`, 24*time.Hour))
	value, ok, err := st.Get(ctx, "conversation:default")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `[{"role":"user","content":"hi"}]`, value)

	require.NoError(t, st.Set(ctx, "conversation:default", `[]`, 24*time.Hour))
	value, _, err = st.Get(ctx, "conversation:default")
	require.NoError(t, err)
	require.Equal(t, `[]`, value)
}

func TestGet_Expired(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return base }

	require.NoError(t, st.Set(ctx, "scraped:https://example.com", "text", time.Hour))
	require.NoError(t, st.Set(ctx, "pinned", "text", 0))

	st.now = func() time.Time { return base.Add(time.Hour) }
	_, ok, err := st.Get(ctx, "scraped:https://example.com")
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = st.Get(ctx, "pinned")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestHit_SlidingWindow(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 20; i++ {
		state, err := st.Hit(ctx, "ratelimit:127.0.0.1", 20, time.Minute, start.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.True(t, state.Allowed, "attempt %d", i+1)
		require.Equal(t, i+1, state.Count)
	}

	state, err := st.Hit(ctx, "ratelimit:127.0.0.1", 20, time.Minute, start.Add(30*time.Second))
	require.NoError(t, err)
	require.False(t, state.Allowed)
	require.Equal(t, 20, state.Count)
	require.True(t, state.Reset.Equal(start.Add(time.Minute)))

	state, err = st.Hit(ctx, "ratelimit:127.0.0.1", 20, time.Minute, start.Add(2*time.Minute))
	require.NoError(t, err)
	require.True(t, state.Allowed)
	require.Equal(t, 1, state.Count)
}

func TestHit_Concurrent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	now := time.Now()

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state, err := st.Hit(ctx, "ratelimit:shared", 20, time.Minute, now)
			if err != nil {
				t.Errorf("hit: %v", err)
				return
			}
			if state.Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 20, admitted)
}

func TestPurgeExpired(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return base }

	require.NoError(t, st.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, st.Set(ctx, "b", "2", time.Hour))
	require.NoError(t, st.Set(ctx, "c", "3", 0))
	_, err := st.Hit(ctx, "ratelimit:x", 5, time.Minute, base)
	require.NoError(t, err)

	removed, err := st.PurgeExpired(ctx, base.Add(10*time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)

	_, ok, err := st.Get(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPing(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Ping(context.Background()))
}

func TestHit_WaitsForWriterInAnotherStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")
	server, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Close() })
	worker, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = worker.Close() })

	tx, err := worker.db.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, `INSERT INTO kv_entries (key, value, expires_at) VALUES ('held', 'v', NULL)`)
	require.NoError(t, err)

	committed := make(chan error, 1)
	go func() {
		time.Sleep(200 * time.Millisecond)
		committed <- tx.Commit()
	}()

	state, err := server.Hit(ctx, "ratelimit:127.0.0.1", 20, time.Minute, time.Now())
	require.NoError(t, err)
	require.True(t, state.Allowed)
	require.Equal(t, 1, state.Count)
	require.NoError(t, <-committed)

	require.NoError(t, server.Set(ctx, "conversation:default", "[]", time.Hour))
	value, ok, err := worker.Get(ctx, "held")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", value)
}

func TestNew_UsesWriteAheadLog(t *testing.T) {
	st := newTestStore(t)
	var mode string
	require.NoError(t, st.db.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&mode))
	require.Equal(t, "wal", mode)
}
