package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Keyring-Network/groundchat/internal/store"
)

const busyTimeoutMillis = 5000

const schema = `
CREATE TABLE IF NOT EXISTS kv_entries (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	expires_at INTEGER
);
CREATE INDEX IF NOT EXISTS kv_entries_expires_at_idx ON kv_entries (expires_at);
CREATE TABLE IF NOT EXISTS rate_limit_hits (
	key TEXT NOT NULL,
	hit_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS rate_limit_hits_key_hit_at_idx ON rate_limit_hits (key, hit_at);
`

// SQLiteStore is a single-node backend. Timestamps are stored as unix
// nanoseconds. One open connection serializes transactions within a process;
// across processes writers wait on the file lock for up to busyTimeoutMillis.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func New(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_entries WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, s.now().UnixNano(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	var expiresAt any
	if ttl > 0 {
		expiresAt = s.now().Add(ttl).UnixNano()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_entries (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt,
	)
	return err
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (store.WindowState, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.WindowState{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rate_limit_hits WHERE key = ? AND hit_at <= ?`, key, now.Add(-window).UnixNano()); err != nil {
		return store.WindowState{}, err
	}
	var count int
	var oldest sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*), MIN(hit_at) FROM rate_limit_hits WHERE key = ?`, key).Scan(&count, &oldest); err != nil {
		return store.WindowState{}, err
	}

	state := store.WindowState{Count: count}
	if count < limit {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rate_limit_hits (key, hit_at, expires_at) VALUES (?, ?, ?)`,
			key, now.UnixNano(), now.Add(window).UnixNano(),
		); err != nil {
			return store.WindowState{}, err
		}
		state.Allowed = true
		state.Count = count + 1
		if !oldest.Valid {
			oldest = sql.NullInt64{Int64: now.UnixNano(), Valid: true}
		}
	}
	if err := tx.Commit(); err != nil {
		return store.WindowState{}, err
	}

	var oldestHit time.Time
	if oldest.Valid {
		oldestHit = time.Unix(0, oldest.Int64)
	}
	state.Reset = store.ResetFor(oldestHit, now, window)
	return state, nil
}

func (s *SQLiteStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.UnixNano()
	var removed int64
	result, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= ?`, cutoff)
	if err != nil {
		return removed, err
	}
	if affected, err := result.RowsAffected(); err == nil {
		removed += affected
	}
	result, err = s.db.ExecContext(ctx, `DELETE FROM rate_limit_hits WHERE expires_at <= ?`, cutoff)
	if err != nil {
		return removed, err
	}
	if affected, err := result.RowsAffected(); err == nil {
		removed += affected
	}
	return removed, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// dsn enables WAL so readers do not block the writer, and makes a locked
// database wait instead of failing with SQLITE_BUSY.
func dsn(path string) string {
	return fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, busyTimeoutMillis)
}
