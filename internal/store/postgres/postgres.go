package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Keyring-Network/groundchat/internal/store"
)

type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

var openDB = sql.Open

func New(conn string) (*PostgresStore, error) {
	db, err := openDB("pgx", conn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := verifySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db, now: time.Now}, nil
}

func verifySchema(ctx context.Context, db *sql.DB) error {
	required := []string{
		"kv_entries",
		"rate_limit_hits",
	}
	for _, table := range required {
		var regclass sql.NullString
		if err := db.QueryRowContext(ctx, "SELECT to_regclass($1)", fmt.Sprintf("public.%s", table)).Scan(&regclass); err != nil {
			return err
		}
		if !regclass.Valid {
			return fmt.Errorf("database schema missing: %s table not found (run infra/migrations/001_init.sql)", table)
		}
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	const query = `
		SELECT value
		FROM kv_entries
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)
	`
	var value string
	err := p.db.QueryRowContext(ctx, query, key, p.now().UTC()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (p *PostgresStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	const query = `
		INSERT INTO kv_entries (key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			expires_at = EXCLUDED.expires_at
	`
	_, err := p.db.ExecContext(ctx, query, key, value, nullTime(store.ExpiresAt(p.now().UTC(), ttl)))
	return err
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Hit serializes concurrent attempts on the same key with a transaction
// scoped advisory lock, so replicas sharing the database agree on the count.
func (p *PostgresStore) Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (store.WindowState, error) {
	now = now.UTC()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return store.WindowState{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
		return store.WindowState{}, err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM rate_limit_hits WHERE key = $1 AND hit_at <= $2", key, now.Add(-window)); err != nil {
		return store.WindowState{}, err
	}

	var count int
	var oldest sql.NullTime
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*), MIN(hit_at) FROM rate_limit_hits WHERE key = $1", key).Scan(&count, &oldest); err != nil {
		return store.WindowState{}, err
	}

	state := store.WindowState{Count: count}
	if count < limit {
		if _, err := tx.ExecContext(ctx, "INSERT INTO rate_limit_hits (key, hit_at, expires_at) VALUES ($1, $2, $3)", key, now, now.Add(window)); err != nil {
			return store.WindowState{}, err
		}
		state.Allowed = true
		state.Count = count + 1
		if !oldest.Valid {
			oldest = sql.NullTime{Time: now, Valid: true}
		}
	}
	if err := tx.Commit(); err != nil {
		return store.WindowState{}, err
	}

	var oldestHit time.Time
	if oldest.Valid {
		oldestHit = oldest.Time
	}
	state.Reset = store.ResetFor(oldestHit, now, window)
	return state, nil
}

func (p *PostgresStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	now = now.UTC()
	var removed int64
	result, err := p.db.ExecContext(ctx, "DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= $1", now)
	if err != nil {
		return removed, err
	}
	if affected, err := result.RowsAffected(); err == nil {
		removed += affected
	}
	result, err = p.db.ExecContext(ctx, "DELETE FROM rate_limit_hits WHERE expires_at <= $1", now)
	if err != nil {
		return removed, err
	}
	if affected, err := result.RowsAffected(); err == nil {
		removed += affected
	}
	return removed, nil
}

func (p *PostgresStore) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

func nullTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value
}
