// Package bolt keeps the backing store in a single bbolt file. The file is
// locked by the process that opens it, so this backend suits one server
// replica that sweeps its own expired entries.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/Keyring-Network/groundchat/internal/store"
)

var (
	entriesBucket = []byte("kv_entries")
	hitsBucket    = []byte("rate_limit_hits")
)

type record struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

type hitLog struct {
	Window int64   `json:"window"`
	Hits   []int64 `json:"hits"`
}

type BoltStore struct {
	db  *bbolt.DB
	now func() time.Time
}

func New(path string) (*BoltStore, error) {
	if path == "" {
		return nil, errors.New("bolt path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{entriesBucket, hitsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db, now: time.Now}, nil
}

func (b *BoltStore) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	now := b.now().UnixNano()
	err := b.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(entriesBucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			// Treat malformed rows as absent; the next Set overwrites them.
			return nil
		}
		if rec.ExpiresAt != 0 && rec.ExpiresAt <= now {
			return nil
		}
		value, found = rec.Value, true
		return nil
	})
	return value, found, err
}

func (b *BoltStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	rec := record{Value: value}
	if expires := store.ExpiresAt(b.now(), ttl); !expires.IsZero() {
		rec.ExpiresAt = expires.UnixNano()
	}
	encoded, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(entriesBucket).Put([]byte(key), encoded)
	})
}

func (b *BoltStore) Ping(ctx context.Context) error {
	return b.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(entriesBucket) == nil {
			return errors.New("bolt store missing kv_entries bucket")
		}
		return nil
	})
}

// Hit runs inside a write transaction; bbolt allows one writer at a time so
// check and record cannot interleave.
func (b *BoltStore) Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (store.WindowState, error) {
	var state store.WindowState
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(hitsBucket)
		log := decodeHitLog(bucket.Get([]byte(key)))
		log.Window = int64(window)
		log.Hits = pruneHits(log.Hits, now.Add(-window).UnixNano())

		state = store.WindowState{Count: len(log.Hits)}
		if len(log.Hits) < limit {
			log.Hits = append(log.Hits, now.UnixNano())
			state.Allowed = true
			state.Count = len(log.Hits)
		}

		var oldest time.Time
		if len(log.Hits) > 0 {
			oldest = time.Unix(0, log.Hits[0])
		}
		state.Reset = store.ResetFor(oldest, now, window)

		if len(log.Hits) == 0 {
			return bucket.Delete([]byte(key))
		}
		encoded, err := json.Marshal(log)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), encoded)
	})
	if err != nil {
		return store.WindowState{}, err
	}
	return state, nil
}

// PurgeExpired drops expired entries and window logs whose newest hit has
// left its window. Malformed rows are dropped too.
func (b *BoltStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var removed int64
	cutoff := now.UnixNano()
	err := b.db.Update(func(tx *bbolt.Tx) error {
		entries := tx.Bucket(entriesBucket)
		var stale [][]byte
		err := entries.ForEach(func(k, v []byte) error {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil || (rec.ExpiresAt != 0 && rec.ExpiresAt <= cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		hits := tx.Bucket(hitsBucket)
		var idle [][]byte
		err = hits.ForEach(func(k, v []byte) error {
			log := decodeHitLog(v)
			if len(log.Hits) == 0 || log.Hits[len(log.Hits)-1]+log.Window <= cutoff {
				idle = append(idle, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range stale {
			if err := entries.Delete(k); err != nil {
				return err
			}
		}
		for _, k := range idle {
			if err := hits.Delete(k); err != nil {
				return err
			}
		}
		removed = int64(len(stale) + len(idle))
		return nil
	})
	return removed, err
}

func (b *BoltStore) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// decodeHitLog treats a missing or malformed log as empty.
func decodeHitLog(raw []byte) hitLog {
	var log hitLog
	if raw == nil {
		return log
	}
	if err := json.Unmarshal(raw, &log); err != nil {
		return hitLog{}
	}
	return log
}

func pruneHits(hits []int64, cutoff int64) []int64 {
	kept := hits[:0]
	for _, hit := range hits {
		if hit > cutoff {
			kept = append(kept, hit)
		}
	}
	return kept
}
