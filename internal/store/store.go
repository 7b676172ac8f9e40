package store

import (
	"context"
	"fmt"
	"time"
)

// Store is the shared key-value cache every request handler reaches.
// A zero ttl means the entry never expires.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Ping(ctx context.Context) error
}

// WindowState describes a sliding-window counter after one attempt.
type WindowState struct {
	Allowed bool
	// Count is the number of admitted attempts inside the window, including
	// the current one when it was admitted.
	Count int
	// Reset is when the oldest counted attempt leaves the window.
	Reset time.Time
}

// WindowCounter admits an attempt for key when fewer than limit attempts
// were admitted in the trailing window. Check and record happen atomically
// in the backend so that separate processes see one counter.
type WindowCounter interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (WindowState, error)
}

// Sweeper removes expired entries and stale window records.
type Sweeper interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type Backend interface {
	Store
	WindowCounter
	Sweeper
	Close() error
}

type ErrUnsupportedBackend struct {
	Backend string
}

func (e ErrUnsupportedBackend) Error() string {
	return fmt.Sprintf("unsupported store backend: %s", e.Backend)
}

// ExpiresAt returns the absolute expiry for ttl, or the zero time when ttl
// does not expire.
func ExpiresAt(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

// ResetFor returns when a window whose oldest counted hit is oldest frees
// its next slot. An empty window resets a full window from now.
func ResetFor(oldest time.Time, now time.Time, window time.Duration) time.Time {
	if oldest.IsZero() {
		return now.Add(window)
	}
	return oldest.Add(window)
}
