package ratelimit

import (
	"context"
	"time"

	"github.com/Keyring-Network/groundchat/internal/store"
)

const (
	KeyPrefix     = "ratelimit:"
	DefaultLimit  = 20
	DefaultWindow = 60 * time.Second
)

// Result mirrors the headers returned to clients.
type Result struct {
	Success   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter admits at most limit attempts per identity in any trailing window.
// The count lives in the shared store so every replica sees the same state.
type Limiter struct {
	counter store.WindowCounter
	limit   int
	window  time.Duration
	now     func() time.Time
}

func New(counter store.WindowCounter, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{counter: counter, limit: limit, window: window, now: time.Now}
}

func (l *Limiter) Limit(ctx context.Context, identity string) (Result, error) {
	state, err := l.counter.Hit(ctx, KeyPrefix+identity, l.limit, l.window, l.now())
	if err != nil {
		return Result{}, err
	}
	remaining := l.limit - state.Count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Success:   state.Allowed,
		Limit:     l.limit,
		Remaining: remaining,
		Reset:     state.Reset,
	}, nil
}
