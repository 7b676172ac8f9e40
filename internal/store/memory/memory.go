package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Keyring-Network/groundchat/internal/store"
)

type entry struct {
	value     string
	expiresAt time.Time
}

type hitLog struct {
	window time.Duration
	hits   []time.Time
}

// MemoryStore keeps everything in process memory. It satisfies the store
// contracts for a single replica and for tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]entry
	windows map[string]*hitLog
	now     func() time.Time
}

func New() *MemoryStore {
	return &MemoryStore{
		entries: map[string]entry{},
		windows: map[string]*hitLog{},
		now:     time.Now,
	}
}

// WithClock replaces the clock used for entry expiry.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.entries[key]
	if !ok || expired(stored, m.now()) {
		return "", false, nil
	}
	return stored.value, true, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{value: value, expiresAt: store.ExpiresAt(m.now(), ttl)}
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (store.WindowState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	log, ok := m.windows[key]
	if !ok {
		log = &hitLog{}
		m.windows[key] = log
	}
	log.window = window
	log.hits = pruneHits(log.hits, now.Add(-window))

	state := store.WindowState{Count: len(log.hits)}
	if len(log.hits) < limit {
		log.hits = append(log.hits, now)
		state.Allowed = true
		state.Count = len(log.hits)
	}
	var oldest time.Time
	if len(log.hits) > 0 {
		oldest = log.hits[0]
	}
	state.Reset = store.ResetFor(oldest, now, window)
	return state, nil
}

func (m *MemoryStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for key, stored := range m.entries {
		if expired(stored, now) {
			delete(m.entries, key)
			removed++
		}
	}
	for key, log := range m.windows {
		before := len(log.hits)
		log.hits = pruneHits(log.hits, now.Add(-log.window))
		removed += int64(before - len(log.hits))
		if len(log.hits) == 0 {
			delete(m.windows, key)
		}
	}
	return removed, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func expired(stored entry, now time.Time) bool {
	return !stored.expiresAt.IsZero() && !now.Before(stored.expiresAt)
}

// pruneHits drops hits at or before cutoff. Hits are kept in arrival order.
func pruneHits(hits []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(hits) && !hits[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return hits
	}
	return append([]time.Time{}, hits[idx:]...)
}
