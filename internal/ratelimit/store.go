package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Store hands out rate reservations per key. Implementations must be safe for
// concurrent use.
type Store interface {
	// Reserve takes one token for key from a bucket that refills limit tokens
	// per window. It returns zero when the request may proceed, or how long the
	// caller has to wait; a rejected request consumes nothing.
	Reserve(ctx context.Context, key string, limit int, window time.Duration) (time.Duration, error)
}

type memoryEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryStore keeps one token bucket per key in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Reserve(_ context.Context, key string, limit int, window time.Duration) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.entries[key]
	if !ok {
		s.evictIdle(now, window)
		entry = &memoryEntry{
			limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit),
		}
		s.entries[key] = entry
	}
	entry.lastSeen = now

	reservation := entry.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return window, nil
	}
	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.CancelAt(now)
		return delay, nil
	}
	return 0, nil
}

// evictIdle drops buckets untouched for a full window; they have refilled and
// a fresh limiter is equivalent.
func (s *MemoryStore) evictIdle(now time.Time, window time.Duration) {
	for key, entry := range s.entries {
		if now.Sub(entry.lastSeen) >= window {
			delete(s.entries, key)
		}
	}
}

// Limiter applies limit requests per window on top of a Store.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
}

func NewLimiter(store Store, limit int, window time.Duration) *Limiter {
	return &Limiter{store: store, limit: limit, window: window}
}

// Allow reports whether another request for key fits, and otherwise how long
// until it would. A limit of zero or less disables limiting.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if l == nil || l.limit <= 0 || l.window <= 0 {
		return true, 0, nil
	}
	retryAfter, err := l.store.Reserve(ctx, key, l.limit, l.window)
	if err != nil {
		return false, 0, err
	}
	if retryAfter > 0 {
		return false, retryAfter, nil
	}
	return true, 0, nil
}
