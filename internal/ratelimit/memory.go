package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter holds each user's window of accepted-action timestamps in
// process memory, rebuilt lazily on every check.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	limit   int
	window  time.Duration
	now     func() time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, userId string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.windows[userId][:0]
	for _, ts := range l.windows[userId] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.limit {
		l.windows[userId] = kept
		return false, nil
	}

	l.windows[userId] = append(kept, now)
	return true, nil
}
