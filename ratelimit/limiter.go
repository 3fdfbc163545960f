// Package ratelimit implements the per-user analysis quota: a fixed window
// of requests that resets lazily on the first request after it expires.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultLimit  = 5
	DefaultWindow = time.Minute
)

// Decision is the outcome of one Allow call
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the time left until the window resets, never negative
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if wait := d.ResetAt.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

// Limiter counts requests per key. Implementations must be safe for
// concurrent use.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

type window struct {
	count   int
	resetAt time.Time
}

// Memory is a process-local Limiter
type Memory struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	period  time.Duration
	now     func() time.Time
}

func NewMemory(limit int, period time.Duration) *Memory {
	return NewMemoryWithClock(limit, period, time.Now)
}

func NewMemoryWithClock(limit int, period time.Duration, now func() time.Time) *Memory {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if period <= 0 {
		period = DefaultWindow
	}
	return &Memory{
		windows: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     now,
	}
}

func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(m.period)}
		m.windows[key] = w
		return Decision{Allowed: true, Limit: m.limit, Remaining: m.limit - 1, ResetAt: w.resetAt}, nil
	}

	if w.count >= m.limit {
		return Decision{Allowed: false, Limit: m.limit, Remaining: 0, ResetAt: w.resetAt}, nil
	}

	w.count++
	return Decision{Allowed: true, Limit: m.limit, Remaining: m.limit - w.count, ResetAt: w.resetAt}, nil
}

// Sweep drops expired windows so idle users do not pin memory
func (m *Memory) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, w := range m.windows {
		if now.After(w.resetAt) {
			delete(m.windows, key)
			removed++
		}
	}
	return removed
}
