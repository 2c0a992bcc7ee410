// Package ratelimit implements the fixed-window request budgets of the
// HTTP facade: per-IP and per-token counters over a rolling 60-second
// window.
package ratelimit

import (
	"sync"
	"time"
)

// Window is the budget window length.
const Window = 60 * time.Second

// Budgets per window, by request class.
const (
	ReadIPLimit     = 120
	ReadTokenLimit  = 600
	WriteIPLimit    = 30
	WriteTokenLimit = 120
)

// reapThreshold bounds the counter map; once crossed, expired entries
// are dropped on the next check.
const reapThreshold = 10000

// BudgetKey is one counter to charge: a key string and its limit.
type BudgetKey struct {
	Key   string
	Limit int
}

// Decision is the outcome of charging a request against its budgets.
// Limit/Remaining/Reset describe the most restrictive counter.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter time.Duration
}

type counter struct {
	windowStart time.Time
	count       int
}

// Limiter is the in-process counter store. All mutation happens under
// one lock, giving each key a single writer.
type Limiter struct {
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time
}

func New() *Limiter {
	return &Limiter{
		counters: make(map[string]*counter),
		now:      time.Now,
	}
}

// NewWithClock builds a limiter with an explicit time source for tests.
func NewWithClock(now func() time.Time) *Limiter {
	l := New()
	l.now = now

	return l
}

// Check charges one request against every budget key. If any counter
// is exhausted, nothing is charged and the decision carries the limit
// and Retry-After of the first exhausted counter in keys order.
func (l *Limiter) Check(keys []BudgetKey) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.counters) > reapThreshold {
		l.reapLocked(now)
	}

	// First pass: refuse without charging if any budget is exhausted.
	for _, k := range keys {
		c := l.counterLocked(k.Key, now)
		if c.count >= k.Limit {
			reset := c.windowStart.Add(Window)

			return Decision{
				Allowed:    false,
				Limit:      k.Limit,
				Remaining:  0,
				Reset:      reset,
				RetryAfter: reset.Sub(now),
			}
		}
	}

	// Second pass: charge all counters and report the tightest one.
	decision := Decision{Allowed: true, Remaining: int(^uint(0) >> 1)}
	for _, k := range keys {
		c := l.counterLocked(k.Key, now)
		c.count++

		remaining := k.Limit - c.count
		if remaining < decision.Remaining {
			decision.Limit = k.Limit
			decision.Remaining = remaining
			decision.Reset = c.windowStart.Add(Window)
		}
	}

	return decision
}

// counterLocked returns the live counter for key, rolling the window
// forward when the previous one has expired.
func (l *Limiter) counterLocked(key string, now time.Time) *counter {
	c, ok := l.counters[key]
	if !ok || now.Sub(c.windowStart) >= Window {
		c = &counter{windowStart: now}
		l.counters[key] = c
	}

	return c
}

func (l *Limiter) reapLocked(now time.Time) {
	for key, c := range l.counters {
		if now.Sub(c.windowStart) >= Window {
			delete(l.counters, key)
		}
	}
}
