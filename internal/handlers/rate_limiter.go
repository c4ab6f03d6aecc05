package handlers

import (
	"strings"
	"sync"
	"time"
)

// callerLimiter caps how many requests a single caller may issue per window. A refused call
// reports how long until the caller's window resets.
type callerLimiter interface {
	Allow(caller string) (bool, time.Duration)
}

type fixedWindowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]callerWindow
}

type callerWindow struct {
	used    int
	resetAt time.Time
}

func newFixedWindowLimiter(limit int, window time.Duration, clock func() time.Time) callerLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &fixedWindowLimiter{
		limit:   limit,
		window:  window,
		clock:   clock,
		windows: make(map[string]callerWindow),
	}
}

func (l *fixedWindowLimiter) Allow(caller string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	caller = strings.TrimSpace(caller)
	if caller == "" {
		caller = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.windows[caller]
	if !ok || !now.Before(current.resetAt) {
		l.evictExpiredLocked(now)
		l.windows[caller] = callerWindow{used: 1, resetAt: now.Add(l.window)}
		return true, 0
	}
	if current.used >= l.limit {
		return false, current.resetAt.Sub(now)
	}
	current.used++
	l.windows[caller] = current
	return true, 0
}

func (l *fixedWindowLimiter) evictExpiredLocked(now time.Time) {
	for caller, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, caller)
		}
	}
}
