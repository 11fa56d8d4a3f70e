package handlers

import (
	"strings"
	"sync"
	"time"
)

// storeRateLimiter grants each tenant its own fixed-window request budget.
// Scopes are the store ids the middleware resolves; one store burning its
// budget never throttles another.
type storeRateLimiter struct {
	budget int
	window time.Duration
	clock  func() time.Time
	mu     sync.Mutex
	usage  map[string]windowUsage
}

type windowUsage struct {
	used    int
	resetAt time.Time
}

func newStoreRateLimiter(budget int, window time.Duration, clock func() time.Time) *storeRateLimiter {
	if budget <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &storeRateLimiter{
		budget: budget,
		window: window,
		clock:  clock,
		usage:  make(map[string]windowUsage),
	}
}

// Allow records one request against the scope's current window and reports
// whether it fits the budget. Requests with no resolvable scope share a
// single "unscoped" bucket.
func (l *storeRateLimiter) Allow(scope string) bool {
	if l == nil {
		return true
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		scope = "unscoped"
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.usage[scope]
	if !ok || now.After(current.resetAt) {
		l.usage[scope] = windowUsage{used: 1, resetAt: now.Add(l.window)}
		l.dropStaleWindowsLocked(now)
		return true
	}

	if current.used >= l.budget {
		return false
	}
	current.used++
	l.usage[scope] = current
	return true
}

// dropStaleWindowsLocked keeps the usage map from growing with one entry per
// store that ever called the API.
func (l *storeRateLimiter) dropStaleWindowsLocked(now time.Time) {
	for scope, current := range l.usage {
		if now.After(current.resetAt) {
			delete(l.usage, scope)
		}
	}
}
