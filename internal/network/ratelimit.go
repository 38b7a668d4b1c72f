package network

import (
	"sync"
	"time"
)

// windowLimiter allows at most max actions per fixed window.
type windowLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	start  time.Time
	count  int
}

func newWindowLimiter(max int, window time.Duration) *windowLimiter {
	return &windowLimiter{window: window, max: max}
}

// allow records one action at now. retryAfter is how long until the
// window resets when the action is refused.
func (l *windowLimiter) allow(now time.Time) (ok bool, retryAfter time.Duration) {
	if l == nil || l.max <= 0 || l.window <= 0 {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.start) >= l.window {
		l.start = now
		l.count = 0
	}
	l.count++
	if l.count <= l.max {
		return true, 0
	}
	return false, l.start.Add(l.window).Sub(now)
}
