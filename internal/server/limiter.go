// Package server implements the connection-level send budget that protects
// the hub from abusive clients.
package server

import (
	"sync"
	"time"
)

// messageLimiter applies the per-connection send budget: a fixed number of
// sends per window plus a minimum spacing between consecutive sends. The
// window counter is reset externally by the hub's maintenance ticker rather
// than by a timer per connection.
type messageLimiter struct {
	mu          sync.Mutex
	limit       int
	minInterval time.Duration
	count       int
	lastSend    time.Time
}

func newMessageLimiter(limit int, minInterval time.Duration) *messageLimiter {
	if limit <= 0 {
		limit = 1
	}
	if minInterval < 0 {
		minInterval = 0
	}
	return &messageLimiter{limit: limit, minInterval: minInterval}
}

// allow records a send attempt and reports whether it fits the budget. A send
// violating either the window cap or the spacing requirement is rejected and
// does not advance the spacing clock.
func (l *messageLimiter) allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if !l.lastSend.IsZero() && now.Sub(l.lastSend) < l.minInterval {
		return false
	}
	if l.count >= l.limit {
		return false
	}

	l.lastSend = now
	l.count++
	return true
}

// reset clears the window counter. Called on the hub's schedule.
func (l *messageLimiter) reset() {
	l.mu.Lock()
	l.count = 0
	l.mu.Unlock()
}
