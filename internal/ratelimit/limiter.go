// Package ratelimit provides a process-local fixed-window request limiter.
//
// The state is explicitly owned: construct with New, start the periodic sweep
// with Start, and call Reset between tests. No package-level globals.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/kwalimwa/craftlink/pkg/logger"
)

type window struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window per-key rate limiter.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	period  time.Duration
	now     func() time.Time
	log     *logger.Logger
}

// New creates a limiter allowing limit requests per period per key.
func New(limit int, period time.Duration, log *logger.Logger) *Limiter {
	if limit <= 0 {
		limit = 60
	}
	if period <= 0 {
		period = time.Minute
	}
	return &Limiter{
		windows: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     time.Now,
		log:     log,
	}
}

// Allow reports whether the key may proceed in the current window.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		l.windows[key] = &window{count: 1, resetAt: now.Add(l.period)}
		return true
	}
	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// Start launches the periodic sweep of expired windows. Returns when the
// context is cancelled.
func (l *Limiter) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = l.period
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.sweep()
			}
		}
	}()
}

// sweep drops windows whose reset time has passed.
func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, key)
			removed++
		}
	}
	if removed > 0 && l.log != nil {
		l.log.Debug().Int("removed", removed).Msg("Swept expired rate limit windows")
	}
}

// Reset clears all state. Test hook.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows = make(map[string]*window)
}

// Size returns the number of tracked keys.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
