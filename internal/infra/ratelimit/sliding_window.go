package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter caps outbound vision calls to `limit` per trailing window. Acquire
// blocks the calling worker until one more call fits; it has no failure mode
// of its own, only ctx cancellation.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	margin time.Duration
	calls  []time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// New starts the background sweep that keeps the timestamp list bounded.
func New(limit int, window time.Duration) *Limiter {
	l := &Limiter{
		limit:  limit,
		window: window,
		margin: time.Second,
		done:   make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Acquire blocks until issuing one more call stays under the ceiling, then
// records the call time. The first-ever call returns immediately.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := time.Now()
		l.trim(now)
		if len(l.calls) < l.limit {
			l.calls = append(l.calls, now)
			l.mu.Unlock()
			return nil
		}
		// wait until the oldest call leaves the window, plus a small buffer
		wait := l.window - now.Sub(l.calls[0]) + l.margin
		l.mu.Unlock()

		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// InWindow returns how many calls were recorded inside the current window.
func (l *Limiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trim(time.Now())
	return len(l.calls)
}

func (l *Limiter) trim(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}

func (l *Limiter) sweep() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.mu.Lock()
			l.trim(time.Now())
			l.mu.Unlock()
		}
	}
}

// Close stops the sweep goroutine.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}
