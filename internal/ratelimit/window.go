package ratelimit

import (
	"sync"
	"time"
)

// tracker counts requests within one window.
type tracker struct {
	requests    int
	windowStart time.Time
}

// WindowLimiter is an in-memory fixed window limiter. Trackers are created
// lazily on the first Allow for a key and live until Reset.
type WindowLimiter struct {
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	trackers map[string]*tracker
}

// Option configures a WindowLimiter.
type Option func(*WindowLimiter)

// WithClock replaces time.Now, for tests that need to cross window
// boundaries without sleeping.
func WithClock(now func() time.Time) Option {
	return func(l *WindowLimiter) {
		l.now = now
	}
}

// NewWindowLimiter creates a limiter with the given window length. A
// non-positive window selects DefaultWindow.
func NewWindowLimiter(window time.Duration, opts ...Option) *WindowLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	l := &WindowLimiter{
		window:   window,
		now:      time.Now,
		trackers: make(map[string]*tracker),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Window returns the configured window length.
func (l *WindowLimiter) Window() time.Duration {
	return l.window
}

// Allow checks and counts one request for key. The lookup, window reset,
// comparison and increment happen under one lock so concurrent callers can
// never push the count past limit.
func (l *WindowLimiter) Allow(key string, limit int) (bool, Info) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	t, exists := l.trackers[key]
	if !exists {
		t = &tracker{windowStart: now}
		l.trackers[key] = t
	}

	// Hard reset once the window has fully elapsed.
	if now.Sub(t.windowStart) > l.window {
		t.requests = 0
		t.windowStart = now
	}

	resetAt := t.windowStart.Add(l.window)
	info := Info{
		Limit:   limit,
		ResetAt: resetAt,
	}

	if t.requests >= limit {
		info.RetryAfter = resetAt.Sub(now)
		return false, info
	}

	t.requests++
	info.Remaining = limit - t.requests
	return true, info
}

// Usage returns a copy of the tracker for key, if one exists.
func (l *WindowLimiter) Usage(key string) (Usage, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, exists := l.trackers[key]
	if !exists {
		return Usage{}, false
	}
	return Usage{Requests: t.requests, WindowStart: t.windowStart}, true
}

// Reset removes the tracker for key.
func (l *WindowLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.trackers, key)
}

// Close drops every tracker.
func (l *WindowLimiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trackers = make(map[string]*tracker)
}
