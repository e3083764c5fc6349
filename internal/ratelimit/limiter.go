// Package ratelimit provides per-credential request quotas using a fixed
// window counter. Each key hash gets its own tracker; the tracker resets
// wholesale once its window has elapsed.
package ratelimit

import "time"

// DefaultWindow is the quota period used when none is configured.
const DefaultWindow = time.Hour

// Limiter defines the rate limiting contract. Implementations must be safe for
// concurrent use.
type Limiter interface {
	// Allow checks whether one more request for key fits within limit and,
	// if so, counts it. Returns whether the request is allowed and rate
	// information for populating response headers.
	Allow(key string, limit int) (allowed bool, info Info)

	// Usage reports the current window of key without counting a request.
	Usage(key string) (Usage, bool)

	// Reset discards the tracker for key.
	Reset(key string)

	// Close releases resources.
	Close()
}

// Info contains rate limit state for populating response headers.
type Info struct {
	Limit      int           // Maximum requests per window
	Remaining  int           // Requests left in the current window
	ResetAt    time.Time     // When the current window ends
	RetryAfter time.Duration // How long to wait (meaningful only when denied)
}

// Usage is a snapshot of one tracker.
type Usage struct {
	Requests    int
	WindowStart time.Time
}
