package ratelimit

import (
	"math"
	"net/http"
	"strconv"
)

// Response headers describing the caller's rate limit window.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// SetHeaders writes the standard X-RateLimit-* headers for info.
func SetHeaders(w http.ResponseWriter, info Info) {
	w.Header().Set(HeaderLimit, strconv.Itoa(info.Limit))
	w.Header().Set(HeaderRemaining, strconv.Itoa(info.Remaining))
	w.Header().Set(HeaderReset, strconv.FormatInt(info.ResetAt.Unix(), 10))
}

// SetRetryAfter writes Retry-After in whole seconds, rounded up, and
// returns the value written.
func SetRetryAfter(w http.ResponseWriter, info Info) int {
	secs := RetryAfterSeconds(info)
	w.Header().Set(HeaderRetryAfter, strconv.Itoa(secs))
	return secs
}

// RetryAfterSeconds converts info.RetryAfter to whole seconds, never less
// than one.
func RetryAfterSeconds(info Info) int {
	secs := int(math.Ceil(info.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
