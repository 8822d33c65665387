// Package ratelimit provides fixed-window request rate limiting keyed by
// action and client identity.
package ratelimit

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// UnknownIdentity is the shared bucket used when a request carries no
// forwarded address. Clients behind proxies that strip forwarding headers
// all land in this bucket; over-throttling them is accepted behavior.
const UnknownIdentity = "unknown"

// Result is the outcome of a single limiter check.
type Result struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Remaining is the number of requests left in the current window.
	Remaining int

	// ResetAt is when the current window ends and the count resets.
	ResetAt time.Time
}

// Limiter counts requests in fixed, non-overlapping windows per
// (actionKey, clientIdentity) pair.
//
// Implementations must make the increment-and-compare atomic per key: under
// concurrent checks of the same key, no more than max requests may be
// allowed inside one window. A denied check must leave the counter
// untouched.
type Limiter interface {
	Check(ctx context.Context, actionKey, clientIdentity string, max int, window time.Duration) (*Result, error)
}

// ClientIdentity derives the limiter identity from a request's forwarded
// address: the first comma-separated token of X-Forwarded-For, trimmed.
// Requests without the header share the UnknownIdentity bucket.
func ClientIdentity(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	ip := strings.TrimSpace(strings.Split(forwarded, ",")[0])
	if ip == "" {
		return UnknownIdentity
	}
	return ip
}

// bucketKey joins action and identity into a single storage key.
func bucketKey(actionKey, clientIdentity string) string {
	if actionKey == "" {
		actionKey = "default"
	}
	return actionKey + ":" + clientIdentity
}
