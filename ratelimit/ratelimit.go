// Package ratelimit guards a single LLM client instance's outbound provider
// calls with a token-bucket limiter. It is a narrowed, single-tenant sibling
// of the multi-tenant HTTP rate-limit middleware found elsewhere in the
// reference corpus: one limiter per LLM client, not one per request origin.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter wraps golang.org/x/time/rate.Limiter with a nil-safe Wait so
// callers can construct a client without rate limiting by passing a zero
// Limiter value.
type Limiter struct {
	l *rate.Limiter
}

// New returns a Limiter admitting rps requests per second with the given
// burst. rps <= 0 disables limiting (Wait always returns immediately).
func New(rps float64, burst int) *Limiter {
	if rps <= 0 {
		return &Limiter{}
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{l: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a token is available or ctx is done. A disabled or nil
// Limiter returns immediately.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.l == nil {
		return nil
	}
	return l.l.Wait(ctx)
}
