// Package retry implements bounded exponential backoff with jitter for
// transient transport failures. It is shared by the tool server client
// (connection establishment only) and the LLM client provider adapters
// (transient provider HTTP errors only). It never wraps tool execution
// results: a failed tool call is data that must reach the model, not a
// candidate for silent retry.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy configures a bounded exponential backoff schedule.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first. Zero or
	// negative is treated as 1 (no retry).
	MaxAttempts int
	// BaseDelay is the delay before the second attempt. Doubles each
	// subsequent attempt, capped at MaxDelay.
	BaseDelay time.Duration
	// MaxDelay caps the computed delay for any single attempt.
	MaxDelay time.Duration
	// Jitter is the fraction (0..1) of the computed delay randomized away,
	// split evenly above and below the nominal value.
	Jitter float64
}

// DefaultPolicy is a conservative default used when a caller does not
// configure one explicitly: 3 attempts, 200ms base, 5s cap, 20% jitter.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second, Jitter: 0.2}
}

// Retryable classifies an error returned by an attempt as a retry candidate.
type Retryable func(error) bool

// Do runs fn up to Policy.MaxAttempts times, sleeping with exponential
// backoff between attempts for which retryable(err) is true. It returns the
// last error seen once attempts are exhausted, or nil on success. Do honors
// ctx cancellation between (never during) attempts.
func Do(ctx context.Context, p Policy, retryable Retryable, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	delay := p.BaseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts || retryable == nil || !retryable(lastErr) {
			return lastErr
		}
		sleep := jittered(delay, p.Jitter)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return lastErr
}

func jittered(d time.Duration, frac float64) time.Duration {
	if frac <= 0 || d <= 0 {
		return d
	}
	if frac > 1 {
		frac = 1
	}
	span := float64(d) * frac
	delta := (rand.Float64()*2 - 1) * span / 2
	out := float64(d) + delta
	if out < 0 {
		out = 0
	}
	return time.Duration(out)
}
