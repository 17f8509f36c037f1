package services

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"
)

// RateLimiter spaces calls to a remote service. Each client owns its own
// limiter; there is no process-wide backoff state.
type RateLimiter struct {
	mu          sync.Mutex
	minInterval time.Duration
	next        time.Time
}

// NewRateLimiter builds a limiter enforcing the given minimum interval
// between calls. A non-positive interval disables limiting.
func NewRateLimiter(minInterval time.Duration) *RateLimiter {
	return &RateLimiter{minInterval: minInterval}
}

// Wait blocks until the next call is allowed, or until the context is
// cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil || r.minInterval <= 0 {
		return nil
	}
	r.mu.Lock()
	now := time.Now()
	wait := r.next.Sub(now)
	if wait < 0 {
		wait = 0
	}
	r.next = now.Add(wait + r.minInterval)
	r.mu.Unlock()

	return SleepWithContext(ctx, wait)
}

// Reset clears the limiter's schedule. Used on teardown and in tests.
func (r *RateLimiter) Reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.next = time.Time{}
	r.mu.Unlock()
}

// SleepWithContext blocks for the given duration, returning early if the
// context is cancelled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsRetriable reports whether err represents a transient condition that
// warrants an automatic retry (rate limits, timeouts, connection errors).
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	message := strings.ToLower(err.Error())
	if strings.Contains(message, "429") || strings.Contains(message, "rate limit") {
		return true
	}
	// Server errors are typically transient (outages, deploys, overload).
	for _, code := range []string{"502", "503", "504"} {
		if strings.Contains(message, code) {
			return true
		}
	}
	timeoutTokens := []string{
		"timeout",
		"deadline exceeded",
		"client.timeout exceeded",
		"connection reset",
		"connection refused",
		"temporary failure",
		"awaiting headers",
	}
	for _, token := range timeoutTokens {
		if strings.Contains(message, token) {
			return true
		}
	}
	return false
}
