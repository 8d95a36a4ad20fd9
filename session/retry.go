package session

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/ConnRefused/AI-Chat-TUI/llm"
)

// maxRetryAfter caps a server-requested delay.
const maxRetryAfter = time.Minute

// RetryPolicy bounds how often and how patiently a failed request is
// repeated.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries per turn, including the first.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter spreads each delay by up to ±Jitter of its value.
	Jitter float64
	// RetryServiceErrors allows retrying retryable service errors (5xx and
	// mid-stream failures) in addition to rate limits and network errors.
	RetryServiceErrors bool

	// Rand returns a value in [0, 1). Nil uses math/rand/v2.
	Rand func() float64
}

// DefaultRetryPolicy returns the policy used when nothing is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:        3,
		InitialDelay:       time.Second,
		MaxDelay:           20 * time.Second,
		Multiplier:         2,
		Jitter:             0.2,
		RetryServiceErrors: true,
	}
}

// ShouldRetry reports whether another attempt is allowed after attempt
// (1-based) failed with err.
func (p RetryPolicy) ShouldRetry(attempt int, err *llm.StreamError) bool {
	if err == nil || attempt >= p.MaxAttempts || !err.Retryable() {
		return false
	}
	if err.Kind == llm.KindService {
		return p.RetryServiceErrors
	}
	return true
}

// Delay returns the wait before the attempt following attempt (1-based).
// A Retry-After from the service takes precedence over the backoff curve.
func (p RetryPolicy) Delay(attempt int, err *llm.StreamError) time.Duration {
	if err != nil && err.RetryAfter > 0 {
		return min(err.RetryAfter, maxRetryAfter)
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialDelay) * math.Pow(mult, float64(max(attempt-1, 0)))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		r := rand.Float64
		if p.Rand != nil {
			r = p.Rand
		}
		d *= 1 + p.Jitter*(2*r()-1)
	}
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}

// sleep waits for d or until ctx is done, reporting whether the full delay
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
