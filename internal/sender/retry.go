package sender

import (
	"math"
	"time"

	"github.com/user/notifyr/internal/types"
)

// RetryPolicy controls how transient dispatch failures are retried with
// exponential backoff. MaxAttempts counts total dispatches, not re-tries.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultRetryPolicy returns a RetryPolicy with sensible defaults:
// 3 attempts, 1s initial delay, 2x multiplier, 30s max delay.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
	}
}

// ShouldRetry returns true if the outcome is transient and the attempt count
// (1-indexed) leaves room for another dispatch.
func (p *RetryPolicy) ShouldRetry(outcome types.Outcome, attempt int) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	return outcome.Kind == types.OutcomeTransient
}

// NextDelay returns the backoff delay after the given attempt number
// (1-indexed). The delay is InitialDelay * Multiplier^(attempt-1), capped at
// MaxDelay.
func (p *RetryPolicy) NextDelay(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}
