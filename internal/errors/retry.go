package errors

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// RetryPolicy controls how often a page load that timed out or hit a network error
// is attempted again. Every other failure is returned after the first attempt.
type RetryPolicy struct {
	MaxRetries   int           // Extra attempts after the first; 0 disables retrying
	InitialDelay time.Duration // Pause before the first retry
	MaxDelay     time.Duration // Upper bound for the pause
	Multiplier   float64       // Growth of the pause per retry
	Jitter       float64       // Fraction of the pause randomized either way (0-1)
}

// DefaultRetryPolicy returns a single-attempt policy with the backoff used once
// MaxRetries is raised.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

// ShouldRetry reports whether a failed page load is worth another attempt:
// a navigation error flagged as a timeout or a network failure.
func ShouldRetry(err error) bool {
	if GetErrorType(err) != Navigation {
		return false
	}
	return IsTimeout(err) || IsRetryable(err)
}

// Retrier re-runs transient page-load failures with jittered exponential backoff.
type Retrier struct {
	policy RetryPolicy

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRetrier creates a retrier for policy.
func NewRetrier(policy RetryPolicy) *Retrier {
	if policy.Multiplier < 1 {
		policy.Multiplier = 1
	}
	return &Retrier{
		policy: policy,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Retry calls load until it succeeds, fails in a way ShouldRetry rejects, or the
// policy runs out. It returns the loaded value, the attempts made and the last error.
// Cancellation while waiting between attempts yields a Cancelled error for url.
func Retry[T any](ctx context.Context, r *Retrier, url string, load func(ctx context.Context) (T, error)) (T, int, error) {
	var zero T

	for attempt := 1; ; attempt++ {
		value, err := load(ctx)
		if err == nil {
			return value, attempt, nil
		}
		if ctx.Err() != nil {
			return zero, attempt, NewCancelledError(url, "navigate")
		}
		if attempt > r.policy.MaxRetries || !ShouldRetry(err) {
			return zero, attempt, err
		}

		t := time.NewTimer(r.pause(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, attempt, NewCancelledError(url, "navigate")
		case <-t.C:
		}
	}
}

// pause returns the jittered backoff before retry number attempt.
func (r *Retrier) pause(attempt int) time.Duration {
	base := BackoffDuration(attempt, r.policy.InitialDelay, r.policy.MaxDelay, r.policy.Multiplier)
	if r.policy.Jitter <= 0 || base <= 0 {
		return base
	}

	r.mu.Lock()
	offset := (r.rng.Float64()*2 - 1) * r.policy.Jitter * float64(base)
	r.mu.Unlock()

	return time.Duration(float64(base) + offset)
}

// BackoffDuration calculates the backoff duration for a given attempt.
func BackoffDuration(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	if attempt <= 0 {
		return initial
	}

	delay := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if delay > float64(max) {
		return max
	}

	return time.Duration(delay)
}
