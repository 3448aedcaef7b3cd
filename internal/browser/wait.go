package browser

import (
	"context"
	"time"

	crawlerrors "github.com/PentesterFlow/fragcrawl/internal/errors"
)

const maxPollInterval = 2 * time.Second

// WaitPolicy decides when a loaded page is ready to be read.
// With an empty ReadySelector the page settles for a fixed duration;
// otherwise the selector is polled until present or ReadyTimeout elapses.
type WaitPolicy struct {
	Settle        time.Duration `json:"settle" yaml:"settle"`
	ReadySelector string        `json:"ready_selector" yaml:"ready_selector"`
	ReadyTimeout  time.Duration `json:"ready_timeout" yaml:"ready_timeout"`
	PollInterval  time.Duration `json:"poll_interval" yaml:"poll_interval"`
}

// FixedWait returns a settle-only policy.
func FixedWait(settle time.Duration) WaitPolicy {
	return WaitPolicy{Settle: settle}
}

// UsesReadySelector reports whether the policy polls for a marker.
func (w WaitPolicy) UsesReadySelector() bool {
	return w.ReadySelector != ""
}

// probeFunc reports whether the ready marker is present.
type probeFunc func(ctx context.Context) (bool, error)

// await applies the policy. It returns ready=false when the marker never appeared;
// the caller reads the document anyway. The only error is context cancellation.
func (w WaitPolicy) await(ctx context.Context, probe probeFunc) (bool, error) {
	if !w.UsesReadySelector() {
		return true, sleepCtx(ctx, w.Settle)
	}

	interval := w.PollInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	deadline := time.Now().Add(w.ReadyTimeout)

	for attempt := 1; ; attempt++ {
		found, err := probe(ctx)
		if err == nil && found {
			return true, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}

		delay := crawlerrors.BackoffDuration(attempt, interval, maxPollInterval, 2)
		if delay > remaining {
			delay = remaining
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return false, err
		}
	}
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
