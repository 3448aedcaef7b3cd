// Package ratelimit throttles page loads within one browser session.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds throttle configuration.
type Config struct {
	DelayMin          time.Duration `json:"delay_min" yaml:"delay_min"`
	DelayMax          time.Duration `json:"delay_max" yaml:"delay_max"`
	RequestsPerSecond float64       `json:"requests_per_second" yaml:"requests_per_second"` // Token bucket floor; 0 disables
	Burst             int           `json:"burst" yaml:"burst"`
	Seed              int64         `json:"seed" yaml:"seed"` // 0 seeds from the clock
}

// DefaultConfig returns the default throttle: a random 2-4s pause before every item,
// with a one-per-second ceiling underneath.
func DefaultConfig() Config {
	return Config{
		DelayMin:          2 * time.Second,
		DelayMax:          4 * time.Second,
		RequestsPerSecond: 1,
		Burst:             1,
	}
}

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Limiter spaces out page loads with a uniform random delay and an optional rate floor.
// Each browser session owns its own Limiter.
type Limiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	min     time.Duration
	max     time.Duration
	rng     *rand.Rand
	sleep   SleepFunc

	waits      int
	totalDelay time.Duration
}

// NewLimiter creates a new limiter. A max below min is raised to min.
func NewLimiter(config Config) *Limiter {
	if config.DelayMin < 0 {
		config.DelayMin = 0
	}
	if config.DelayMax < config.DelayMin {
		config.DelayMax = config.DelayMin
	}
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	l := &Limiter{
		min:   config.DelayMin,
		max:   config.DelayMax,
		rng:   rand.New(rand.NewSource(seed)),
		sleep: sleepContext,
	}
	if config.RequestsPerSecond > 0 {
		burst := config.Burst
		if burst < 1 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}
	return l
}

// SetSleep replaces the sleep function, for tests.
func (l *Limiter) SetSleep(fn SleepFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sleep = fn
}

// nextDelayLocked draws the next delay uniformly from [min, max].
func (l *Limiter) nextDelayLocked() time.Duration {
	span := l.max - l.min
	if span <= 0 {
		return l.min
	}
	return l.min + time.Duration(l.rng.Int63n(int64(span)+1))
}

// Wait pauses for a random delay, then takes a token from the rate floor.
// It returns the random delay applied, or the context error if cancelled.
func (l *Limiter) Wait(ctx context.Context) (time.Duration, error) {
	l.mu.Lock()
	delay := l.nextDelayLocked()
	sleep := l.sleep
	l.mu.Unlock()

	if err := sleep(ctx, delay); err != nil {
		return 0, err
	}
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return delay, err
		}
	}

	l.mu.Lock()
	l.waits++
	l.totalDelay += delay
	l.mu.Unlock()

	return delay, nil
}

// Stats returns limiter statistics.
func (l *Limiter) Stats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := LimiterStats{
		Waits:      l.waits,
		TotalDelay: l.totalDelay,
		DelayMin:   l.min,
		DelayMax:   l.max,
	}
	if l.limiter != nil {
		stats.Rate = float64(l.limiter.Limit())
	}
	return stats
}

// LimiterStats contains limiter statistics.
type LimiterStats struct {
	Waits      int           `json:"waits"`
	TotalDelay time.Duration `json:"total_delay"`
	DelayMin   time.Duration `json:"delay_min"`
	DelayMax   time.Duration `json:"delay_max"`
	Rate       float64       `json:"rate"`
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
