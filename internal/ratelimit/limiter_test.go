package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

// =============================================================================
// Limiter Tests
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.DelayMin != 2*time.Second || cfg.DelayMax != 4*time.Second {
		t.Errorf("delay range = [%v, %v], want [2s, 4s]", cfg.DelayMin, cfg.DelayMax)
	}
}

func TestNewLimiter(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		wantMin  time.Duration
		wantMax  time.Duration
		wantRate bool
	}{
		{"defaults", DefaultConfig(), 2 * time.Second, 4 * time.Second, true},
		{"max below min", Config{DelayMin: 3 * time.Second, DelayMax: time.Second}, 3 * time.Second, 3 * time.Second, false},
		{"negative min", Config{DelayMin: -time.Second, DelayMax: time.Second}, 0, time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLimiter(tt.config)
			if l.min != tt.wantMin || l.max != tt.wantMax {
				t.Errorf("range = [%v, %v], want [%v, %v]", l.min, l.max, tt.wantMin, tt.wantMax)
			}
			if (l.limiter != nil) != tt.wantRate {
				t.Errorf("rate floor present = %v, want %v", l.limiter != nil, tt.wantRate)
			}
		})
	}
}

// recordingLimiter returns a limiter whose pauses are recorded instead of slept.
func recordingLimiter(cfg Config) (*Limiter, *[]time.Duration) {
	l := NewLimiter(cfg)
	slept := &[]time.Duration{}
	l.SetSleep(func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	})
	return l, slept
}

func waitN(t *testing.T, l *Limiter, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
}

func TestLimiter_DelayWithinRange(t *testing.T) {
	l, slept := recordingLimiter(Config{DelayMin: 2 * time.Second, DelayMax: 4 * time.Second, Seed: 42})
	waitN(t, l, 1000)

	for _, d := range *slept {
		if d < 2*time.Second || d > 4*time.Second {
			t.Fatalf("delay %v outside [2s, 4s]", d)
		}
	}
}

func TestLimiter_SeedIsDeterministic(t *testing.T) {
	cfg := Config{DelayMin: time.Second, DelayMax: 3 * time.Second, Seed: 7}
	a, sleptA := recordingLimiter(cfg)
	b, sleptB := recordingLimiter(cfg)
	waitN(t, a, 20)
	waitN(t, b, 20)

	for i := range *sleptA {
		if (*sleptA)[i] != (*sleptB)[i] {
			t.Fatalf("draw %d differs: %v vs %v", i, (*sleptA)[i], (*sleptB)[i])
		}
	}
}

func TestLimiter_FixedDelay(t *testing.T) {
	l, _ := recordingLimiter(Config{DelayMin: time.Second, DelayMax: time.Second})

	if d, err := l.Wait(context.Background()); err != nil || d != time.Second {
		t.Errorf("Wait() = %v, %v; want 1s, nil", d, err)
	}
}

func TestLimiter_Wait(t *testing.T) {
	l := NewLimiter(Config{DelayMin: 2 * time.Second, DelayMax: 4 * time.Second, Seed: 1})
	var slept []time.Duration
	l.SetSleep(func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})

	for i := 0; i < 3; i++ {
		if _, err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}

	if len(slept) != 3 {
		t.Fatalf("slept %d times, want 3", len(slept))
	}
	stats := l.Stats()
	if stats.Waits != 3 {
		t.Errorf("Waits = %d, want 3", stats.Waits)
	}
	var total time.Duration
	for _, d := range slept {
		total += d
	}
	if stats.TotalDelay != total {
		t.Errorf("TotalDelay = %v, want %v", stats.TotalDelay, total)
	}
}

func TestLimiter_Wait_ContextCancelled(t *testing.T) {
	l := NewLimiter(Config{DelayMin: time.Minute, DelayMax: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Wait(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
	if l.Stats().Waits != 0 {
		t.Error("cancelled wait should not be counted")
	}
}

func TestLimiter_Wait_RealSleep(t *testing.T) {
	l := NewLimiter(Config{DelayMin: 10 * time.Millisecond, DelayMax: 20 * time.Millisecond})
	start := time.Now()

	d, err := l.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < d {
		t.Errorf("elapsed %v shorter than delay %v", elapsed, d)
	}
}

func TestLimiter_RateFloor(t *testing.T) {
	l := NewLimiter(Config{RequestsPerSecond: 1000, Burst: 1})
	l.SetSleep(func(context.Context, time.Duration) error { return nil })

	for i := 0; i < 5; i++ {
		if _, err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if got := l.Stats().Rate; got != 1000 {
		t.Errorf("Rate = %v, want 1000", got)
	}
}
