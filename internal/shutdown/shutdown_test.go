package shutdown

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"
)

func newTestHandler(t *testing.T, cfg Config) *Handler {
	t.Helper()
	h := New(context.Background(), cfg)
	t.Cleanup(func() { h.Cleanup() })
	return h
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if len(cfg.Signals) != 2 {
		t.Errorf("Signals length = %d, want 2", len(cfg.Signals))
	}
}

func TestHandler_Interrupt(t *testing.T) {
	h := newTestHandler(t, DefaultConfig())

	if h.Interrupted() {
		t.Fatal("new handler should not be interrupted")
	}
	h.Interrupt()

	select {
	case <-h.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("context should be cancelled after Interrupt")
	}
	if !h.Interrupted() {
		t.Error("Interrupted() should be true")
	}
}

func TestHandler_Signal(t *testing.T) {
	received := make(chan int, 1)
	h := newTestHandler(t, Config{
		Signals: []os.Signal{syscall.SIGUSR1},
		OnSignal: func(sig os.Signal, count int) {
			received <- count
		},
	})

	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("Kill() error = %v", err)
	}

	select {
	case count := <-received:
		if count != 1 {
			t.Errorf("signal count = %d, want 1", count)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("signal was not handled")
	}
	<-h.Context().Done()
	if !h.Interrupted() {
		t.Error("Interrupted() should be true after a signal")
	}
}

func TestHandler_CleanupLIFO(t *testing.T) {
	h := newTestHandler(t, DefaultConfig())
	var order []string

	h.RegisterFunc("first", func() { order = append(order, "first") })
	h.RegisterFunc("second", func() { order = append(order, "second") })
	h.RegisterFunc("third", func() { order = append(order, "third") })

	result := h.Cleanup()

	if result.HasErrors() {
		t.Errorf("unexpected errors: %v", result.Errors)
	}
	want := []string{"third", "second", "first"}
	for i := range want {
		if i >= len(order) || order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if h.Interrupted() {
		t.Error("cleanup alone should not mark the run interrupted")
	}
}

func TestHandler_CleanupOnce(t *testing.T) {
	h := newTestHandler(t, DefaultConfig())
	calls := 0
	h.RegisterFunc("count", func() { calls++ })

	first := h.Cleanup()
	second := h.Cleanup()

	if calls != 1 {
		t.Errorf("callback ran %d times, want 1", calls)
	}
	if first != second {
		t.Error("Cleanup() should return the same result")
	}
}

func TestHandler_CleanupErrors(t *testing.T) {
	h := newTestHandler(t, DefaultConfig())
	cause := errors.New("profile busy")

	h.Register("ok", func(ctx context.Context) error { return nil })
	h.Register("session", func(ctx context.Context) error { return cause })

	result := h.Cleanup()

	if len(result.Errors) != 1 {
		t.Fatalf("Errors = %v, want 1", result.Errors)
	}
	if !errors.Is(result.Errors[0], cause) {
		t.Errorf("error should wrap cause, got %v", result.Errors[0])
	}
	var cbErr *CallbackError
	if !errors.As(result.Errors[0], &cbErr) || cbErr.CallbackName != "session" {
		t.Errorf("error should name the callback, got %v", result.Errors[0])
	}
}

func TestHandler_CleanupTimeout(t *testing.T) {
	h := newTestHandler(t, Config{Timeout: 50 * time.Millisecond})

	h.Register("slow", func(ctx context.Context) error {
		time.Sleep(time.Second)
		return nil
	})

	start := time.Now()
	result := h.Cleanup()

	if time.Since(start) > 500*time.Millisecond {
		t.Error("cleanup should give up after the timeout")
	}
	var timeoutErr *TimeoutError
	if len(result.Errors) != 1 || !errors.As(result.Errors[0], &timeoutErr) {
		t.Fatalf("Errors = %v, want one timeout", result.Errors)
	}
	if timeoutErr.CallbackName != "slow" {
		t.Errorf("CallbackName = %s, want slow", timeoutErr.CallbackName)
	}
}
