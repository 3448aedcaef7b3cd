// Package shutdown turns termination signals into cooperative cancellation and runs
// cleanup callbacks exactly once.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Callback is a function called during cleanup.
type Callback func(ctx context.Context) error

// Config holds shutdown configuration.
type Config struct {
	Timeout  time.Duration // Budget for all cleanup callbacks together
	Signals  []os.Signal
	OnSignal func(sig os.Signal, count int) // Called for every received signal
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// Handler owns the run context. The first signal cancels it; cleanup runs when the
// caller is done, in reverse registration order.
type Handler struct {
	mu            sync.Mutex
	callbacks     []Callback
	callbackNames []string

	interrupted atomic.Bool
	signals     atomic.Int32
	timeout     time.Duration
	onSignal    func(os.Signal, int)

	ctx    context.Context
	cancel context.CancelFunc

	sigChan     chan os.Signal
	stopListen  chan struct{}
	cleanupOnce sync.Once
	result      *Result
}

// New creates a handler and starts listening for signals.
func New(parent context.Context, cfg Config) *Handler {
	if parent == nil {
		parent = context.Background()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if len(cfg.Signals) == 0 {
		cfg.Signals = DefaultConfig().Signals
	}

	ctx, cancel := context.WithCancel(parent)
	h := &Handler{
		timeout:    cfg.Timeout,
		onSignal:   cfg.OnSignal,
		ctx:        ctx,
		cancel:     cancel,
		sigChan:    make(chan os.Signal, 2),
		stopListen: make(chan struct{}),
	}

	signal.Notify(h.sigChan, cfg.Signals...)
	go h.listen()

	return h
}

func (h *Handler) listen() {
	for {
		select {
		case sig := <-h.sigChan:
			h.handle(sig)
		case <-h.stopListen:
			return
		}
	}
}

func (h *Handler) handle(sig os.Signal) {
	count := int(h.signals.Add(1))
	if h.onSignal != nil {
		h.onSignal(sig, count)
	}
	h.Interrupt()
}

// Context returns the run context, cancelled on the first signal.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// Interrupt cancels the run context as if a signal had arrived.
func (h *Handler) Interrupt() {
	h.interrupted.Store(true)
	h.cancel()
}

// Interrupted reports whether the run was cancelled by a signal or Interrupt.
func (h *Handler) Interrupted() bool {
	return h.interrupted.Load()
}

// Register registers a cleanup callback with a name.
func (h *Handler) Register(name string, callback Callback) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.callbacks = append(h.callbacks, callback)
	h.callbackNames = append(h.callbackNames, name)
}

// RegisterFunc registers a cleanup function that cannot fail.
func (h *Handler) RegisterFunc(name string, fn func()) {
	h.Register(name, func(ctx context.Context) error {
		fn()
		return nil
	})
}

// Cleanup stops signal handling and runs callbacks in reverse order (LIFO) under the
// configured timeout. Only the first call runs them; later calls return the same result.
func (h *Handler) Cleanup() *Result {
	h.cleanupOnce.Do(func() {
		signal.Stop(h.sigChan)
		close(h.stopListen)

		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		h.mu.Lock()
		callbacks := make([]Callback, len(h.callbacks))
		names := make([]string, len(h.callbackNames))
		copy(callbacks, h.callbacks)
		copy(names, h.callbackNames)
		h.mu.Unlock()

		result := &Result{}
		for i := len(callbacks) - 1; i >= 0; i-- {
			if err := h.executeCallback(ctx, names[i], callbacks[i]); err != nil {
				result.Errors = append(result.Errors, &CallbackError{CallbackName: names[i], Err: err})
			}
		}
		result.Elapsed = time.Since(start)

		h.cancel()
		h.result = result
	})
	return h.result
}

// executeCallback executes a callback, giving up when ctx expires.
func (h *Handler) executeCallback(ctx context.Context, name string, callback Callback) error {
	done := make(chan error, 1)

	go func() {
		done <- callback(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return &TimeoutError{CallbackName: name}
	}
}

// TimeoutError is returned when a callback times out.
type TimeoutError struct {
	CallbackName string
}

func (e *TimeoutError) Error() string {
	return "cleanup callback timed out: " + e.CallbackName
}

// CallbackError names the callback that failed.
type CallbackError struct {
	CallbackName string
	Err          error
}

func (e *CallbackError) Error() string {
	return e.CallbackName + ": " + e.Err.Error()
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}

// Result holds the outcome of cleanup.
type Result struct {
	Elapsed time.Duration
	Errors  []error
}

// HasErrors returns whether any callback failed.
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}
