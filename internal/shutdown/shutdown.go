// Package shutdown turns SIGINT/SIGTERM into context cancellation so a scan
// can stop and still write what it produced.
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

// Handler cancels its context on the first signal and runs the registered
// callbacks, last registered first.
type Handler struct {
	mu    sync.Mutex
	hooks []hook

	started atomic.Bool
	done    chan struct{}
	stop    chan struct{}
	signals chan os.Signal
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	cfg Config
}

type hook struct {
	name string
	fn   Callback
}

// Callback is a function called during shutdown.
type Callback func(ctx context.Context) error

// Config holds shutdown configuration.
type Config struct {
	// Timeout bounds each callback separately.
	Timeout         time.Duration
	Signals         []os.Signal
	OnShutdownStart func(sig os.Signal)
	OnShutdownDone  func(elapsed time.Duration, errors []error)
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 10 * time.Second,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// New creates a handler whose context derives from parent and starts
// listening for signals. Call Stop to release the signal subscription.
func New(parent context.Context, cfg Config) *Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if len(cfg.Signals) == 0 {
		cfg.Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	ctx, cancel := context.WithCancel(parent)

	h := &Handler{
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
		signals: make(chan os.Signal, 1),
		timeout: cfg.Timeout,
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
	}

	signal.Notify(h.signals, cfg.Signals...)
	go h.listen()

	return h
}

func (h *Handler) listen() {
	select {
	case sig := <-h.signals:
		h.shutdown(sig)
	case <-h.stop:
	}
}

// Register registers a shutdown callback with a name.
func (h *Handler) Register(name string, callback Callback) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.hooks = append(h.hooks, hook{name: name, fn: callback})
}

// RegisterFunc registers a simple cleanup function.
func (h *Handler) RegisterFunc(name string, fn func()) {
	h.Register(name, func(ctx context.Context) error {
		fn()
		return nil
	})
}

// Context returns the context cancelled when shutdown begins.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// IsShuttingDown returns whether shutdown is in progress.
func (h *Handler) IsShuttingDown() bool {
	return h.started.Load()
}

// Done returns a channel that is closed when shutdown completes.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// Shutdown cancels the context and runs the callbacks. Only the first call
// has any effect.
func (h *Handler) Shutdown() {
	h.shutdown(nil)
}

func (h *Handler) shutdown(sig os.Signal) {
	if !h.started.CompareAndSwap(false, true) {
		return
	}
	defer close(h.done)

	began := time.Now()
	if h.cfg.OnShutdownStart != nil {
		h.cfg.OnShutdownStart(sig)
	}
	h.cancel()

	h.mu.Lock()
	hooks := append([]hook(nil), h.hooks...)
	h.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := h.run(hooks[i]); err != nil {
			errs = append(errs, err)
		}
	}

	if h.cfg.OnShutdownDone != nil {
		h.cfg.OnShutdownDone(time.Since(began), errs)
	}
}

// run calls one hook, giving up after the configured timeout. A hook that
// times out keeps running in the background.
func (h *Handler) run(hk hook) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- hk.fn(ctx) }()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return &TimeoutError{CallbackName: hk.name}
	}
}

// Trigger delivers a synthetic SIGTERM.
func (h *Handler) Trigger() {
	select {
	case h.signals <- syscall.SIGTERM:
	default:
	}
}

// Stop releases the signal subscription and cancels the context without
// running callbacks. It is safe to call after a shutdown.
func (h *Handler) Stop() {
	signal.Stop(h.signals)
	h.mu.Lock()
	select {
	case <-h.stop:
	default:
		close(h.stop)
	}
	h.mu.Unlock()
	h.cancel()
}

// TimeoutError is returned when a callback times out.
type TimeoutError struct {
	CallbackName string
}

func (e *TimeoutError) Error() string {
	return "shutdown callback timed out: " + e.CallbackName
}
