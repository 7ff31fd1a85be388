// Package runtime provides graceful shutdown handling for the daemon.
package runtime

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mlindgren/vaultagent/internal/logging"
)

// HookFunc is a cleanup function called during shutdown.
type HookFunc func(ctx context.Context) error

// DefaultTimeout bounds total cleanup time.
const DefaultTimeout = 30 * time.Second

type namedHook struct {
	name string
	fn   HookFunc
}

// Shutdown coordinates ordered cleanup when the daemon stops.
// Hooks run in reverse registration order, last registered first.
type Shutdown struct {
	mu      sync.Mutex
	hooks   []namedHook
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	logger  *logging.Logger
}

func NewShutdown(timeout time.Duration) *Shutdown {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Shutdown{
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		logger:  logging.New("runtime"),
	}
}

// Register adds a cleanup hook.
func (s *Shutdown) Register(name string, fn HookFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, namedHook{name: name, fn: fn})
}

// RegisterSimple adds a hook without an error return.
func (s *Shutdown) RegisterSimple(name string, fn func()) {
	s.Register(name, func(context.Context) error {
		fn()
		return nil
	})
}

// Context is cancelled when shutdown begins.
func (s *Shutdown) Context() context.Context {
	return s.ctx
}

// ListenForSignals triggers shutdown on SIGTERM or SIGINT. Non-blocking.
func (s *Shutdown) ListenForSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigChan
		s.logger.Info("signal_received", map[string]any{"signal": sig.String()})
		s.Trigger()
	}()
}

// Trigger starts shutdown. Safe to call more than once.
func (s *Shutdown) Trigger() {
	s.once.Do(s.run)
}

// Wait blocks until all hooks have finished.
func (s *Shutdown) Wait() {
	<-s.done
}

func (s *Shutdown) run() {
	defer close(s.done)

	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.mu.Lock()
	hooks := make([]namedHook, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		start := time.Now()
		if err := h.fn(ctx); err != nil {
			s.logger.Warn("hook_failed", map[string]any{"hook": h.name}, err)
		} else {
			s.logger.TimedEvent("hook_done", start, map[string]any{"hook": h.name})
		}
		if ctx.Err() != nil {
			s.logger.Warn("shutdown_timeout", map[string]any{"remaining": i}, ctx.Err())
			return
		}
	}
}
