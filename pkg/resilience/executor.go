package resilience

import (
	"context"
	"time"

	"github.com/jllopis/agora/pkg/errors"
)

// ExecutorConfig configures a bounded executor.
type ExecutorConfig struct {
	// MaxConcurrency caps the number of calls in flight (default 10).
	MaxConcurrency int

	// CallTimeout bounds each call; 0 disables the per-call deadline.
	CallTimeout time.Duration

	// Breaker optionally guards every call. Nil disables it.
	Breaker *CircuitBreaker
}

// Executor bounds concurrency and optionally runs each call through a
// circuit breaker and per-call deadline. Calling agents wrap their
// router and store interactions with it; the core itself does not
// depend on it.
type Executor struct {
	config ExecutorConfig
	slots  chan struct{}
}

// NewExecutor creates a bounded executor.
func NewExecutor(config ExecutorConfig) *Executor {
	if config.MaxConcurrency < 1 {
		config.MaxConcurrency = 10
	}
	return &Executor{
		config: config,
		slots:  make(chan struct{}, config.MaxConcurrency),
	}
}

// Execute runs fn once a concurrency slot is free. Waiting for a slot
// respects ctx; an open breaker or an exceeded per-call deadline
// surfaces as a recoverable typed error.
func (e *Executor) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case e.slots <- struct{}{}:
	case <-ctx.Done():
		return errors.New(errors.CodeInternal, "context canceled waiting for executor slot", ctx.Err()).
			WithRecoverable(true)
	}
	defer func() { <-e.slots }()

	call := func() error {
		callCtx := ctx
		if e.config.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, e.config.CallTimeout)
			defer cancel()
		}
		done := make(chan error, 1)
		go func() { done <- fn(callCtx) }()
		select {
		case <-callCtx.Done():
			return errors.New(errors.CodeInternal, "call exceeded timeout", callCtx.Err()).
				WithContext("timeout", e.config.CallTimeout.String()).
				WithRecoverable(true)
		case err := <-done:
			return err
		}
	}

	if e.config.Breaker != nil {
		return e.config.Breaker.Call(ctx, call)
	}
	return call()
}

// InFlight reports the number of calls currently holding a slot.
func (e *Executor) InFlight() int {
	return len(e.slots)
}
