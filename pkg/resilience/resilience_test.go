package resilience

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jllopis/agora/pkg/errors"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Hour})
	ctx := context.Background()
	fail := func() error { return fmt.Errorf("down") }

	if err := cb.Call(ctx, fail); err == nil {
		t.Fatalf("expected failure")
	}
	if cb.State() != StateClosed {
		t.Fatalf("one failure must not open the circuit")
	}
	if err := cb.Call(ctx, fail); err == nil {
		t.Fatalf("expected failure")
	}
	if cb.State() != StateOpen {
		t.Fatalf("state %s, want open", cb.State())
	}

	// Open circuit rejects without invoking fn.
	invoked := false
	err := cb.Call(ctx, func() error { invoked = true; return nil })
	if invoked {
		t.Fatalf("open circuit must not invoke fn")
	}
	ae := errors.AsAgoraError(err)
	if ae == nil || !ae.Recoverable {
		t.Fatalf("open circuit error must be recoverable, got %v", err)
	}
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          time.Millisecond,
	})
	ctx := context.Background()

	cb.Call(ctx, func() error { return fmt.Errorf("down") })
	if cb.State() != StateOpen {
		t.Fatalf("expected open")
	}
	time.Sleep(5 * time.Millisecond)

	if err := cb.Call(ctx, func() error { return nil }); err != nil {
		t.Fatalf("half-open probe should run: %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("one success must not yet close, state %s", cb.State())
	}
	if err := cb.Call(ctx, func() error { return nil }); err != nil {
		t.Fatalf("second probe: %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("state %s, want closed", cb.State())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Millisecond})
	ctx := context.Background()
	cb.Call(ctx, func() error { return fmt.Errorf("down") })
	time.Sleep(5 * time.Millisecond)
	cb.Call(ctx, func() error { return fmt.Errorf("still down") })
	if cb.State() != StateOpen {
		t.Fatalf("half-open failure must reopen, state %s", cb.State())
	}
	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("reset must close the circuit")
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	rc := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	attempts := 0
	err := rc.Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts %d, want 3", attempts)
	}
}

func TestRetryStopsOnUnrecoverable(t *testing.T) {
	rc := RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}
	attempts := 0
	fatal := errors.New(errors.CodeValidation, "bad input", nil) // Recoverable defaults to false
	err := rc.Do(context.Background(), func() error {
		attempts++
		return fatal
	})
	if err != fatal {
		t.Fatalf("expected the typed error back, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("unrecoverable errors must not retry, attempts %d", attempts)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	rc := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	attempts := 0
	err := rc.Do(context.Background(), func() error {
		attempts++
		return fmt.Errorf("attempt %d", attempts)
	})
	if err == nil || attempts != 3 {
		t.Fatalf("expected 3 failed attempts, got %d with err %v", attempts, err)
	}
}

func TestRetryRespectsContext(t *testing.T) {
	rc := RetryConfig{MaxAttempts: 10, InitialDelay: 50 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := rc.Do(ctx, func() error {
		attempts++
		return fmt.Errorf("transient")
	})
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if attempts >= 10 {
		t.Fatalf("cancellation must cut retries short")
	}
}

func TestExecutorBoundsConcurrency(t *testing.T) {
	e := NewExecutor(ExecutorConfig{MaxConcurrency: 2})
	var inFlight, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Execute(context.Background(), func(ctx context.Context) error {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	if p := peak.Load(); p > 2 {
		t.Fatalf("peak concurrency %d exceeds bound 2", p)
	}
	if e.InFlight() != 0 {
		t.Fatalf("slots must drain, in flight %d", e.InFlight())
	}
}

func TestExecutorCallTimeout(t *testing.T) {
	e := NewExecutor(ExecutorConfig{MaxConcurrency: 1, CallTimeout: 5 * time.Millisecond})
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	ae := errors.AsAgoraError(err)
	if ae == nil || !ae.Recoverable {
		t.Fatalf("timeout must surface as recoverable typed error, got %v", err)
	}
}

func TestExecutorWithBreaker(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Hour})
	e := NewExecutor(ExecutorConfig{MaxConcurrency: 1, Breaker: cb})
	ctx := context.Background()

	if err := e.Execute(ctx, func(context.Context) error { return fmt.Errorf("down") }); err == nil {
		t.Fatalf("expected failure")
	}
	invoked := false
	e.Execute(ctx, func(context.Context) error { invoked = true; return nil })
	if invoked {
		t.Fatalf("open breaker must short-circuit the executor")
	}
}
