package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/jonwraymond/failguard/observe"
)

// TimeoutStrategy selects how a timeout is enforced.
type TimeoutStrategy int

const (
	// TimeoutCooperative passes a deadline context to the operation and
	// relies on the operation to honor it.
	TimeoutCooperative TimeoutStrategy = iota

	// TimeoutPessimistic races the operation against a timer and returns as
	// soon as the timer fires. The operation keeps running in the background
	// and its result is dropped; an operation that ignores its context
	// therefore leaks until it returns on its own.
	TimeoutPessimistic
)

// String returns the string representation of the strategy.
func (s TimeoutStrategy) String() string {
	switch s {
	case TimeoutCooperative:
		return "cooperative"
	case TimeoutPessimistic:
		return "pessimistic"
	default:
		return "unknown"
	}
}

// TimeoutPolicy configures the timeout wrapper.
type TimeoutPolicy struct {
	// Timeout is the maximum duration for the operation.
	// Default: 30 seconds
	Timeout time.Duration

	// Strategy is the enforcement strategy.
	// Default: TimeoutCooperative
	Strategy TimeoutStrategy
}

// Validate checks the policy for out-of-range values.
func (p TimeoutPolicy) Validate() error {
	if p.Timeout < 0 {
		return invalidf("timeout must be >= 0, got %v", p.Timeout)
	}
	switch p.Strategy {
	case TimeoutCooperative, TimeoutPessimistic:
	default:
		return invalidf("unknown timeout strategy %d", p.Strategy)
	}
	return nil
}

func (p TimeoutPolicy) withDefaults() TimeoutPolicy {
	if p.Timeout <= 0 {
		p.Timeout = 30 * time.Second
	}
	return p
}

type opResult[T any] struct {
	value T
	err   error
}

func timeout[T any](ctx context.Context, e *Engine, op Operation[T], p TimeoutPolicy) (T, error) {
	var zero T

	if err := ctx.Err(); err != nil {
		return zero, err
	}

	tctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	if p.Strategy == TimeoutPessimistic {
		return pessimisticTimeout(ctx, tctx, e, op, p)
	}

	result, err := op(tctx)
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		e.event(ctx, PolicyTimeout, "", EventTimeoutCancelled)
		return zero, ctx.Err()
	}
	if errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return zero, e.timedOut(ctx, p)
	}
	return zero, err
}

func pessimisticTimeout[T any](ctx, tctx context.Context, e *Engine, op Operation[T], p TimeoutPolicy) (T, error) {
	var zero T

	// Buffered so an abandoned operation can still deliver and exit.
	done := make(chan opResult[T], 1)
	go func() {
		value, err := op(tctx)
		done <- opResult[T]{value: value, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() != nil {
			e.event(ctx, PolicyTimeout, "", EventTimeoutCancelled)
			return zero, ctx.Err()
		}
		if r.err == nil {
			return r.value, nil
		}
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return zero, e.timedOut(ctx, p)
		}
		return zero, r.err
	case <-tctx.Done():
		if ctx.Err() != nil {
			e.event(ctx, PolicyTimeout, "", EventTimeoutCancelled)
			return zero, ctx.Err()
		}
		e.event(ctx, PolicyTimeout, "", EventTimeoutAbandoned)
		return zero, e.timedOut(ctx, p)
	}
}

func (e *Engine) timedOut(ctx context.Context, p TimeoutPolicy) error {
	e.event(ctx, PolicyTimeout, "", EventTimeoutElapsed)
	e.logger.Warn(ctx, "operation timed out",
		observe.Field{Key: "timeout_ms", Value: float64(p.Timeout.Milliseconds())},
		observe.Field{Key: "strategy", Value: p.Strategy.String()},
	)
	return &TimeoutError{Timeout: p.Timeout, Strategy: p.Strategy}
}
