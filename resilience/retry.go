package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/jonwraymond/failguard/observe"
)

// RetryPolicy configures the retry behavior.
type RetryPolicy struct {
	// MaxAttempts is the number of retries after the first attempt.
	// Zero disables retrying.
	MaxAttempts int

	// BaseDelay is the delay unit fed to the backoff strategy.
	BaseDelay time.Duration

	// MaxDelay caps the unjittered delay. Zero means no cap.
	MaxDelay time.Duration

	// Strategy is the backoff strategy.
	// Default: BackoffFixed
	Strategy BackoffStrategy

	// UseJitter scales each delay by a random factor in [0, 1].
	UseJitter bool

	// ShouldRetry determines if an error should trigger a retry.
	// Default: DefaultShouldRetry
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry is scheduled.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultShouldRetry retries every error except context.Canceled. A
// DeadlineExceeded from the operation itself, such as a client timeout, is
// retried; an expired caller context stops the loop before the predicate
// is consulted.
func DefaultShouldRetry(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// Validate checks the policy for out-of-range values.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 0 {
		return invalidf("retry max attempts must be >= 0, got %d", p.MaxAttempts)
	}
	if p.BaseDelay < 0 {
		return invalidf("retry base delay must be >= 0, got %v", p.BaseDelay)
	}
	if p.MaxDelay < 0 {
		return invalidf("retry max delay must be >= 0, got %v", p.MaxDelay)
	}
	switch p.Strategy {
	case BackoffFixed, BackoffLinear, BackoffExponential:
	default:
		return invalidf("unknown backoff strategy %d", p.Strategy)
	}
	return nil
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.ShouldRetry == nil {
		p.ShouldRetry = DefaultShouldRetry
	}
	return p
}

func retry[T any](ctx context.Context, e *Engine, op Operation[T], p RetryPolicy) (T, error) {
	var zero T

	for retries := 0; ; retries++ {
		result, err := op(ctx)
		if err == nil {
			e.event(ctx, PolicyRetry, "", EventRetryAttemptSuccess)
			return result, nil
		}
		e.event(ctx, PolicyRetry, "", EventRetryAttemptFailure)

		if ctx.Err() != nil {
			e.event(ctx, PolicyRetry, "", EventRetryCancelled)
			return zero, ctx.Err()
		}

		if !p.ShouldRetry(err) {
			return zero, err
		}

		if retries >= p.MaxAttempts {
			e.event(ctx, PolicyRetry, "", EventRetryExhausted)
			return zero, err
		}

		delay := ComputeDelay(retries+1, p, e.random)
		if p.OnRetry != nil {
			p.OnRetry(retries+1, err, delay)
		}
		e.event(ctx, PolicyRetry, "", EventRetryScheduled)
		e.logger.Debug(ctx, "retry scheduled",
			observe.Field{Key: "attempt", Value: retries + 1},
			observe.Field{Key: "delay_ms", Value: float64(delay.Milliseconds())},
			observe.Field{Key: "error", Value: err.Error()},
		)

		if err := sleep(ctx, delay); err != nil {
			e.event(ctx, PolicyRetry, "", EventRetryCancelled)
			return zero, err
		}
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
