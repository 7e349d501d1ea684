package resilience

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/jonwraymond/failguard/observe"
)

// RateLimitPolicy configures a named token bucket rate limiter.
type RateLimitPolicy struct {
	// Name identifies the shared limiter state. Required.
	Name string

	// Rate is the number of operations allowed per second.
	// Default: 100
	Rate float64

	// Burst is the maximum burst size.
	// Default: 10
	Burst int

	// MaxWait is the maximum time to wait for a token.
	// Default: 0 (no waiting, fail immediately)
	MaxWait time.Duration
}

// Validate checks the policy for out-of-range values.
func (p RateLimitPolicy) Validate() error {
	if p.Name == "" {
		return ErrEmptyName
	}
	if p.Rate < 0 {
		return invalidf("rate limiter %q: rate must be >= 0, got %v", p.Name, p.Rate)
	}
	if p.Burst < 0 {
		return invalidf("rate limiter %q: burst must be >= 0, got %d", p.Name, p.Burst)
	}
	if p.MaxWait < 0 {
		return invalidf("rate limiter %q: max wait must be >= 0, got %v", p.Name, p.MaxWait)
	}
	return nil
}

func (p RateLimitPolicy) withDefaults() RateLimitPolicy {
	if p.Rate <= 0 {
		p.Rate = 100
	}
	if p.Burst <= 0 {
		p.Burst = 10
	}
	return p
}

type rateLimiter struct {
	policy  RateLimitPolicy
	limiter *rate.Limiter
}

func newRateLimiter(p RateLimitPolicy) *rateLimiter {
	return &rateLimiter{
		policy:  p,
		limiter: rate.NewLimiter(rate.Limit(p.Rate), p.Burst),
	}
}

func (rl *rateLimiter) wait(ctx context.Context) error {
	if rl.policy.MaxWait <= 0 {
		if !rl.limiter.Allow() {
			return &RateLimitedError{Name: rl.policy.Name}
		}
		return nil
	}

	wctx, cancel := context.WithTimeout(ctx, rl.policy.MaxWait)
	defer cancel()

	if err := rl.limiter.Wait(wctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &RateLimitedError{Name: rl.policy.Name}
	}
	return nil
}

func limit[T any](ctx context.Context, e *Engine, op Operation[T], p RateLimitPolicy) (T, error) {
	var zero T

	if err := ctx.Err(); err != nil {
		return zero, err
	}

	rl := e.registry.limiter(p)
	if err := rl.wait(ctx); err != nil {
		if ctx.Err() != nil {
			e.event(ctx, PolicyRateLimit, p.Name, EventRateLimitCancelled)
			return zero, err
		}
		e.event(ctx, PolicyRateLimit, p.Name, EventRateLimitRejected)
		e.logger.Warn(ctx, "rate limiter rejected call",
			observe.Field{Key: "limiter", Value: p.Name},
		)
		return zero, err
	}

	e.event(ctx, PolicyRateLimit, p.Name, EventRateLimitAdmitted)
	return op(ctx)
}
