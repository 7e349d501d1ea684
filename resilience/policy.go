package resilience

import (
	"context"
	"fmt"
)

// Operation is a unit of work guarded by the engine. It must honor ctx.
type Operation[T any] func(ctx context.Context) (T, error)

// PolicyKind names a layer of a composite policy.
type PolicyKind int

const (
	// PolicyRetry re-runs failed attempts per RetryPolicy.
	PolicyRetry PolicyKind = iota
	// PolicyCircuitBreaker fails fast while the named breaker is open.
	PolicyCircuitBreaker
	// PolicyTimeout bounds each call through the layer.
	PolicyTimeout
	// PolicyBulkhead caps concurrent calls per name.
	PolicyBulkhead
	// PolicyRateLimit admits calls at a token-bucket rate per name.
	PolicyRateLimit
)

// String returns the string representation of the kind.
func (k PolicyKind) String() string {
	switch k {
	case PolicyRetry:
		return "retry"
	case PolicyCircuitBreaker:
		return "circuit_breaker"
	case PolicyTimeout:
		return "timeout"
	case PolicyBulkhead:
		return "bulkhead"
	case PolicyRateLimit:
		return "rate_limit"
	default:
		return "unknown"
	}
}

// ParsePolicyKind parses the string form produced by PolicyKind.String.
func ParsePolicyKind(s string) (PolicyKind, error) {
	switch s {
	case "retry":
		return PolicyRetry, nil
	case "circuit_breaker":
		return PolicyCircuitBreaker, nil
	case "timeout":
		return PolicyTimeout, nil
	case "bulkhead":
		return PolicyBulkhead, nil
	case "rate_limit":
		return PolicyRateLimit, nil
	default:
		return 0, fmt.Errorf("%w: unknown policy kind %q", ErrInvalidPolicy, s)
	}
}

// CompositePolicy nests several policies around one operation.
//
// ExecutionOrder lists the layers outermost first. A kind listed without a
// configured policy is skipped, as is a configured policy whose kind is not
// listed. A kind listed twice is applied once, at its first position. An
// empty order runs the operation directly.
type CompositePolicy struct {
	Retry          *RetryPolicy
	CircuitBreaker *CircuitBreakerPolicy
	Timeout        *TimeoutPolicy
	Bulkhead       *BulkheadPolicy
	RateLimit      *RateLimitPolicy

	ExecutionOrder []PolicyKind
}

// Validate validates every configured policy.
func (p *CompositePolicy) Validate() error {
	if p.Retry != nil {
		if err := p.Retry.Validate(); err != nil {
			return err
		}
	}
	if p.CircuitBreaker != nil {
		if err := p.CircuitBreaker.Validate(); err != nil {
			return err
		}
	}
	if p.Timeout != nil {
		if err := p.Timeout.Validate(); err != nil {
			return err
		}
	}
	if p.Bulkhead != nil {
		if err := p.Bulkhead.Validate(); err != nil {
			return err
		}
	}
	if p.RateLimit != nil {
		if err := p.RateLimit.Validate(); err != nil {
			return err
		}
	}
	for _, k := range p.ExecutionOrder {
		if k < PolicyRetry || k > PolicyRateLimit {
			return fmt.Errorf("%w: unknown policy kind %d in execution order", ErrInvalidPolicy, k)
		}
	}
	return nil
}

// Layers returns the kinds that will actually be applied, outermost first.
func (p *CompositePolicy) Layers() []PolicyKind {
	seen := make(map[PolicyKind]bool, len(p.ExecutionOrder))
	layers := make([]PolicyKind, 0, len(p.ExecutionOrder))
	for _, k := range p.ExecutionOrder {
		if seen[k] || !p.has(k) {
			continue
		}
		seen[k] = true
		layers = append(layers, k)
	}
	return layers
}

func (p *CompositePolicy) has(k PolicyKind) bool {
	switch k {
	case PolicyRetry:
		return p.Retry != nil
	case PolicyCircuitBreaker:
		return p.CircuitBreaker != nil
	case PolicyTimeout:
		return p.Timeout != nil
	case PolicyBulkhead:
		return p.Bulkhead != nil
	case PolicyRateLimit:
		return p.RateLimit != nil
	default:
		return false
	}
}

// compose builds the execution chain from the inside out.
func compose[T any](e *Engine, op Operation[T], p *CompositePolicy) Operation[T] {
	layers := p.Layers()
	chain := op

	for i := len(layers) - 1; i >= 0; i-- {
		inner := chain
		switch layers[i] {
		case PolicyRetry:
			rp := p.Retry.withDefaults()
			chain = func(ctx context.Context) (T, error) {
				return retry(ctx, e, inner, rp)
			}
		case PolicyCircuitBreaker:
			cp := p.CircuitBreaker.withDefaults()
			chain = func(ctx context.Context) (T, error) {
				return circuitBreak(ctx, e, inner, cp)
			}
		case PolicyTimeout:
			tp := p.Timeout.withDefaults()
			chain = func(ctx context.Context) (T, error) {
				return timeout(ctx, e, inner, tp)
			}
		case PolicyBulkhead:
			bp := p.Bulkhead.withDefaults()
			chain = func(ctx context.Context) (T, error) {
				return isolate(ctx, e, inner, bp)
			}
		case PolicyRateLimit:
			lp := p.RateLimit.withDefaults()
			chain = func(ctx context.Context) (T, error) {
				return limit(ctx, e, inner, lp)
			}
		}
	}

	return chain
}
