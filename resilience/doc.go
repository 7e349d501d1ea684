// Package resilience executes operations under composable fault-tolerance
// policies: retry with backoff, circuit breaking, timeouts, bulkhead
// isolation and rate limiting.
//
// # Engine
//
// An Engine owns the named runtime state (circuit breakers, bulkheads, rate
// limiters) and the execution statistics. Executions that use the same
// breaker or bulkhead name share state. Engines are independent unless
// built with a shared Registry.
//
// # Policies
//
// Each policy has a generic entry point:
//
//	user, err := resilience.ExecuteWithRetry(ctx, engine, fetchUser, &resilience.RetryPolicy{
//	    MaxAttempts: 3,
//	    BaseDelay:   100 * time.Millisecond,
//	    Strategy:    resilience.BackoffExponential,
//	    UseJitter:   true,
//	})
//
// A CompositePolicy nests several of them. ExecutionOrder lists the layers
// outermost first:
//
//	p := &resilience.CompositePolicy{
//	    Retry:          &resilience.RetryPolicy{MaxAttempts: 3},
//	    CircuitBreaker: &resilience.CircuitBreakerPolicy{Name: "users", FailureThreshold: 5},
//	    Timeout:        &resilience.TimeoutPolicy{Timeout: 2 * time.Second},
//	    ExecutionOrder: []resilience.PolicyKind{
//	        resilience.PolicyRetry,
//	        resilience.PolicyCircuitBreaker,
//	        resilience.PolicyTimeout,
//	    },
//	}
//	user, err := resilience.ExecuteWithPolicy(ctx, engine, fetchUser, p)
//
// Here every retry attempt passes through the breaker, and each attempt is
// individually timed.
//
// Predefined bundles (HTTPBundle, FileIOBundle, DatabaseBundle,
// ExternalAPIBundle) cover common call types, and LoadBundles reads named
// bundles from YAML.
//
// # Errors
//
// Rejections are typed: *CircuitOpenError, *TimeoutError,
// *BulkheadRejectedError and *RateLimitedError match ErrCircuitOpen,
// ErrTimeout, ErrBulkheadFull and ErrRateLimitExceeded with errors.Is.
// Cancellation of the caller's context surfaces as the context's own error.
// Classify maps any result to an Outcome.
package resilience
