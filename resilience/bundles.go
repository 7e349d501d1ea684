package resilience

import "time"

// HTTPBundle returns the default policy for calls to an HTTP service.
//
//   - Retry: 3 attempts, exponential 200ms..5s with jitter
//   - Circuit breaker: opens at 5 consecutive failures or a 50% failure
//     ratio over 30s with at least 10 calls; 30s break
//   - Timeout: 30s per attempt, cooperative
//   - Order: retry, circuit breaker, timeout
//   - HTTPTimeout 60s overall, ConnectTimeout 10s
func HTTPBundle(name string) *HTTPCompositePolicy {
	return &HTTPCompositePolicy{
		CompositePolicy: CompositePolicy{
			Retry: &RetryPolicy{
				MaxAttempts: 3,
				BaseDelay:   200 * time.Millisecond,
				MaxDelay:    5 * time.Second,
				Strategy:    BackoffExponential,
				UseJitter:   true,
			},
			CircuitBreaker: serviceBreaker(name),
			Timeout:        &TimeoutPolicy{Timeout: 30 * time.Second},
			ExecutionOrder: []PolicyKind{PolicyRetry, PolicyCircuitBreaker, PolicyTimeout},
		},
		HTTPTimeout:    60 * time.Second,
		ConnectTimeout: 10 * time.Second,
	}
}

// FileIOBundle returns the default policy for local file operations:
// 2 attempts with linear 100ms..1s backoff and a 10s timeout. File I/O
// is not isolated or circuit broken.
func FileIOBundle() *CompositePolicy {
	return &CompositePolicy{
		Retry: &RetryPolicy{
			MaxAttempts: 2,
			BaseDelay:   100 * time.Millisecond,
			MaxDelay:    time.Second,
			Strategy:    BackoffLinear,
		},
		Timeout:        &TimeoutPolicy{Timeout: 10 * time.Second},
		ExecutionOrder: []PolicyKind{PolicyRetry, PolicyTimeout},
	}
}

// DatabaseBundle returns the default policy for database calls.
//
//   - Retry: 3 attempts, exponential 100ms..2s
//   - Circuit breaker: as HTTPBundle
//   - Bulkhead: 10 concurrent, 50 queued
//   - Timeout: 15s per attempt
//   - Order: retry, circuit breaker, bulkhead, timeout
func DatabaseBundle(name string) *CompositePolicy {
	return &CompositePolicy{
		Retry: &RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   100 * time.Millisecond,
			MaxDelay:    2 * time.Second,
			Strategy:    BackoffExponential,
		},
		CircuitBreaker: serviceBreaker(name),
		Bulkhead: &BulkheadPolicy{
			Name:               name,
			MaxParallelization: 10,
			MaxQueuingActions:  50,
		},
		Timeout:        &TimeoutPolicy{Timeout: 15 * time.Second},
		ExecutionOrder: []PolicyKind{PolicyRetry, PolicyCircuitBreaker, PolicyBulkhead, PolicyTimeout},
	}
}

// ExternalAPIBundle returns the default policy for third-party APIs: more
// retries (5, exponential 500ms..30s with jitter) and a longer timeout
// (60s) than HTTPBundle.
func ExternalAPIBundle(name string) *CompositePolicy {
	return &CompositePolicy{
		Retry: &RetryPolicy{
			MaxAttempts: 5,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    30 * time.Second,
			Strategy:    BackoffExponential,
			UseJitter:   true,
		},
		CircuitBreaker: serviceBreaker(name),
		Timeout:        &TimeoutPolicy{Timeout: 60 * time.Second},
		ExecutionOrder: []PolicyKind{PolicyRetry, PolicyCircuitBreaker, PolicyTimeout},
	}
}

func serviceBreaker(name string) *CircuitBreakerPolicy {
	return &CircuitBreakerPolicy{
		Name:              name,
		FailureThreshold:  5,
		FailureRatio:      0.5,
		MinimumThroughput: 10,
		SamplingDuration:  30 * time.Second,
		DurationOfBreak:   30 * time.Second,
	}
}
