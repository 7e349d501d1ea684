package resilience

import (
	"context"
	"testing"
	"time"
)

func BenchmarkExecuteWithRetry_Success(b *testing.B) {
	e := NewEngine()
	p := &RetryPolicy{MaxAttempts: 3}
	ctx := context.Background()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = ExecuteWithRetry(ctx, e, succeed, p)
	}
}

func BenchmarkExecuteWithCircuitBreaker_Closed(b *testing.B) {
	e := NewEngine()
	p := &CircuitBreakerPolicy{Name: "bench", FailureThreshold: 5}
	ctx := context.Background()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = ExecuteWithCircuitBreaker(ctx, e, succeed, p)
	}
}

func BenchmarkExecuteWithCircuitBreaker_Open(b *testing.B) {
	e := NewEngine()
	p := &CircuitBreakerPolicy{Name: "bench", FailureThreshold: 1, DurationOfBreak: time.Hour}
	ctx := context.Background()
	_, _ = ExecuteWithCircuitBreaker(ctx, e, fail, p)

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = ExecuteWithCircuitBreaker(ctx, e, succeed, p)
	}
}

func BenchmarkExecuteWithBulkhead_Parallel(b *testing.B) {
	e := NewEngine()
	p := &BulkheadPolicy{Name: "bench", MaxParallelization: 64, MaxQueuingActions: 1024}
	ctx := context.Background()

	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = ExecuteWithBulkhead(ctx, e, succeed, p)
		}
	})
}

func BenchmarkExecuteWithPolicy_HTTPBundle(b *testing.B) {
	e := NewEngine()
	p := &HTTPBundle("bench").CompositePolicy
	ctx := context.Background()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = ExecuteWithPolicy(ctx, e, succeed, p)
	}
}

func BenchmarkComputeDelay(b *testing.B) {
	p := RetryPolicy{BaseDelay: time.Millisecond, MaxDelay: time.Second, Strategy: BackoffExponential, UseJitter: true}
	for i := 0; i < b.N; i++ {
		_ = ComputeDelay(5, p, nil)
	}
}
