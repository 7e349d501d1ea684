package resilience

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/jonwraymond/failguard/observe"
)

// BulkheadPolicy configures a named bulkhead.
type BulkheadPolicy struct {
	// Name identifies the shared bulkhead state. Required.
	Name string

	// MaxParallelization is the number of concurrent execution slots.
	// Default: 10
	MaxParallelization int

	// MaxQueuingActions is the number of callers allowed to wait for a slot
	// beyond the execution slots. Zero rejects as soon as all slots are busy.
	MaxQueuingActions int
}

// Validate checks the policy for out-of-range values.
func (p BulkheadPolicy) Validate() error {
	if p.Name == "" {
		return ErrEmptyName
	}
	if p.MaxParallelization < 0 {
		return invalidf("bulkhead %q: max parallelization must be >= 0, got %d", p.Name, p.MaxParallelization)
	}
	if p.MaxQueuingActions < 0 {
		return invalidf("bulkhead %q: max queuing actions must be >= 0, got %d", p.Name, p.MaxQueuingActions)
	}
	return nil
}

func (p BulkheadPolicy) withDefaults() BulkheadPolicy {
	if p.MaxParallelization <= 0 {
		p.MaxParallelization = 10
	}
	return p
}

// bulkhead is the shared runtime state of one named bulkhead. The first
// policy registered under a name sizes it.
type bulkhead struct {
	policy BulkheadPolicy
	sem    *semaphore.Weighted

	mu     sync.Mutex
	active int
	queued int
}

func newBulkhead(p BulkheadPolicy) *bulkhead {
	return &bulkhead{
		policy: p,
		sem:    semaphore.NewWeighted(int64(p.MaxParallelization)),
	}
}

// acquire takes an execution slot, waiting in the queue if there is room.
// queued reports whether the caller had to wait.
func (b *bulkhead) acquire(ctx context.Context) (queued bool, err error) {
	b.mu.Lock()
	if b.sem.TryAcquire(1) {
		b.active++
		b.mu.Unlock()
		return false, nil
	}
	if b.queued >= b.policy.MaxQueuingActions {
		b.mu.Unlock()
		return false, &BulkheadRejectedError{
			Name:               b.policy.Name,
			MaxParallelization: b.policy.MaxParallelization,
			MaxQueuingActions:  b.policy.MaxQueuingActions,
		}
	}
	b.queued++
	b.mu.Unlock()

	// Weighted semaphores serve waiters in FIFO order.
	err = b.sem.Acquire(ctx, 1)

	b.mu.Lock()
	b.queued--
	if err == nil {
		b.active++
	}
	b.mu.Unlock()

	return true, err
}

func (b *bulkhead) release() {
	b.mu.Lock()
	b.active--
	b.mu.Unlock()
	b.sem.Release(1)
}

func (b *bulkhead) utilization() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return float64(b.active) / float64(b.policy.MaxParallelization)
}

func (b *bulkhead) metrics() BulkheadMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BulkheadMetrics{
		Active:             b.active,
		Queued:             b.queued,
		Available:          b.policy.MaxParallelization - b.active,
		MaxParallelization: b.policy.MaxParallelization,
		MaxQueuingActions:  b.policy.MaxQueuingActions,
	}
}

// BulkheadMetrics contains a point-in-time view of a bulkhead.
type BulkheadMetrics struct {
	Active             int
	Queued             int
	Available          int
	MaxParallelization int
	MaxQueuingActions  int
}

func isolate[T any](ctx context.Context, e *Engine, op Operation[T], p BulkheadPolicy) (T, error) {
	var zero T

	if err := ctx.Err(); err != nil {
		return zero, err
	}

	b := e.registry.bulkhead(p)
	queued, err := b.acquire(ctx)
	if queued {
		e.event(ctx, PolicyBulkhead, p.Name, EventBulkheadQueued)
	}
	if err != nil {
		if ctx.Err() != nil {
			e.event(ctx, PolicyBulkhead, p.Name, EventBulkheadCancelled)
			return zero, ctx.Err()
		}
		e.event(ctx, PolicyBulkhead, p.Name, EventBulkheadRejected)
		e.logger.Warn(ctx, "bulkhead rejected call",
			observe.Field{Key: "bulkhead", Value: p.Name},
		)
		return zero, err
	}
	defer b.release()

	e.event(ctx, PolicyBulkhead, p.Name, EventBulkheadAdmitted)
	return op(ctx)
}
