package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

// holdSlots starts n executions in bulkhead p that block until release is
// closed.
func holdSlots(e *Engine, p *BulkheadPolicy, n int, release <-chan struct{}) *sync.WaitGroup {
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = ExecuteWithBulkhead(context.Background(), e, func(ctx context.Context) (string, error) {
				<-release
				return "ok", nil
			}, p)
		}()
	}
	return &wg
}

func TestBulkhead_RejectsWhenFull(t *testing.T) {
	e := NewEngine()
	p := &BulkheadPolicy{Name: "db", MaxParallelization: 2}
	release := make(chan struct{})

	wg := holdSlots(e, p, 2, release)
	waitFor(t, "both slots busy", func() bool {
		u, _ := e.BulkheadUtilization("db")
		return u == 1
	})

	called := false
	_, err := ExecuteWithBulkhead(context.Background(), e, func(ctx context.Context) (string, error) {
		called = true
		return "", nil
	}, p)

	var bre *BulkheadRejectedError
	if !errors.As(err, &bre) || bre.Name != "db" || bre.MaxParallelization != 2 {
		t.Fatalf("error = %v, want *BulkheadRejectedError for db", err)
	}
	if !errors.Is(err, ErrBulkheadFull) {
		t.Error("BulkheadRejectedError should match ErrBulkheadFull")
	}
	if called {
		t.Error("rejected operation ran")
	}
	if n := eventCount(e, EventExecutionBulkheadRejected); n != 1 {
		t.Errorf("rejected executions = %d, want 1", n)
	}

	close(release)
	wg.Wait()

	if u, _ := e.BulkheadUtilization("db"); u != 0 {
		t.Errorf("utilization after release = %v, want 0", u)
	}
	if _, err := ExecuteWithBulkhead(context.Background(), e, succeed, p); err != nil {
		t.Fatalf("call after release error = %v", err)
	}
}

func TestBulkhead_Queue(t *testing.T) {
	e := NewEngine()
	p := &BulkheadPolicy{Name: "db", MaxParallelization: 1, MaxQueuingActions: 1}
	release := make(chan struct{})

	wg := holdSlots(e, p, 1, release)
	waitFor(t, "slot busy", func() bool {
		m, _ := e.BulkheadMetrics("db")
		return m.Active == 1
	})

	queuedDone := make(chan error, 1)
	go func() {
		_, err := ExecuteWithBulkhead(context.Background(), e, succeed, p)
		queuedDone <- err
	}()
	waitFor(t, "caller queued", func() bool {
		m, _ := e.BulkheadMetrics("db")
		return m.Queued == 1
	})

	if _, err := ExecuteWithBulkhead(context.Background(), e, succeed, p); !errors.Is(err, ErrBulkheadFull) {
		t.Fatalf("overflow error = %v, want ErrBulkheadFull", err)
	}

	close(release)
	wg.Wait()
	if err := <-queuedDone; err != nil {
		t.Fatalf("queued call error = %v", err)
	}
	if n := eventCount(e, EventBulkheadQueued); n != 1 {
		t.Errorf("queued events = %d, want 1", n)
	}
}

func TestBulkhead_QueueWaitCancelled(t *testing.T) {
	e := NewEngine()
	p := &BulkheadPolicy{Name: "db", MaxParallelization: 1, MaxQueuingActions: 1}
	release := make(chan struct{})
	defer close(release)

	holdSlots(e, p, 1, release)
	waitFor(t, "slot busy", func() bool {
		m, _ := e.BulkheadMetrics("db")
		return m.Active == 1
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := ExecuteWithBulkhead(ctx, e, succeed, p)
		done <- err
	}()
	waitFor(t, "caller queued", func() bool {
		m, _ := e.BulkheadMetrics("db")
		return m.Queued == 1
	})

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}

	m, _ := e.BulkheadMetrics("db")
	if m.Queued != 0 || m.Active != 1 {
		t.Errorf("metrics after cancel = %+v, want 1 active, 0 queued", m)
	}
	if n := eventCount(e, EventBulkheadCancelled); n != 1 {
		t.Errorf("cancelled events = %d, want 1", n)
	}
}

func TestBulkhead_BoundsConcurrency(t *testing.T) {
	e := NewEngine()
	p := &BulkheadPolicy{Name: "db", MaxParallelization: 3, MaxQueuingActions: 100}

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ExecuteWithBulkhead(context.Background(), e, func(ctx context.Context) (string, error) {
				n := active.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				defer active.Add(-1)
				return "ok", nil
			}, p)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak.Load() > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak.Load())
	}
	if stats := e.Statistics(); stats.SuccessfulExecutions != 30 {
		t.Errorf("successful executions = %d, want 30", stats.SuccessfulExecutions)
	}
}

func TestBulkhead_ReleasedOnError(t *testing.T) {
	e := NewEngine()
	p := &BulkheadPolicy{Name: "db", MaxParallelization: 1}

	for range 3 {
		if _, err := ExecuteWithBulkhead(context.Background(), e, fail, p); !errors.Is(err, errBoom) {
			t.Fatalf("error = %v, want boom", err)
		}
	}
	if u, _ := e.BulkheadUtilization("db"); u != 0 {
		t.Errorf("utilization = %v, want 0", u)
	}
}

func TestBulkhead_FirstPolicySizes(t *testing.T) {
	e := NewEngine()
	_, _ = ExecuteWithBulkhead(context.Background(), e, succeed, &BulkheadPolicy{Name: "db", MaxParallelization: 4})
	_, _ = ExecuteWithBulkhead(context.Background(), e, succeed, &BulkheadPolicy{Name: "db", MaxParallelization: 50})

	m, ok := e.BulkheadMetrics("db")
	if !ok || m.MaxParallelization != 4 {
		t.Fatalf("metrics = %+v, want MaxParallelization 4", m)
	}
}

func TestBulkhead_Utilization(t *testing.T) {
	e := NewEngine()
	if u, err := e.BulkheadUtilization("unknown"); err != nil || u != 0 {
		t.Errorf("unknown name = %v, %v; want 0, nil", u, err)
	}
	if _, err := e.BulkheadUtilization(""); !errors.Is(err, ErrEmptyName) {
		t.Errorf("empty name error = %v", err)
	}
	if _, err := ExecuteWithBulkhead(context.Background(), e, succeed, &BulkheadPolicy{}); !errors.Is(err, ErrEmptyName) {
		t.Errorf("empty policy name error = %v", err)
	}
}
