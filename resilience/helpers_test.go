package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

// fakeClock is a manually advanced clock for breaker and statistics tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 14, 9, 26, 53, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestEngine(clk *fakeClock, opts ...EngineOption) *Engine {
	if clk != nil {
		opts = append([]EngineOption{WithClock(clk.Now)}, opts...)
	}
	return NewEngine(opts...)
}

func succeed(ctx context.Context) (string, error) {
	return "ok", nil
}

func fail(ctx context.Context) (string, error) {
	return "", errBoom
}

// waitFor polls cond until it holds or the test deadline of one second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func eventCount(e *Engine, t EventType) int64 {
	return e.Statistics().EventsByType[t]
}
