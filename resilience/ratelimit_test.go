package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRateLimit_RejectsWithoutWait(t *testing.T) {
	e := NewEngine()
	p := &RateLimitPolicy{Name: "api", Rate: 0.001, Burst: 2}

	for i := range 2 {
		if _, err := ExecuteWithRateLimit(context.Background(), e, succeed, p); err != nil {
			t.Fatalf("call %d error = %v", i+1, err)
		}
	}

	_, err := ExecuteWithRateLimit(context.Background(), e, succeed, p)
	var rle *RateLimitedError
	if !errors.As(err, &rle) || rle.Name != "api" {
		t.Fatalf("error = %v, want *RateLimitedError", err)
	}
	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Error("RateLimitedError should match ErrRateLimitExceeded")
	}
	if n := eventCount(e, EventExecutionRateLimited); n != 1 {
		t.Errorf("rate-limited executions = %d, want 1", n)
	}
}

func TestRateLimit_WaitsForToken(t *testing.T) {
	e := NewEngine()
	p := &RateLimitPolicy{Name: "api", Rate: 100, Burst: 1, MaxWait: time.Second}

	for i := range 3 {
		if _, err := ExecuteWithRateLimit(context.Background(), e, succeed, p); err != nil {
			t.Fatalf("call %d error = %v", i+1, err)
		}
	}
}

func TestRateLimit_WaitTooLong(t *testing.T) {
	e := NewEngine()
	p := &RateLimitPolicy{Name: "api", Rate: 0.01, Burst: 1, MaxWait: 10 * time.Millisecond}

	_, _ = ExecuteWithRateLimit(context.Background(), e, succeed, p)
	if _, err := ExecuteWithRateLimit(context.Background(), e, succeed, p); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("error = %v, want ErrRateLimitExceeded", err)
	}
}

func TestRateLimit_CancelledWait(t *testing.T) {
	e := NewEngine()
	p := &RateLimitPolicy{Name: "api", Rate: 1, Burst: 1, MaxWait: time.Minute}
	_, _ = ExecuteWithRateLimit(context.Background(), e, succeed, p)

	// The next token is about one second away, well inside MaxWait.
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	_, err := ExecuteWithRateLimit(ctx, e, succeed, p)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if n := eventCount(e, EventRateLimitCancelled); n != 1 {
		t.Errorf("cancelled events = %d, want 1", n)
	}
	if n := eventCount(e, EventExecutionCancelled); n != 1 {
		t.Errorf("cancelled executions = %d, want 1", n)
	}
}

func TestRateLimit_Tokens(t *testing.T) {
	e := NewEngine()
	if n, err := e.RateLimiterTokens("api"); err != nil || n != 0 {
		t.Errorf("unknown limiter = %v, %v", n, err)
	}
	if _, err := e.RateLimiterTokens(""); !errors.Is(err, ErrEmptyName) {
		t.Errorf("empty name error = %v", err)
	}

	_, _ = ExecuteWithRateLimit(context.Background(), e, succeed, &RateLimitPolicy{Name: "api", Rate: 0.001, Burst: 5})
	n, err := e.RateLimiterTokens("api")
	if err != nil || n < 3.99 || n > 4.01 {
		t.Errorf("tokens = %v, %v; want about 4", n, err)
	}
	if names := e.Registry().RateLimiterNames(); len(names) != 1 || names[0] != "api" {
		t.Errorf("RateLimiterNames() = %v", names)
	}
}

func TestRateLimit_Validate(t *testing.T) {
	tests := []struct {
		name   string
		policy RateLimitPolicy
		want   error
	}{
		{"empty name", RateLimitPolicy{}, ErrEmptyName},
		{"negative rate", RateLimitPolicy{Name: "a", Rate: -1}, ErrInvalidPolicy},
		{"negative burst", RateLimitPolicy{Name: "a", Burst: -1}, ErrInvalidPolicy},
		{"negative wait", RateLimitPolicy{Name: "a", MaxWait: -time.Second}, ErrInvalidPolicy},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.policy.Validate(); !errors.Is(err, tc.want) {
				t.Errorf("Validate() error = %v, want %v", err, tc.want)
			}
		})
	}
}
