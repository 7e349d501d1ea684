package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonwraymond/failguard/resilience"
)

type stubBreakers map[string]resilience.CircuitState

func (s stubBreakers) CircuitBreakerState(name string) (resilience.CircuitState, error) {
	if name == "" {
		return resilience.CircuitClosed, resilience.ErrEmptyName
	}
	return s[name], nil
}

type stubBulkheads map[string]float64

func (s stubBulkheads) BulkheadUtilization(name string) (float64, error) {
	return s[name], nil
}

type stubStats resilience.Statistics

func (s stubStats) Statistics() resilience.Statistics {
	return resilience.Statistics(s)
}

func TestCircuitChecker(t *testing.T) {
	src := stubBreakers{
		"closed":    resilience.CircuitClosed,
		"half-open": resilience.CircuitHalfOpen,
		"open":      resilience.CircuitOpen,
	}

	tests := []struct {
		breaker string
		want    Status
		wantErr error
	}{
		{"closed", StatusHealthy, nil},
		{"half-open", StatusDegraded, nil},
		{"open", StatusUnhealthy, resilience.ErrCircuitOpen},
		{"", StatusUnhealthy, resilience.ErrEmptyName},
	}

	for _, tt := range tests {
		t.Run(tt.breaker, func(t *testing.T) {
			c := NewCircuitChecker(src, tt.breaker)
			r := c.Check(context.Background())
			if r.Status != tt.want {
				t.Errorf("Status = %v, want %v", r.Status, tt.want)
			}
			if tt.wantErr != nil && !errors.Is(r.Error, tt.wantErr) {
				t.Errorf("Error = %v, want %v", r.Error, tt.wantErr)
			}
		})
	}

	if got := NewCircuitChecker(src, "payments").Name(); got != "circuit:payments" {
		t.Errorf("Name() = %q", got)
	}
}

func TestCircuitChecker_Engine(t *testing.T) {
	e := resilience.NewEngine()
	c := NewCircuitChecker(e, "orders")

	if r := c.Check(context.Background()); r.Status != StatusHealthy {
		t.Fatalf("unknown breaker status = %v, want healthy", r.Status)
	}

	if err := e.SetCircuitBreakerState("orders", true); err != nil {
		t.Fatal(err)
	}
	r := c.Check(context.Background())
	if r.Status != StatusUnhealthy || r.Details["state"] != "open" {
		t.Errorf("forced open = %+v", r)
	}
}

func TestBulkheadChecker(t *testing.T) {
	src := stubBulkheads{"idle": 0.1, "busy": 0.8, "full": 1}

	tests := []struct {
		bulkhead string
		want     Status
	}{
		{"idle", StatusHealthy},
		{"busy", StatusDegraded},
		{"full", StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.bulkhead, func(t *testing.T) {
			r := NewBulkheadChecker(src, tt.bulkhead, BulkheadCheckerConfig{}).Check(context.Background())
			if r.Status != tt.want {
				t.Errorf("Status = %v, want %v (%s)", r.Status, tt.want, r.Message)
			}
		})
	}
}

func TestBulkheadChecker_Thresholds(t *testing.T) {
	c := NewBulkheadChecker(stubBulkheads{}, "db", BulkheadCheckerConfig{
		WarningThreshold:  0.9,
		CriticalThreshold: 0.5,
	})
	if c.config.CriticalThreshold != 0.9 {
		t.Errorf("CriticalThreshold = %v, want raised to the warning threshold", c.config.CriticalThreshold)
	}

	d := NewBulkheadChecker(stubBulkheads{}, "db", BulkheadCheckerConfig{WarningThreshold: 2})
	if d.config.WarningThreshold != 0.8 || d.config.CriticalThreshold != 1 {
		t.Errorf("defaults = %+v", d.config)
	}
}

func TestStatisticsChecker(t *testing.T) {
	tests := []struct {
		name  string
		stats resilience.Statistics
		want  Status
	}{
		{"too few executions", resilience.Statistics{TotalExecutions: 5, FailedExecutions: 5}, StatusHealthy},
		{"low ratio", resilience.Statistics{TotalExecutions: 100, FailedExecutions: 10}, StatusHealthy},
		{"warning ratio", resilience.Statistics{TotalExecutions: 100, FailedExecutions: 30}, StatusDegraded},
		{"critical ratio", resilience.Statistics{TotalExecutions: 100, FailedExecutions: 50}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewStatisticsChecker(stubStats(tt.stats), StatisticsCheckerConfig{}).Check(context.Background())
			if r.Status != tt.want {
				t.Errorf("Status = %v, want %v (%s)", r.Status, tt.want, r.Message)
			}
		})
	}
}

func TestStatisticsChecker_Engine(t *testing.T) {
	e := resilience.NewEngine()
	fail := func(ctx context.Context) (int, error) { return 0, errors.New("down") }
	for range 3 {
		_, _ = resilience.ExecuteWithTimeout(context.Background(), e, fail, &resilience.TimeoutPolicy{Timeout: time.Second})
	}

	c := NewStatisticsChecker(e, StatisticsCheckerConfig{MinExecutions: 3})
	r := c.Check(context.Background())
	if r.Status != StatusUnhealthy || !errors.Is(r.Error, ErrCheckFailed) {
		t.Errorf("Check() = %+v, want unhealthy", r)
	}
	if r.Details["failure_ratio"] != 1.0 {
		t.Errorf("failure_ratio = %v", r.Details["failure_ratio"])
	}
}

func TestResilienceCheckers_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	checkers := []Checker{
		NewCircuitChecker(stubBreakers{}, "a"),
		NewBulkheadChecker(stubBulkheads{}, "a", BulkheadCheckerConfig{}),
		NewStatisticsChecker(stubStats{}, StatisticsCheckerConfig{}),
	}
	for _, c := range checkers {
		if r := c.Check(ctx); r.Status != StatusUnhealthy || !errors.Is(r.Error, context.Canceled) {
			t.Errorf("%s: Check() = %+v", c.Name(), r)
		}
	}
}
