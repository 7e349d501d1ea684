package health

import (
	"context"
	"fmt"

	"github.com/jonwraymond/failguard/resilience"
)

// CircuitStateReader reports the state of named circuit breakers.
// *resilience.Engine implements it.
type CircuitStateReader interface {
	CircuitBreakerState(name string) (resilience.CircuitState, error)
}

// BulkheadReader reports the utilization of named bulkheads.
// *resilience.Engine implements it.
type BulkheadReader interface {
	BulkheadUtilization(name string) (float64, error)
}

// StatisticsReader reports execution statistics.
// *resilience.Engine implements it.
type StatisticsReader interface {
	Statistics() resilience.Statistics
}

// CircuitChecker maps a circuit breaker's state to a health status:
// closed is healthy, half-open is degraded and open is unhealthy.
type CircuitChecker struct {
	breaker string
	src     CircuitStateReader
}

// NewCircuitChecker creates a checker for the named breaker.
func NewCircuitChecker(src CircuitStateReader, breaker string) *CircuitChecker {
	return &CircuitChecker{breaker: breaker, src: src}
}

// Name returns "circuit:<breaker>".
func (c *CircuitChecker) Name() string {
	return "circuit:" + c.breaker
}

// Check reads the breaker state.
func (c *CircuitChecker) Check(ctx context.Context) Result {
	if r, done := cancelled(ctx); done {
		return r
	}

	state, err := c.src.CircuitBreakerState(c.breaker)
	if err != nil {
		return Unhealthy("circuit state unavailable", err)
	}

	details := map[string]any{
		"breaker": c.breaker,
		"state":   state.String(),
	}

	switch state {
	case resilience.CircuitClosed:
		return Healthy("circuit closed").WithDetails(details)
	case resilience.CircuitHalfOpen:
		return Degraded("circuit half-open, probing").WithDetails(details)
	default:
		return Unhealthy("circuit open", resilience.ErrCircuitOpen).WithDetails(details)
	}
}

// BulkheadCheckerConfig configures the bulkhead health checker.
type BulkheadCheckerConfig struct {
	// WarningThreshold is the utilization (0-1] that triggers degraded status.
	// Default: 0.8
	WarningThreshold float64

	// CriticalThreshold is the utilization (0-1] that triggers unhealthy status.
	// Default: 1.0
	CriticalThreshold float64
}

// BulkheadChecker reports a bulkhead's slot utilization.
type BulkheadChecker struct {
	bulkhead string
	src      BulkheadReader
	config   BulkheadCheckerConfig
}

// NewBulkheadChecker creates a checker for the named bulkhead.
func NewBulkheadChecker(src BulkheadReader, bulkhead string, config BulkheadCheckerConfig) *BulkheadChecker {
	if config.WarningThreshold <= 0 || config.WarningThreshold > 1 {
		config.WarningThreshold = 0.8
	}
	if config.CriticalThreshold <= 0 || config.CriticalThreshold > 1 {
		config.CriticalThreshold = 1
	}
	if config.CriticalThreshold < config.WarningThreshold {
		config.CriticalThreshold = config.WarningThreshold
	}

	return &BulkheadChecker{bulkhead: bulkhead, src: src, config: config}
}

// Name returns "bulkhead:<bulkhead>".
func (b *BulkheadChecker) Name() string {
	return "bulkhead:" + b.bulkhead
}

// Check compares current utilization against the thresholds.
func (b *BulkheadChecker) Check(ctx context.Context) Result {
	if r, done := cancelled(ctx); done {
		return r
	}

	u, err := b.src.BulkheadUtilization(b.bulkhead)
	if err != nil {
		return Unhealthy("bulkhead utilization unavailable", err)
	}

	details := map[string]any{
		"bulkhead":            b.bulkhead,
		"utilization_percent": u * 100,
	}

	switch {
	case u >= b.config.CriticalThreshold:
		return Unhealthy(
			fmt.Sprintf("bulkhead saturated: %.1f%%", u*100),
			resilience.ErrBulkheadFull,
		).WithDetails(details)
	case u >= b.config.WarningThreshold:
		return Degraded(fmt.Sprintf("bulkhead utilization high: %.1f%%", u*100)).WithDetails(details)
	default:
		return Healthy(fmt.Sprintf("bulkhead utilization normal: %.1f%%", u*100)).WithDetails(details)
	}
}

// StatisticsCheckerConfig configures the statistics health checker.
type StatisticsCheckerConfig struct {
	// WarningRatio is the failed/total ratio that triggers degraded status.
	// Default: 0.25
	WarningRatio float64

	// CriticalRatio is the failed/total ratio that triggers unhealthy status.
	// Default: 0.5
	CriticalRatio float64

	// MinExecutions is the number of executions required before the ratio
	// is judged. Below it the check is healthy.
	// Default: 10
	MinExecutions int64
}

// StatisticsChecker reports the engine-wide execution failure ratio.
type StatisticsChecker struct {
	src    StatisticsReader
	config StatisticsCheckerConfig
}

// NewStatisticsChecker creates a statistics checker.
func NewStatisticsChecker(src StatisticsReader, config StatisticsCheckerConfig) *StatisticsChecker {
	if config.WarningRatio <= 0 || config.WarningRatio > 1 {
		config.WarningRatio = 0.25
	}
	if config.CriticalRatio <= 0 || config.CriticalRatio > 1 {
		config.CriticalRatio = 0.5
	}
	if config.CriticalRatio < config.WarningRatio {
		config.CriticalRatio = config.WarningRatio
	}
	if config.MinExecutions <= 0 {
		config.MinExecutions = 10
	}

	return &StatisticsChecker{src: src, config: config}
}

// Name returns "executions".
func (s *StatisticsChecker) Name() string {
	return "executions"
}

// Check computes the failure ratio over all recorded executions.
func (s *StatisticsChecker) Check(ctx context.Context) Result {
	if r, done := cancelled(ctx); done {
		return r
	}

	stats := s.src.Statistics()
	details := map[string]any{
		"total":           stats.TotalExecutions,
		"failed":          stats.FailedExecutions,
		"average_time_ms": float64(stats.AverageExecutionTime.Microseconds()) / 1000,
	}

	if stats.TotalExecutions < s.config.MinExecutions {
		return Healthy(fmt.Sprintf("%d executions, below minimum of %d", stats.TotalExecutions, s.config.MinExecutions)).
			WithDetails(details)
	}

	ratio := float64(stats.FailedExecutions) / float64(stats.TotalExecutions)
	details["failure_ratio"] = ratio

	switch {
	case ratio >= s.config.CriticalRatio:
		return Unhealthy(fmt.Sprintf("failure ratio critical: %.1f%%", ratio*100), ErrCheckFailed).WithDetails(details)
	case ratio >= s.config.WarningRatio:
		return Degraded(fmt.Sprintf("failure ratio high: %.1f%%", ratio*100)).WithDetails(details)
	default:
		return Healthy(fmt.Sprintf("failure ratio normal: %.1f%%", ratio*100)).WithDetails(details)
	}
}
