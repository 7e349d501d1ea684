package health

import (
	"context"
	"time"
)

// Status is the health of a component. Larger values are more severe.
type Status int

const (
	StatusHealthy Status = iota
	// StatusDegraded means the component serves traffic with reduced
	// capacity or elevated failures, such as a half-open circuit.
	StatusDegraded
	StatusUnhealthy
)

var statusNames = [...]string{
	StatusHealthy:   "healthy",
	StatusDegraded:  "degraded",
	StatusUnhealthy: "unhealthy",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

func worse(a, b Status) Status {
	return max(a, b)
}

// Result is the outcome of one check.
type Result struct {
	Status  Status
	Message string

	// Details carries checker-specific values such as breaker state or
	// slot utilization. Rendered as JSON by the detailed handler.
	Details map[string]any

	// Duration is set by the Aggregator.
	Duration time.Duration

	Timestamp time.Time
	Error     error
}

func newResult(s Status, message string, err error) Result {
	return Result{Status: s, Message: message, Error: err, Timestamp: time.Now()}
}

// Healthy returns a healthy result.
func Healthy(message string) Result { return newResult(StatusHealthy, message, nil) }

// Degraded returns a degraded result.
func Degraded(message string) Result { return newResult(StatusDegraded, message, nil) }

// Unhealthy returns an unhealthy result caused by err.
func Unhealthy(message string, err error) Result {
	return newResult(StatusUnhealthy, message, err)
}

// WithDetails returns a copy of r carrying details.
func (r Result) WithDetails(details map[string]any) Result {
	r.Details = details
	return r
}

// Checker is the interface for health checks.
type Checker interface {
	// Name returns the name of this checker.
	Name() string

	// Check performs the health check and returns the result.
	Check(ctx context.Context) Result
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc struct {
	name string
	fn   func(context.Context) Result
}

// NewCheckerFunc returns a Checker named name that calls fn.
func NewCheckerFunc(name string, fn func(context.Context) Result) *CheckerFunc {
	return &CheckerFunc{name: name, fn: fn}
}

func (f *CheckerFunc) Name() string { return f.name }

func (f *CheckerFunc) Check(ctx context.Context) Result { return f.fn(ctx) }

// cancelled reports an unhealthy result when ctx is already done.
func cancelled(ctx context.Context) (Result, bool) {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err), true
	}
	return Result{}, false
}
