package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrRateLimitExceeded is returned when the rate limit is exceeded.
	ErrRateLimitExceeded = errors.New("resilience: rate limit exceeded")

	// ErrBulkheadFull is returned when the bulkhead and its queue are at capacity.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("resilience: operation timed out")
)

// Argument errors. These are returned before anything executes and are
// never recorded in statistics.
var (
	// ErrNilEngine indicates a nil *Engine was provided.
	ErrNilEngine = errors.New("resilience: engine is nil")

	// ErrNilOperation indicates a nil operation was provided.
	ErrNilOperation = errors.New("resilience: operation is nil")

	// ErrNilPolicy indicates a nil policy was provided.
	ErrNilPolicy = errors.New("resilience: policy is nil")

	// ErrEmptyName indicates a circuit breaker, bulkhead or rate limiter name is empty.
	ErrEmptyName = errors.New("resilience: name is required")

	// ErrInvalidPolicy indicates a policy field is out of range.
	ErrInvalidPolicy = errors.New("resilience: invalid policy")
)

// CircuitOpenError is returned when a call is rejected by an open circuit.
type CircuitOpenError struct {
	Name  string
	State CircuitState
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("resilience: circuit breaker %q is %s", e.Name, e.State)
}

// Is reports whether target is ErrCircuitOpen.
func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// TimeoutError is returned when an operation exceeds its time bound.
//
// It does not match context.DeadlineExceeded, so the default retry
// predicate retries it.
type TimeoutError struct {
	Timeout  time.Duration
	Strategy TimeoutStrategy
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("resilience: operation timed out after %v (%s)", e.Timeout, e.Strategy)
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// BulkheadRejectedError is returned when a bulkhead has no free slot and no
// queue capacity left.
type BulkheadRejectedError struct {
	Name               string
	MaxParallelization int
	MaxQueuingActions  int
}

func (e *BulkheadRejectedError) Error() string {
	return fmt.Sprintf("resilience: bulkhead %q rejected execution (slots=%d, queue=%d)",
		e.Name, e.MaxParallelization, e.MaxQueuingActions)
}

// Is reports whether target is ErrBulkheadFull.
func (e *BulkheadRejectedError) Is(target error) bool {
	return target == ErrBulkheadFull
}

// RateLimitedError is returned when no token could be obtained in time.
type RateLimitedError struct {
	Name string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("resilience: rate limit exceeded for %q", e.Name)
}

// Is reports whether target is ErrRateLimitExceeded.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// Outcome classifies the result of an execution.
type Outcome int

const (
	// OutcomeSuccess means the operation returned a nil error.
	OutcomeSuccess Outcome = iota
	// OutcomeFailure is the operation's own error, after any retries.
	OutcomeFailure
	// OutcomeCircuitOpen means a breaker rejected the call.
	OutcomeCircuitOpen
	// OutcomeTimeout means a timeout layer elapsed.
	OutcomeTimeout
	// OutcomeBulkheadRejected means no bulkhead slot or queue space was free.
	OutcomeBulkheadRejected
	// OutcomeRateLimited means no token was available within MaxWait.
	OutcomeRateLimited
	// OutcomeCancelled means the caller's context ended first.
	OutcomeCancelled
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeCircuitOpen:
		return "circuit_open"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeBulkheadRejected:
		return "bulkhead_rejected"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Classify maps an execution error to an Outcome. A done caller context
// takes precedence over every other condition.
func Classify(ctx context.Context, err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	if ctx != nil && ctx.Err() != nil {
		return OutcomeCancelled
	}
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return OutcomeCircuitOpen
	case errors.Is(err, ErrTimeout):
		return OutcomeTimeout
	case errors.Is(err, ErrBulkheadFull):
		return OutcomeBulkheadRejected
	case errors.Is(err, ErrRateLimitExceeded):
		return OutcomeRateLimited
	case isCancellation(err):
		return OutcomeCancelled
	default:
		return OutcomeFailure
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPolicy, fmt.Sprintf(format, args...))
}
