package resilience

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy defines how delays increase between retries.
type BackoffStrategy int

const (
	// BackoffFixed uses the same delay for all retries.
	BackoffFixed BackoffStrategy = iota
	// BackoffLinear increases delay linearly with the retry number.
	BackoffLinear
	// BackoffExponential doubles the delay each retry.
	BackoffExponential
)

// String returns the string representation of the strategy.
func (s BackoffStrategy) String() string {
	switch s {
	case BackoffFixed:
		return "fixed"
	case BackoffLinear:
		return "linear"
	case BackoffExponential:
		return "exponential"
	default:
		return "unknown"
	}
}

// ComputeDelay returns the backoff delay before retry number attempt
// (1-based) under policy p.
//
// The unjittered delay is clamped to p.MaxDelay when set. With p.UseJitter
// the clamped delay is multiplied by random(), which must return a value in
// [0, 1]; jitter therefore only ever shortens the delay. A nil random uses
// math/rand/v2.
func ComputeDelay(attempt int, p RetryPolicy, random func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if p.BaseDelay <= 0 {
		return 0
	}

	var delay float64
	switch p.Strategy {
	case BackoffLinear:
		delay = float64(p.BaseDelay) * float64(attempt)
	case BackoffExponential:
		delay = float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	default:
		delay = float64(p.BaseDelay)
	}

	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	// Large exponential attempts overflow to +Inf; Inf*0 jitter is NaN.
	if delay > maxDelayFloat {
		delay = maxDelayFloat
	}

	if p.UseJitter {
		if random == nil {
			// #nosec G404 -- jitter is non-cryptographic timing variance.
			random = rand.Float64
		}
		f := random()
		if f < 0 || math.IsNaN(f) {
			f = 0
		} else if f > 1 {
			f = 1
		}
		delay *= f
	}

	if delay >= maxDelayFloat {
		return time.Duration(math.MaxInt64)
	}
	if delay <= 0 {
		return 0
	}
	return time.Duration(delay)
}

// maxDelayFloat is the largest float64 that converts to a valid Duration.
const maxDelayFloat = float64(math.MaxInt64 - 1023)
