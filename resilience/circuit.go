package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/failguard/observe"
)

// CircuitState represents the circuit breaker state.
type CircuitState int

const (
	// CircuitClosed means the circuit is operating normally.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit is blocking all requests.
	CircuitOpen
	// CircuitHalfOpen means the circuit is admitting a single probe.
	CircuitHalfOpen
)

// String returns the string representation of the state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerPolicy configures a named circuit breaker.
//
// The breaker opens when the rolling window holds at least
// MinimumThroughput samples and either the consecutive failure count
// reaches FailureThreshold or the failure ratio reaches FailureRatio.
// Setting a knob to zero disables it; at least one must be set.
type CircuitBreakerPolicy struct {
	// Name identifies the shared breaker state. Required.
	Name string

	// FailureThreshold is the consecutive failure count that trips the breaker.
	FailureThreshold int

	// FailureRatio is the windowed failure ratio (0-1) that trips the breaker.
	FailureRatio float64

	// MinimumThroughput is the sample count required before tripping.
	// Default: 1
	MinimumThroughput int

	// SamplingDuration is the span of the rolling outcome window.
	// Default: 30 seconds
	SamplingDuration time.Duration

	// DurationOfBreak is how long the circuit stays open before probing.
	// Default: 30 seconds
	DurationOfBreak time.Duration

	// IsFailure determines if an error counts as a failure.
	// Default: every error except caller cancellation.
	IsFailure func(err error) bool

	// OnStateChange is called after the circuit changes state.
	OnStateChange func(name string, from, to CircuitState)
}

// Validate checks the policy for out-of-range values.
func (p CircuitBreakerPolicy) Validate() error {
	if p.Name == "" {
		return ErrEmptyName
	}
	if p.FailureThreshold < 0 {
		return invalidf("circuit breaker %q: failure threshold must be >= 0, got %d", p.Name, p.FailureThreshold)
	}
	if p.FailureRatio < 0 || p.FailureRatio > 1 {
		return invalidf("circuit breaker %q: failure ratio must be within [0, 1], got %v", p.Name, p.FailureRatio)
	}
	if p.FailureThreshold == 0 && p.FailureRatio == 0 {
		return invalidf("circuit breaker %q: failure threshold or failure ratio is required", p.Name)
	}
	if p.MinimumThroughput < 0 {
		return invalidf("circuit breaker %q: minimum throughput must be >= 0, got %d", p.Name, p.MinimumThroughput)
	}
	if p.SamplingDuration < 0 || p.DurationOfBreak < 0 {
		return invalidf("circuit breaker %q: durations must be >= 0", p.Name)
	}
	return nil
}

func (p CircuitBreakerPolicy) withDefaults() CircuitBreakerPolicy {
	if p.MinimumThroughput <= 0 {
		p.MinimumThroughput = 1
	}
	if p.SamplingDuration <= 0 {
		p.SamplingDuration = 30 * time.Second
	}
	if p.DurationOfBreak <= 0 {
		p.DurationOfBreak = 30 * time.Second
	}
	return p
}

// defaultCircuitBreakerPolicy backs breakers created by a manual override
// before any execution has configured them.
func defaultCircuitBreakerPolicy(name string) CircuitBreakerPolicy {
	return CircuitBreakerPolicy{
		Name:             name,
		FailureThreshold: 5,
	}.withDefaults()
}

type callResult int

const (
	callSuccess callResult = iota
	callFailure
	callIgnored
)

type transition struct {
	from, to CircuitState
}

// ticket is handed out on admission. Outcomes whose generation no longer
// matches the breaker are stale and ignored.
type ticket struct {
	generation uint64
	probe      bool
}

// circuitBreaker is the shared runtime state of one named breaker.
type circuitBreaker struct {
	mu          sync.Mutex
	policy      CircuitBreakerPolicy
	configured  bool
	state       CircuitState
	window      *rollingWindow
	consecutive int
	lastFailure time.Time
	openedAt    time.Time
	probing     bool
	generation  uint64
}

func newCircuitBreaker(p CircuitBreakerPolicy, configured bool) *circuitBreaker {
	return &circuitBreaker{
		policy:     p,
		configured: configured,
		state:      CircuitClosed,
		window:     newRollingWindow(p.SamplingDuration),
	}
}

// configure adopts p if the breaker was created without an execution policy.
func (cb *circuitBreaker) configure(p CircuitBreakerPolicy) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.configured {
		return
	}
	cb.policy = p
	cb.configured = true
	cb.window = newRollingWindow(p.SamplingDuration)
}

func (cb *circuitBreaker) acquire(now time.Time) (ticket, []transition, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	trs := cb.refreshLocked(now)

	switch cb.state {
	case CircuitOpen:
		return ticket{}, trs, &CircuitOpenError{Name: cb.policy.Name, State: CircuitOpen}
	case CircuitHalfOpen:
		if cb.probing {
			return ticket{}, trs, &CircuitOpenError{Name: cb.policy.Name, State: CircuitHalfOpen}
		}
		cb.probing = true
		return ticket{generation: cb.generation, probe: true}, trs, nil
	}

	return ticket{generation: cb.generation}, trs, nil
}

func (cb *circuitBreaker) record(t ticket, now time.Time, result callResult) []transition {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if t.generation != cb.generation {
		return nil
	}

	switch cb.state {
	case CircuitClosed:
		switch result {
		case callSuccess:
			cb.window.record(now, false)
			cb.consecutive = 0
		case callFailure:
			cb.window.record(now, true)
			// A run of failures breaks once its last failure leaves the window.
			if cb.consecutive > 0 && now.Sub(cb.lastFailure) >= cb.policy.SamplingDuration {
				cb.consecutive = 0
			}
			cb.consecutive++
			cb.lastFailure = now
			if cb.shouldTripLocked(now) {
				return []transition{cb.setStateLocked(CircuitOpen, now)}
			}
		}

	case CircuitHalfOpen:
		if !t.probe {
			return nil
		}
		cb.probing = false
		switch result {
		case callSuccess:
			return []transition{cb.setStateLocked(CircuitClosed, now)}
		case callFailure:
			return []transition{cb.setStateLocked(CircuitOpen, now)}
		}
	}

	return nil
}

func (cb *circuitBreaker) shouldTripLocked(now time.Time) bool {
	total, failures := cb.window.counts(now)
	if total < cb.policy.MinimumThroughput {
		return false
	}
	if cb.policy.FailureThreshold > 0 && cb.consecutive >= cb.policy.FailureThreshold {
		return true
	}
	if cb.policy.FailureRatio > 0 && float64(failures)/float64(total) >= cb.policy.FailureRatio {
		return true
	}
	return false
}

func (cb *circuitBreaker) refreshLocked(now time.Time) []transition {
	if cb.state == CircuitOpen && now.Sub(cb.openedAt) >= cb.policy.DurationOfBreak {
		return []transition{cb.setStateLocked(CircuitHalfOpen, now)}
	}
	return nil
}

func (cb *circuitBreaker) setStateLocked(to CircuitState, now time.Time) transition {
	from := cb.state
	cb.state = to
	cb.generation++
	cb.probing = false

	switch to {
	case CircuitOpen:
		cb.openedAt = now
	case CircuitClosed:
		cb.window.reset()
		cb.consecutive = 0
	}

	return transition{from: from, to: to}
}

func (cb *circuitBreaker) currentState(now time.Time) (CircuitState, []transition) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	trs := cb.refreshLocked(now)
	return cb.state, trs
}

// force moves the breaker to Open or Closed without evaluating the trip rule.
func (cb *circuitBreaker) force(open bool, now time.Time) []transition {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	to := CircuitClosed
	if open {
		to = CircuitOpen
	}
	return []transition{cb.setStateLocked(to, now)}
}

func (cb *circuitBreaker) classify(ctx context.Context, err error) callResult {
	if err == nil {
		return callSuccess
	}
	if ctx.Err() != nil || isCancellation(err) {
		return callIgnored
	}
	if cb.policy.IsFailure != nil && !cb.policy.IsFailure(err) {
		return callSuccess
	}
	return callFailure
}

func (cb *circuitBreaker) metrics(now time.Time) CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	total, failures := cb.window.counts(now)
	return CircuitBreakerMetrics{
		State:               cb.state,
		Samples:             total,
		Failures:            failures,
		ConsecutiveFailures: cb.consecutive,
		OpenedAt:            cb.openedAt,
	}
}

// CircuitBreakerMetrics contains a point-in-time view of a breaker.
type CircuitBreakerMetrics struct {
	State               CircuitState
	Samples             int
	Failures            int
	ConsecutiveFailures int
	OpenedAt            time.Time
}

func circuitBreak[T any](ctx context.Context, e *Engine, op Operation[T], p CircuitBreakerPolicy) (T, error) {
	var zero T

	cb := e.registry.breaker(p)
	t, trs, err := cb.acquire(e.now())
	e.emitTransitions(ctx, cb, trs)
	if err != nil {
		e.event(ctx, PolicyCircuitBreaker, p.Name, EventCircuitRejected)
		e.logger.Debug(ctx, "circuit breaker rejected call",
			observe.Field{Key: "breaker", Value: p.Name},
		)
		return zero, err
	}

	recorded := false
	defer func() {
		// op panicked: count it so a half-open probe slot is not leaked.
		if !recorded {
			e.emitTransitions(ctx, cb, cb.record(t, e.now(), callFailure))
		}
	}()

	result, err := op(ctx)

	outcome := cb.classify(ctx, err)
	switch outcome {
	case callSuccess:
		e.event(ctx, PolicyCircuitBreaker, p.Name, EventCircuitSuccess)
	case callFailure:
		e.event(ctx, PolicyCircuitBreaker, p.Name, EventCircuitFailure)
	}

	recorded = true
	e.emitTransitions(ctx, cb, cb.record(t, e.now(), outcome))

	if err != nil {
		return zero, err
	}
	return result, nil
}

func (e *Engine) emitTransitions(ctx context.Context, cb *circuitBreaker, trs []transition) {
	if len(trs) == 0 {
		return
	}

	cb.mu.Lock()
	p := cb.policy
	cb.mu.Unlock()

	for _, tr := range trs {
		if tr.from == tr.to {
			continue
		}
		fields := []observe.Field{
			{Key: "breaker", Value: p.Name},
			{Key: "from", Value: tr.from.String()},
			{Key: "to", Value: tr.to.String()},
		}

		switch tr.to {
		case CircuitOpen:
			e.event(ctx, PolicyCircuitBreaker, p.Name, EventCircuitOpened)
			e.logger.Warn(ctx, "circuit breaker opened", fields...)
		case CircuitHalfOpen:
			e.event(ctx, PolicyCircuitBreaker, p.Name, EventCircuitHalfOpened)
			e.logger.Info(ctx, "circuit breaker half-open", fields...)
		case CircuitClosed:
			e.event(ctx, PolicyCircuitBreaker, p.Name, EventCircuitClosed)
			e.logger.Info(ctx, "circuit breaker closed", fields...)
		}

		if p.OnStateChange != nil {
			p.OnStateChange(p.Name, tr.from, tr.to)
		}
	}
}
