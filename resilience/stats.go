package resilience

import (
	"maps"
	"sync"
	"time"
)

// EventType identifies a counted policy or execution event.
type EventType string

// Execution events. Exactly one is recorded per top-level execution.
const (
	EventExecutionSuccess          EventType = "execution.success"
	EventExecutionFailure          EventType = "execution.failure"
	EventExecutionCircuitOpen      EventType = "execution.circuit_open"
	EventExecutionTimeout          EventType = "execution.timeout"
	EventExecutionBulkheadRejected EventType = "execution.bulkhead_rejected"
	EventExecutionRateLimited      EventType = "execution.rate_limited"
	EventExecutionCancelled        EventType = "execution.cancelled"
)

// Policy events.
const (
	EventRetryAttemptSuccess EventType = "retry.attempt_success"
	EventRetryAttemptFailure EventType = "retry.attempt_failure"
	EventRetryScheduled      EventType = "retry.scheduled"
	EventRetryExhausted      EventType = "retry.exhausted"
	EventRetryCancelled      EventType = "retry.cancelled"

	EventCircuitSuccess    EventType = "circuit_breaker.success"
	EventCircuitFailure    EventType = "circuit_breaker.failure"
	EventCircuitRejected   EventType = "circuit_breaker.rejected"
	EventCircuitOpened     EventType = "circuit_breaker.opened"
	EventCircuitHalfOpened EventType = "circuit_breaker.half_opened"
	EventCircuitClosed     EventType = "circuit_breaker.closed"

	EventTimeoutElapsed   EventType = "timeout.elapsed"
	EventTimeoutAbandoned EventType = "timeout.abandoned"
	EventTimeoutCancelled EventType = "timeout.cancelled"

	EventBulkheadAdmitted  EventType = "bulkhead.admitted"
	EventBulkheadQueued    EventType = "bulkhead.queued"
	EventBulkheadRejected  EventType = "bulkhead.rejected"
	EventBulkheadCancelled EventType = "bulkhead.cancelled"

	EventRateLimitAdmitted  EventType = "rate_limit.admitted"
	EventRateLimitRejected  EventType = "rate_limit.rejected"
	EventRateLimitCancelled EventType = "rate_limit.cancelled"
)

func executionEvent(o Outcome) EventType {
	switch o {
	case OutcomeSuccess:
		return EventExecutionSuccess
	case OutcomeCircuitOpen:
		return EventExecutionCircuitOpen
	case OutcomeTimeout:
		return EventExecutionTimeout
	case OutcomeBulkheadRejected:
		return EventExecutionBulkheadRejected
	case OutcomeRateLimited:
		return EventExecutionRateLimited
	case OutcomeCancelled:
		return EventExecutionCancelled
	default:
		return EventExecutionFailure
	}
}

// StatisticsConfig configures the statistics aggregator.
type StatisticsConfig struct {
	// MaxSamples is the number of execution durations retained for the
	// running average. Older samples are overwritten.
	// Default: 1000
	MaxSamples int
}

// Statistics is a snapshot of execution counters.
type Statistics struct {
	TotalExecutions      int64
	SuccessfulExecutions int64
	FailedExecutions     int64

	// AverageExecutionTime is the mean over the retained samples.
	AverageExecutionTime time.Duration

	EventsByType map[EventType]int64
	LastUpdated  time.Time
}

// statsAggregator is the shared counter sink of an Engine. Durations live
// in a fixed ring so retention is bounded and eviction is O(1).
type statsAggregator struct {
	now func() time.Time

	mu          sync.Mutex
	total       int64
	succeeded   int64
	failed      int64
	events      map[EventType]int64
	samples     []time.Duration
	next        int
	count       int
	sum         time.Duration
	lastUpdated time.Time
}

func newStatsAggregator(cfg StatisticsConfig, now func() time.Time) *statsAggregator {
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = 1000
	}
	return &statsAggregator{
		now:     now,
		events:  make(map[EventType]int64),
		samples: make([]time.Duration, cfg.MaxSamples),
	}
}

func (s *statsAggregator) recordExecution(o Outcome, d time.Duration) {
	if d < 0 {
		d = 0
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	if o == OutcomeSuccess {
		s.succeeded++
	} else {
		s.failed++
	}
	s.events[executionEvent(o)]++

	if s.count == len(s.samples) {
		s.sum -= s.samples[s.next]
	} else {
		s.count++
	}
	s.samples[s.next] = d
	s.sum += d
	s.next = (s.next + 1) % len(s.samples)

	s.lastUpdated = now
}

func (s *statsAggregator) recordEvent(t EventType) {
	now := s.now()

	s.mu.Lock()
	s.events[t]++
	s.lastUpdated = now
	s.mu.Unlock()
}

func (s *statsAggregator) snapshot() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	var avg time.Duration
	if s.count > 0 {
		avg = s.sum / time.Duration(s.count)
	}

	return Statistics{
		TotalExecutions:      s.total,
		SuccessfulExecutions: s.succeeded,
		FailedExecutions:     s.failed,
		AverageExecutionTime: avg,
		EventsByType:         maps.Clone(s.events),
		LastUpdated:          s.lastUpdated,
	}
}

func (s *statsAggregator) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total, s.succeeded, s.failed = 0, 0, 0
	s.events = make(map[EventType]int64)
	clear(s.samples)
	s.next, s.count, s.sum = 0, 0, 0
	s.lastUpdated = time.Time{}
}
