package resilience

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/failguard/observe"
)

// Engine executes operations under resilience policies.
//
// Contract:
//   - Concurrency: an Engine is safe for concurrent use.
//   - State: circuit breakers, bulkheads and rate limiters are keyed by name
//     in the engine's Registry; callers sharing a name share state.
//   - Statistics: each top-level Execute* call records exactly one
//     execution outcome. Argument errors are not recorded.
type Engine struct {
	registry   *Registry
	stats      *statsAggregator
	statsCfg   StatisticsConfig
	logger     observe.Logger
	middleware *observe.Middleware
	now        func() time.Time
	random     func() float64
	newID      func() string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// NewEngine creates a new resilience engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		logger: observe.NopLogger(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = NewRegistry()
	}
	if e.middleware == nil {
		e.middleware = observe.NewMiddleware(observe.NopTracer(), observe.NopMetrics(), e.logger)
	}
	e.stats = newStatsAggregator(e.statsCfg, e.now)
	return e
}

// WithRegistry shares a registry between engines.
func WithRegistry(r *Registry) EngineOption {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithLogger sets the logger used for policy events.
func WithLogger(l observe.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMiddleware sets the tracing/metrics middleware applied to each
// top-level execution.
func WithMiddleware(m *observe.Middleware) EngineOption {
	return func(e *Engine) {
		e.middleware = m
	}
}

// WithObserver wires logger, tracer and meter from an observer.
func WithObserver(obs observe.Observer) EngineOption {
	return func(e *Engine) {
		e.logger = obs.Logger()
		m, err := observe.MiddlewareFromObserver(obs)
		if err != nil {
			e.logger.Error(context.Background(), "failed to create metrics middleware",
				observe.Field{Key: "error", Value: err.Error()},
			)
			m = observe.NewMiddleware(observe.TracerFrom(obs.Tracer()), observe.NopMetrics(), obs.Logger())
		}
		e.middleware = m
	}
}

// WithClock replaces time.Now for breaker timing and statistics.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithRandom replaces the jitter source. f must return values in [0, 1].
func WithRandom(f func() float64) EngineOption {
	return func(e *Engine) {
		e.random = f
	}
}

// WithStatisticsConfig configures statistics retention.
func WithStatisticsConfig(cfg StatisticsConfig) EngineOption {
	return func(e *Engine) {
		e.statsCfg = cfg
	}
}

// Registry returns the engine's state registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

type executionIDKey struct{}

// ExecutionID returns the ID of the top-level execution running in ctx.
func ExecutionID(ctx context.Context) string {
	id, _ := ctx.Value(executionIDKey{}).(string)
	return id
}

func (e *Engine) event(ctx context.Context, kind PolicyKind, name string, t EventType) {
	e.stats.recordEvent(t)
	e.middleware.Event(ctx, observe.ExecMeta{
		ID:     ExecutionID(ctx),
		Policy: kind.String(),
		Name:   name,
	}, string(t))
}

// execute runs a built chain as one top-level execution.
func execute[T any](ctx context.Context, e *Engine, meta observe.ExecMeta, chain Operation[T]) (T, error) {
	var result T

	meta.ID = e.newID()
	ctx = context.WithValue(ctx, executionIDKey{}, meta.ID)

	start := e.now()
	err := e.middleware.Wrap(func(ctx context.Context, meta observe.ExecMeta) error {
		var err error
		result, err = chain(ctx)
		return err
	})(ctx, meta)
	e.stats.recordExecution(Classify(ctx, err), e.now().Sub(start))

	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func checkArgs(e *Engine, opNil, policyNil bool) error {
	switch {
	case e == nil:
		return ErrNilEngine
	case opNil:
		return ErrNilOperation
	case policyNil:
		return ErrNilPolicy
	}
	return nil
}

// ExecuteWithRetry runs op under a retry policy.
func ExecuteWithRetry[T any](ctx context.Context, e *Engine, op Operation[T], p *RetryPolicy) (T, error) {
	var zero T
	if err := checkArgs(e, op == nil, p == nil); err != nil {
		return zero, err
	}
	if err := p.Validate(); err != nil {
		return zero, err
	}

	rp := p.withDefaults()
	return execute(ctx, e, observe.ExecMeta{Policy: PolicyRetry.String()}, func(ctx context.Context) (T, error) {
		return retry(ctx, e, op, rp)
	})
}

// ExecuteWithCircuitBreaker runs op through the named circuit breaker.
// Rejections return a *CircuitOpenError without invoking op.
func ExecuteWithCircuitBreaker[T any](ctx context.Context, e *Engine, op Operation[T], p *CircuitBreakerPolicy) (T, error) {
	var zero T
	if err := checkArgs(e, op == nil, p == nil); err != nil {
		return zero, err
	}
	if err := p.Validate(); err != nil {
		return zero, err
	}

	cp := p.withDefaults()
	return execute(ctx, e, observe.ExecMeta{Policy: PolicyCircuitBreaker.String(), Name: cp.Name}, func(ctx context.Context) (T, error) {
		return circuitBreak(ctx, e, op, cp)
	})
}

// ExecuteWithTimeout runs op under a time bound. Expiry returns a *TimeoutError.
func ExecuteWithTimeout[T any](ctx context.Context, e *Engine, op Operation[T], p *TimeoutPolicy) (T, error) {
	var zero T
	if err := checkArgs(e, op == nil, p == nil); err != nil {
		return zero, err
	}
	if err := p.Validate(); err != nil {
		return zero, err
	}

	tp := p.withDefaults()
	return execute(ctx, e, observe.ExecMeta{Policy: PolicyTimeout.String()}, func(ctx context.Context) (T, error) {
		return timeout(ctx, e, op, tp)
	})
}

// ExecuteWithBulkhead runs op inside the named bulkhead. When no slot or
// queue capacity is left it returns a *BulkheadRejectedError without
// invoking op.
func ExecuteWithBulkhead[T any](ctx context.Context, e *Engine, op Operation[T], p *BulkheadPolicy) (T, error) {
	var zero T
	if err := checkArgs(e, op == nil, p == nil); err != nil {
		return zero, err
	}
	if err := p.Validate(); err != nil {
		return zero, err
	}

	bp := p.withDefaults()
	return execute(ctx, e, observe.ExecMeta{Policy: PolicyBulkhead.String(), Name: bp.Name}, func(ctx context.Context) (T, error) {
		return isolate(ctx, e, op, bp)
	})
}

// ExecuteWithRateLimit runs op once the named limiter grants a token.
func ExecuteWithRateLimit[T any](ctx context.Context, e *Engine, op Operation[T], p *RateLimitPolicy) (T, error) {
	var zero T
	if err := checkArgs(e, op == nil, p == nil); err != nil {
		return zero, err
	}
	if err := p.Validate(); err != nil {
		return zero, err
	}

	lp := p.withDefaults()
	return execute(ctx, e, observe.ExecMeta{Policy: PolicyRateLimit.String(), Name: lp.Name}, func(ctx context.Context) (T, error) {
		return limit(ctx, e, op, lp)
	})
}

// ExecuteWithPolicy runs op through every layer of a composite policy.
func ExecuteWithPolicy[T any](ctx context.Context, e *Engine, op Operation[T], p *CompositePolicy) (T, error) {
	var zero T
	if err := checkArgs(e, op == nil, p == nil); err != nil {
		return zero, err
	}
	if err := p.Validate(); err != nil {
		return zero, err
	}

	return execute(ctx, e, observe.ExecMeta{Policy: "composite"}, compose(e, op, p))
}

// Run is ExecuteWithPolicy for operations without a result.
func (e *Engine) Run(ctx context.Context, op func(context.Context) error, p *CompositePolicy) error {
	if op == nil {
		return ErrNilOperation
	}
	_, err := ExecuteWithPolicy(ctx, e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, p)
	return err
}

// CircuitBreakerState returns the state of the named breaker. Unknown names
// report CircuitClosed.
func (e *Engine) CircuitBreakerState(name string) (CircuitState, error) {
	if name == "" {
		return CircuitClosed, ErrEmptyName
	}

	cb, ok := e.registry.lookupBreaker(name)
	if !ok {
		return CircuitClosed, nil
	}

	state, trs := cb.currentState(e.now())
	e.emitTransitions(context.Background(), cb, trs)
	return state, nil
}

// SetCircuitBreakerState forces the named breaker open or closed. Forcing
// open starts the break timer; forcing closed clears the outcome window.
// Automatic evaluation resumes with the next natural transition.
func (e *Engine) SetCircuitBreakerState(name string, open bool) error {
	if name == "" {
		return ErrEmptyName
	}

	cb := e.registry.unconfiguredBreaker(name)
	e.emitTransitions(context.Background(), cb, cb.force(open, e.now()))
	return nil
}

// ResetCircuitBreaker discards the named breaker's state.
func (e *Engine) ResetCircuitBreaker(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	e.registry.removeBreaker(name)
	return nil
}

// CircuitBreakerMetrics returns a view of the named breaker.
func (e *Engine) CircuitBreakerMetrics(name string) (CircuitBreakerMetrics, bool) {
	cb, ok := e.registry.lookupBreaker(name)
	if !ok {
		return CircuitBreakerMetrics{}, false
	}
	state, trs := cb.currentState(e.now())
	e.emitTransitions(context.Background(), cb, trs)
	m := cb.metrics(e.now())
	m.State = state
	return m, true
}

// BulkheadUtilization returns active/MaxParallelization for the named
// bulkhead, or 0 for an unknown name.
func (e *Engine) BulkheadUtilization(name string) (float64, error) {
	if name == "" {
		return 0, ErrEmptyName
	}

	b, ok := e.registry.lookupBulkhead(name)
	if !ok {
		return 0, nil
	}
	return b.utilization(), nil
}

// BulkheadMetrics returns a view of the named bulkhead.
func (e *Engine) BulkheadMetrics(name string) (BulkheadMetrics, bool) {
	b, ok := e.registry.lookupBulkhead(name)
	if !ok {
		return BulkheadMetrics{}, false
	}
	return b.metrics(), true
}

// RateLimiterTokens returns the tokens currently available to the named
// limiter, or 0 for an unknown name.
func (e *Engine) RateLimiterTokens(name string) (float64, error) {
	if name == "" {
		return 0, ErrEmptyName
	}

	rl, ok := e.registry.lookupLimiter(name)
	if !ok {
		return 0, nil
	}
	return rl.limiter.Tokens(), nil
}

// Statistics returns a snapshot of the engine's counters.
func (e *Engine) Statistics() Statistics {
	return e.stats.snapshot()
}

// ResetStatistics zeroes the engine's counters.
func (e *Engine) ResetStatistics() {
	e.stats.reset()
}
