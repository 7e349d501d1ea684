package probe

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/jonwraymond/failguard/observe"
	"github.com/jonwraymond/failguard/resilience"
)

// Result is the outcome of one probe.
type Result struct {
	Time       time.Time     `json:"time"`
	StatusCode int           `json:"status_code,omitempty"`
	Latency    time.Duration `json:"latency_ns"`
	Outcome    string        `json:"outcome"`
	Error      string        `json:"error,omitempty"`
}

// OK reports whether the probe succeeded.
func (r Result) OK() bool {
	return r.Outcome == resilience.OutcomeSuccess.String()
}

// Runner periodically fetches a target through a resilience policy.
//
// Contract:
//   - Concurrency: Last and ProbeOnce are safe for concurrent use.
//   - Context: Run returns when ctx is done.
type Runner struct {
	engine   *resilience.Engine
	policy   *resilience.HTTPCompositePolicy
	client   *resty.Client
	target   string
	interval time.Duration
	logger   observe.Logger

	mu   sync.RWMutex
	last Result
	runs int64
}

// NewRunner creates a runner for cfg, guarded by policy on engine.
func NewRunner(engine *resilience.Engine, policy *resilience.HTTPCompositePolicy, cfg Config, logger observe.Logger) (*Runner, error) {
	if engine == nil {
		return nil, resilience.ErrNilEngine
	}
	if policy == nil {
		return nil, resilience.ErrNilPolicy
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observe.NopLogger()
	}

	client := policy.RestyClient().SetHeader("User-Agent", "failguard-probe")

	return &Runner{
		engine:   engine,
		policy:   policy,
		client:   client,
		target:   cfg.Target,
		interval: cfg.Interval,
		logger:   logger.With(observe.Field{Key: "target", Value: cfg.Target}),
	}, nil
}

// ProbeOnce fetches the target once. 5xx and 429 responses count as
// failures.
func (r *Runner) ProbeOnce(ctx context.Context) Result {
	start := time.Now()

	code, err := resilience.ExecuteHTTPWithPolicy(ctx, r.engine, func(ctx context.Context) (int, error) {
		resp, err := r.client.R().SetContext(ctx).Get(r.target)
		if err != nil {
			return 0, err
		}
		if err := resilience.CheckStatus(resp.StatusCode(), resp.Status()); err != nil {
			return resp.StatusCode(), err
		}
		return resp.StatusCode(), nil
	}, r.policy)

	res := Result{
		Time:       start,
		StatusCode: code,
		Latency:    time.Since(start),
		Outcome:    resilience.Classify(ctx, err).String(),
	}
	if err != nil {
		res.Error = err.Error()
		var se *resilience.StatusError
		if errors.As(err, &se) {
			res.StatusCode = se.StatusCode
		}
		r.logger.Warn(ctx, "probe failed",
			observe.Field{Key: "outcome", Value: res.Outcome},
			observe.Field{Key: "error", Value: res.Error},
		)
	} else {
		r.logger.Debug(ctx, "probe succeeded",
			observe.Field{Key: "status_code", Value: code},
			observe.Field{Key: "latency_ms", Value: float64(res.Latency.Microseconds()) / 1000},
		)
	}

	r.mu.Lock()
	r.last = res
	r.runs++
	r.mu.Unlock()

	return res
}

// Run probes immediately and then every interval until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info(ctx, "probe started", observe.Field{Key: "interval", Value: r.interval.String()})

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.ProbeOnce(ctx)

		select {
		case <-ctx.Done():
			r.logger.Info(context.Background(), "probe stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Last returns the most recent result and whether any probe has run.
func (r *Runner) Last() (Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last, r.runs > 0
}

// Runs returns the number of completed probes.
func (r *Runner) Runs() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runs
}
