package probe

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonwraymond/failguard/health"
	"github.com/jonwraymond/failguard/resilience"
)

// Checker reports the latest probe: healthy when it succeeded, degraded
// before the first probe and unhealthy after a failed one.
func (r *Runner) Checker() health.Checker {
	return health.NewCheckerFunc("probe", func(ctx context.Context) health.Result {
		last, ok := r.Last()
		if !ok {
			return health.Degraded("no probe has completed")
		}

		details := map[string]any{
			"outcome":     last.Outcome,
			"status_code": last.StatusCode,
			"latency":     last.Latency.String(),
		}
		if last.OK() {
			return health.Healthy("target reachable").WithDetails(details)
		}
		return health.Unhealthy("target probe failed: "+last.Outcome, health.ErrCheckFailed).WithDetails(details)
	})
}

// NewAggregator registers the probe checker, a statistics checker and
// checkers for the breaker and bulkhead named by policy.
func NewAggregator(engine *resilience.Engine, policy *resilience.HTTPCompositePolicy, runner *Runner) *health.Aggregator {
	agg := health.NewAggregator(health.AggregatorConfig{Timeout: 2 * time.Second, Parallel: true})

	agg.RegisterChecker(runner.Checker())
	agg.RegisterChecker(health.NewStatisticsChecker(engine, health.StatisticsCheckerConfig{}))
	if cb := policy.CircuitBreaker; cb != nil {
		agg.RegisterChecker(health.NewCircuitChecker(engine, cb.Name))
	}
	if bh := policy.Bulkhead; bh != nil {
		agg.RegisterChecker(health.NewBulkheadChecker(engine, bh.Name, health.BulkheadCheckerConfig{}))
	}
	return agg
}

// StatsResponse is the JSON body of /stats.
type StatsResponse struct {
	TotalExecutions      int64            `json:"total_executions"`
	SuccessfulExecutions int64            `json:"successful_executions"`
	FailedExecutions     int64            `json:"failed_executions"`
	AverageExecutionMS   float64          `json:"average_execution_ms"`
	Events               map[string]int64 `json:"events"`
	LastUpdated          *time.Time       `json:"last_updated,omitempty"`
	Probes               int64            `json:"probes"`
	LastProbe            *Result          `json:"last_probe,omitempty"`
}

// StatsHandler serves the engine statistics and the latest probe as JSON.
func StatsHandler(engine *resilience.Engine, runner *Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := engine.Statistics()

		resp := StatsResponse{
			TotalExecutions:      stats.TotalExecutions,
			SuccessfulExecutions: stats.SuccessfulExecutions,
			FailedExecutions:     stats.FailedExecutions,
			AverageExecutionMS:   float64(stats.AverageExecutionTime.Microseconds()) / 1000,
			Events:               make(map[string]int64, len(stats.EventsByType)),
			Probes:               runner.Runs(),
		}
		for k, v := range stats.EventsByType {
			resp.Events[string(k)] = v
		}
		if !stats.LastUpdated.IsZero() {
			resp.LastUpdated = &stats.LastUpdated
		}
		if last, ok := runner.Last(); ok {
			resp.LastProbe = &last
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// NewHandler serves /healthz, /readyz, /health, /health/{name}, /stats and
// /metrics from gatherer.
func NewHandler(engine *resilience.Engine, runner *Runner, agg *health.Aggregator, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	health.RegisterHandlers(mux, agg)
	mux.Handle("GET /stats", StatsHandler(engine, runner))
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}
