// Package health reports the health of resilience state.
//
// A Checker reports a Status (Healthy, Degraded or Unhealthy) with a
// message and details. The package ships checkers over a resilience
// Engine:
//
//   - CircuitChecker: closed is healthy, half-open degraded, open unhealthy
//   - BulkheadChecker: slot utilization against warning/critical thresholds
//   - StatisticsChecker: execution failure ratio once enough executions
//     have been recorded
//
// # Aggregating
//
//	agg := health.NewAggregator()
//	agg.RegisterChecker(health.NewCircuitChecker(engine, "payments"))
//	agg.RegisterChecker(health.NewBulkheadChecker(engine, "db", health.BulkheadCheckerConfig{}))
//	agg.RegisterChecker(health.NewStatisticsChecker(engine, health.StatisticsCheckerConfig{}))
//
//	results := agg.CheckAll(ctx)
//	overall := agg.OverallStatus(results)
//
// Checks run concurrently on an errgroup and are bounded by the
// aggregator timeout; a check that does not finish reports unhealthy with
// ErrCheckTimeout.
//
// # HTTP Endpoints
//
//	mux := http.NewServeMux()
//	health.RegisterHandlers(mux, agg) // /healthz, /readyz, /health, /health/{name}
package health
