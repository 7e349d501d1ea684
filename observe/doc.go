// Package observe provides observability primitives for guarded executions.
//
// It is a pure instrumentation library: a zap-backed structured Logger,
// OpenTelemetry tracing and metrics wrapped in a Middleware, and exporter
// setup driven by Config. Configuration can be loaded from FAILGUARD_*
// environment variables with ConfigFromEnv.
package observe
