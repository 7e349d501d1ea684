// Package probe runs a periodic HTTP probe through a resilience policy and
// serves its health, statistics and metrics.
package probe
