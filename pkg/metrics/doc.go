// Package metrics defines the harness's Prometheus metrics (sessions, pty
// slots, worker checkpoints, scheduler admissions, active file claims, MCP
// tool calls) and a Collector that samples gauge-shaped state out of the
// store on a timer, plus a small liveness/readiness HealthChecker used by
// the HTTP server's /health, /ready and /live endpoints.
package metrics
