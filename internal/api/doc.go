// Package api implements the agent's optional HTTP status listener.
//
// This package provides:
//   - GET /healthz with connectivity state, actuator level and dependency checks
//   - GET /metrics in the Prometheus exposition format
//   - GET /history with recent actuator transitions and commands (when journalling is enabled)
//   - Middleware stack (request ID, logging, recovery)
//
// # Health
//
// /healthz answers 200 while the broker session is up and every registered
// dependency check passes, and 503 otherwise. The body is the same in both
// cases so operators can see why the agent is degraded.
//
// The listener is read-only. Commands reach the device over MQTT only.
package api
