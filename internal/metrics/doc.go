// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Connection state transitions and the current top-level state
//   - Errors that started a backoff and the current retry count
//   - Heartbeat outcomes
package metrics
