// Package metrics aggregates the resilience event stream into queryable
// telemetry: per-breaker operation counts and latency percentiles, last
// known circuit states, endpoint statuses, and failover/retry totals.
//
// The collector consumes records from an events.Stream subscription on its
// own goroutine, so publishers never block on aggregation. Snapshot() is
// safe to call from any goroutine and backs the ops HTTP endpoint.
package metrics
