// Package executor composes the resilience core into a single call path:
// the failover manager supplies the endpoint, the per-endpoint circuit
// breaker guards the call, the retry policy runs inside it, and the outcome
// flows back into the load balancer metrics and endpoint health records.
package executor
