// Package loadbalancer selects one endpoint from the registered pool using a
// pluggable strategy and feeds per-call outcomes back into the endpoint
// metrics, optionally adjusting endpoint weights to match observed
// performance.
package loadbalancer
