// Package strategy defines the load balancing strategy interface and
// implements the algorithm suite:
//
//   - Round Robin: sequential distribution across endpoints
//   - Weighted Round Robin: smooth distribution proportional to weights
//   - Random / Weighted Random: uniform or weight-proportional picks
//   - Least Connections: routes to the endpoint with fewest in-flight requests
//   - Least Response Time: routes to the endpoint with the lowest mean latency
//   - Health Aware: scores endpoints by success rate and latency
//   - Consistent Hash: hash-ring affinity with virtual nodes
//
// Strategies select among the candidates they are given; filtering out
// unavailable endpoints is the caller's job.
package strategy
