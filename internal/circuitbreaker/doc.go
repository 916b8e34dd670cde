// Package circuitbreaker implements the circuit breaker pattern for RPC
// endpoint protection.
//
// A circuit breaker prevents cascading failures by temporarily rejecting
// calls to a failing resource. It has three states:
//
//   - CLOSED: normal operation, calls pass through
//   - OPEN: resource failing, calls rejected with OpenCircuitError
//   - HALF-OPEN: probing whether the resource recovered
//
// Usage:
//
//	registry := circuitbreaker.NewRegistry(circuitbreaker.DefaultOptions(), stream, logger)
//	cb := registry.GetBreaker("endpoint-1")
//	result, err := cb.Execute(ctx, func(ctx context.Context) (any, error) {
//	    return client.Call(ctx, req)
//	})
package circuitbreaker
