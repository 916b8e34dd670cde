package executor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/angeloszaimis/rpc-resilience/internal/circuitbreaker"
	"github.com/angeloszaimis/rpc-resilience/internal/endpoint"
	"github.com/angeloszaimis/rpc-resilience/internal/failover"
	"github.com/angeloszaimis/rpc-resilience/internal/loadbalancer"
	"github.com/angeloszaimis/rpc-resilience/internal/retry"
	"github.com/angeloszaimis/rpc-resilience/internal/rpcerror"
)

// EndpointOperation is the transport-supplied call, bound to the endpoint
// the executor selected for it.
type EndpointOperation func(ctx context.Context, ep *endpoint.Endpoint) (any, error)

// Executor is the narrow façade the RPC transport plugs into.
type Executor struct {
	manager  *failover.Manager
	balancer *loadbalancer.LoadBalancer
	breakers *circuitbreaker.Registry
	policy   *retry.Policy
	logger   *slog.Logger
}

// New creates an executor. balancer and policy are optional: without a
// balancer outcomes are recorded straight onto the endpoint, and without a
// policy each call gets a single attempt.
func New(
	manager *failover.Manager,
	balancer *loadbalancer.LoadBalancer,
	breakers *circuitbreaker.Registry,
	policy *retry.Policy,
	logger *slog.Logger,
) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		manager:  manager,
		balancer: balancer,
		breakers: breakers,
		policy:   policy,
		logger:   logger,
	}
}

// Invoke runs op against the current active endpoint under circuit and retry
// protection, then reports the outcome to the load balancer and the failover
// manager.
func (x *Executor) Invoke(ctx context.Context, op EndpointOperation) (any, error) {
	ep, err := x.manager.GetActiveEndpoint(ctx)
	if err != nil {
		return nil, err
	}

	ep.Metrics().IncrementConn()

	cb := x.breakers.GetBreaker(ep.ID())

	start := time.Now()
	result, err := cb.Execute(ctx, func(ctx context.Context) (any, error) {
		if x.policy == nil {
			return op(ctx, ep)
		}
		return x.policy.Execute(ctx, func(ctx context.Context) (any, error) {
			return op(ctx, ep)
		})
	})
	duration := time.Since(start)

	x.report(ep, duration, err)
	return result, err
}

func (x *Executor) report(ep *endpoint.Endpoint, duration time.Duration, err error) {
	success := err == nil

	// An open-circuit rejection never reached the endpoint, so it says
	// nothing about endpoint health or latency; just release the slot.
	var open *rpcerror.OpenCircuitError
	if errors.As(err, &open) {
		ep.Metrics().DecrementConn()
		return
	}

	if x.balancer != nil {
		if recErr := x.balancer.RecordRequestResult(ep.ID(), duration, success); recErr != nil {
			x.logger.Warn("failed to record request result", slog.String("error", recErr.Error()))
			// The balancer only releases slots for endpoints it knows
			ep.Metrics().DecrementConn()
		}
	} else {
		ep.Metrics().Record(duration, success)
		ep.Metrics().DecrementConn()
	}

	if success {
		x.manager.ReportSuccess(ep.ID())
		return
	}

	x.manager.ReportFailure(ep.ID(), err.Error())
}
