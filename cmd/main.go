package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/angeloszaimis/rpc-resilience/config"
	"github.com/angeloszaimis/rpc-resilience/internal/circuitbreaker"
	"github.com/angeloszaimis/rpc-resilience/internal/endpoint"
	"github.com/angeloszaimis/rpc-resilience/internal/events"
	"github.com/angeloszaimis/rpc-resilience/internal/executor"
	"github.com/angeloszaimis/rpc-resilience/internal/failover"
	"github.com/angeloszaimis/rpc-resilience/internal/httpserver"
	"github.com/angeloszaimis/rpc-resilience/internal/loadbalancer"
	"github.com/angeloszaimis/rpc-resilience/internal/metrics"
	"github.com/angeloszaimis/rpc-resilience/internal/retry"
	"github.com/angeloszaimis/rpc-resilience/internal/strategy"
	"github.com/angeloszaimis/rpc-resilience/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stream := events.NewStream(256)
	defer stream.Close()

	collector := metrics.NewCollector(stream, logger.Component(log, "metrics"))
	collector.Start(ctx)

	endpoints := buildEndpoints(cfg)

	strat := createStrategy(log, cfg.LoadBalancing.Algorithm, cfg.LoadBalancing.VirtualNodes)
	balancer := loadbalancer.NewLoadBalancer(strat, cfg.LoadBalancerOptions(), logger.Component(log, "loadbalancer"))

	failoverOpts, err := cfg.FailoverOptions()
	if err != nil {
		log.Error("invalid failover options", slog.Any("err", err))
		os.Exit(1)
	}

	manager := failover.NewManager(
		failoverOpts,
		failover.HTTPCheck(cfg.Failover.HealthCheckPath),
		stream,
		logger.Component(log, "failover"),
	)

	for _, ep := range endpoints {
		balancer.AddEndpoint(ep)
		manager.AddEndpoint(ep)
	}

	manager.Start(ctx)
	defer manager.Close()

	breakerOpts, err := cfg.CircuitBreakerOptions()
	if err != nil {
		log.Error("invalid circuit breaker options", slog.Any("err", err))
		os.Exit(1)
	}

	registry := circuitbreaker.NewRegistry(breakerOpts, stream, logger.Component(log, "circuitbreaker"))
	defer registry.Close()

	retryOpts, err := cfg.RetryOptions()
	if err != nil {
		log.Error("invalid retry options", slog.Any("err", err))
		os.Exit(1)
	}

	policy := retry.NewPolicy(retryOpts, stream, logger.Component(log, "retry"))
	exec := executor.New(manager, balancer, registry, policy, logger.Component(log, "executor"))

	go logEvents(ctx, stream, logger.Component(log, "events"))

	srv, err := httpserver.New(cfg.Server.Address, setupRouter(collector, manager, registry, exec, cfg.Failover.HealthCheckPath))
	if err != nil {
		log.Error("failed to create ops server", slog.Any("err", err))
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	log.Info("resilience middleware started",
		slog.String("address", cfg.Server.Address),
		slog.Int("endpoints", len(endpoints)),
		slog.String("algorithm", cfg.LoadBalancing.Algorithm))

	select {
	case <-ctx.Done():
		log.Info("shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("ops server failed", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func buildEndpoints(cfg *config.Config) []*endpoint.Endpoint {
	endpoints := make([]*endpoint.Endpoint, 0, len(cfg.Endpoints))

	for _, ec := range cfg.Endpoints {
		var ep *endpoint.Endpoint
		if ec.ID != "" {
			ep = endpoint.NewWithID(ec.ID, ec.Address, ec.Port)
		} else {
			ep = endpoint.New(ec.Address, ec.Port)
		}

		if ec.Priority > 0 {
			ep.SetPriority(ec.Priority)
		}
		if ec.Weight > 0 {
			ep.SetWeight(ec.Weight)
		}

		endpoints = append(endpoints, ep)
	}

	return endpoints
}

func createStrategy(log *slog.Logger, algorithm string, virtualNodes int) strategy.Strategy {
	switch algorithm {
	case "round-robin":
		return strategy.NewRoundRobinStrategy()
	case "weighted-round-robin":
		return strategy.NewWeightedRoundRobinStrategy()
	case "random":
		return strategy.NewRandomStrategy()
	case "weighted-random":
		return strategy.NewWeightedRandomStrategy()
	case "least-conn":
		return strategy.NewLeastConnStrategy()
	case "least-response":
		return strategy.NewLeastResponseStrategy()
	case "health-aware":
		return strategy.NewHealthAwareStrategy()
	case "consistent-hash":
		return strategy.NewConsistentHashStrategy(virtualNodes)
	default:
		log.Warn("unknown algorithm, defaulting to round-robin", slog.String("requested", algorithm))
		return strategy.NewRoundRobinStrategy()
	}
}

// logEvents mirrors the resilience event stream into the structured log.
func logEvents(ctx context.Context, stream *events.Stream, log *slog.Logger) {
	sub := stream.Subscribe()
	defer stream.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case record, ok := <-sub:
			if !ok {
				return
			}
			log.Debug("resilience event",
				slog.String("kind", string(record.Kind)),
				slog.String("source", record.Source),
				slog.String("endpoint", record.EndpointID),
				slog.String("old_state", record.OldState),
				slog.String("new_state", record.NewState),
				slog.String("detail", record.Detail))
		}
	}
}
