package metrics

import (
	"context"
	"log/slog"

	"github.com/angeloszaimis/rpc-resilience/internal/events"
)

// Collector aggregates resilience events into Metrics on its own goroutine.
type Collector struct {
	stream  *events.Stream
	sub     events.Subscriber
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(stream *events.Stream, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}

	return &Collector{
		stream:  stream,
		sub:     stream.Subscribe(),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("metrics collector started")
	defer c.logger.Info("metrics collector stopped")

	for {
		select {
		case record, ok := <-c.sub:
			if !ok {
				return
			}
			c.processRecord(record)
		case <-ctx.Done():
			c.stream.Unsubscribe(c.sub)
			c.drain()
			return
		}
	}
}

func (c *Collector) processRecord(record events.Record) {
	switch record.Kind {
	case events.KindOperationSucceeded:
		c.metrics.RecordOperation(record.Source, record.Duration, true)

	case events.KindOperationFailed:
		c.metrics.RecordOperation(record.Source, record.Duration, false)

	case events.KindCircuitStateChanged, events.KindCircuitTripped:
		if record.NewState != "" {
			c.metrics.RecordCircuitState(record.Source, record.NewState)
		}

	case events.KindFailoverOccurred:
		c.metrics.RecordFailover()

	case events.KindRetryAttempt:
		c.metrics.RecordRetry()

	case events.KindEndpointStatus:
		c.metrics.RecordEndpointStatus(record.EndpointID, record.NewState)
	}
}

// drain consumes whatever the subscription still holds before shutdown.
func (c *Collector) drain() {
	for {
		select {
		case record, ok := <-c.sub:
			if !ok {
				return
			}
			c.processRecord(record)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}
