package circuitbreaker

import (
	"log/slog"
	"sync"

	"github.com/angeloszaimis/rpc-resilience/internal/events"
)

// Registry hands out one circuit breaker per protected resource name,
// creating breakers lazily with shared options.
type Registry struct {
	mutex    sync.RWMutex
	breakers map[string]*CircuitBreaker
	opts     Options
	stream   *events.Stream
	logger   *slog.Logger
}

func NewRegistry(opts Options, stream *events.Stream, logger *slog.Logger) *Registry {
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		opts:     opts,
		stream:   stream,
		logger:   logger,
	}
}

func (r *Registry) GetBreaker(name string) *CircuitBreaker {
	r.mutex.RLock()
	cb, exists := r.breakers[name]
	r.mutex.RUnlock()

	if exists {
		return cb
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if cb, exists = r.breakers[name]; exists {
		return cb
	}

	cb = NewCircuitBreaker(name, r.opts, r.stream, r.logger)
	r.breakers[name] = cb
	return cb
}

// Reset closes every breaker's monitor and starts over with an empty map.
func (r *Registry) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, cb := range r.breakers {
		cb.Close()
	}
	r.breakers = make(map[string]*CircuitBreaker)
}

// Close stops all breaker monitors.
func (r *Registry) Close() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, cb := range r.breakers {
		cb.Close()
	}
}

func (r *Registry) Stats() map[string]Stats {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := make(map[string]Stats, len(r.breakers))
	for name, cb := range r.breakers {
		stats[name] = cb.Stats()
	}
	return stats
}
