package events

import (
	"sync"
	"time"
)

// Kind identifies what happened.
type Kind string

const (
	KindCircuitStateChanged Kind = "circuit_state_changed"
	KindCircuitTripped      Kind = "circuit_tripped"
	KindOperationSucceeded  Kind = "operation_succeeded"
	KindOperationFailed     Kind = "operation_failed"
	KindRetryAttempt        Kind = "retry_attempt"
	KindFailoverOccurred    Kind = "failover_occurred"
	KindEndpointStatus      Kind = "endpoint_status_changed"
	KindHealthCheck         Kind = "health_check_completed"
)

// Record is one state-change notification.
type Record struct {
	Kind       Kind          `json:"kind"`
	Timestamp  time.Time     `json:"timestamp"`
	Source     string        `json:"source,omitempty"`   // breaker or manager name
	EndpointID string        `json:"endpoint,omitempty"` // affected endpoint, if any
	OldState   string        `json:"old_state,omitempty"`
	NewState   string        `json:"new_state,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Attempt    int           `json:"attempt,omitempty"`
	Success    bool          `json:"success,omitempty"`
	Error      string        `json:"error,omitempty"`
	Detail     string        `json:"detail,omitempty"`
}

// Subscriber receives published records.
type Subscriber chan Record

// subscription pairs a subscriber channel with its overflow queue. When the
// channel buffer is full, Publish spills into the queue and the pump
// goroutine moves records over as the subscriber drains, so every record
// reaches a live subscriber without Publish ever blocking.
type subscription struct {
	out  Subscriber
	mu   sync.Mutex
	over []Record
	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// Stream fans records out to all current subscribers.
type Stream struct {
	mutex         sync.RWMutex
	subscriptions map[Subscriber]*subscription
	bufferSize    int
	closed        bool
}

// NewStream creates a stream whose subscribers get channels buffered to
// bufferSize records.
func NewStream(bufferSize int) *Stream {
	if bufferSize <= 0 {
		bufferSize = 64
	}

	return &Stream{
		subscriptions: make(map[Subscriber]*subscription),
		bufferSize:    bufferSize,
	}
}

// Subscribe registers a new subscriber channel.
func (s *Stream) Subscribe() Subscriber {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	out := make(Subscriber, s.bufferSize)
	if s.closed {
		close(out)
		return out
	}

	sub := &subscription{
		out:  out,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	s.subscriptions[out] = sub
	go sub.pump()

	return out
}

// Unsubscribe removes a subscriber and closes its channel. Records still in
// the overflow queue are discarded; the channel buffer is left for the
// subscriber to drain.
func (s *Stream) Unsubscribe(out Subscriber) {
	s.mutex.Lock()
	sub, ok := s.subscriptions[out]
	if ok {
		delete(s.subscriptions, out)
	}
	s.mutex.Unlock()

	if ok {
		sub.shutdown()
	}
}

// Publish delivers the record to every subscriber. A zero timestamp is
// filled in with the current time. Publish never blocks: a full subscriber
// buffer spills into that subscriber's overflow queue instead.
func (s *Stream) Publish(r Record) {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.closed {
		return
	}

	for _, sub := range s.subscriptions {
		sub.deliver(r)
	}
}

// Close closes all subscriber channels. Publish becomes a no-op.
func (s *Stream) Close() {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return
	}

	s.closed = true
	subs := make([]*subscription, 0, len(s.subscriptions))
	for out, sub := range s.subscriptions {
		delete(s.subscriptions, out)
		subs = append(subs, sub)
	}
	s.mutex.Unlock()

	for _, sub := range subs {
		sub.shutdown()
	}
}

func (sub *subscription) deliver(r Record) {
	sub.mu.Lock()
	// The fast path is only valid while the overflow is empty; anything
	// else would reorder records around the queue
	if len(sub.over) == 0 {
		select {
		case sub.out <- r:
			sub.mu.Unlock()
			return
		default:
		}
	}
	sub.over = append(sub.over, r)
	sub.mu.Unlock()

	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

// pump drains the overflow queue into the subscriber channel. The head entry
// stays queued until its send completes so deliver keeps taking the slow
// path while a handoff is in flight.
func (sub *subscription) pump() {
	defer close(sub.done)

	for {
		sub.mu.Lock()
		if len(sub.over) == 0 {
			sub.mu.Unlock()
			select {
			case <-sub.wake:
				continue
			case <-sub.stop:
				return
			}
		}
		r := sub.over[0]
		sub.mu.Unlock()

		select {
		case sub.out <- r:
			sub.mu.Lock()
			sub.over = sub.over[1:]
			sub.mu.Unlock()
		case <-sub.stop:
			return
		}
	}
}

func (sub *subscription) shutdown() {
	close(sub.stop)
	<-sub.done
	close(sub.out)
}
