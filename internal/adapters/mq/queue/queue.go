// Package queue buffers presentation events between the match lifecycle and
// the dispatch workers.
//
// Publishing never blocks: when the buffer is full the event is dropped and
// counted, so a slow consumer cannot stall a ready check or a vote.
package queue

import (
	"context"
	"sync"

	"github.com/okian/matchd/internal/domain/events"
	"github.com/okian/matchd/pkg/logger"
	"github.com/okian/matchd/pkg/metrics"
)

const defaultQueueCapacity = 4096

// Event is the payload type flowing through the queue.
type Event = events.Event

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an event. It returns ErrFull or ErrClosed when the event
	// was not accepted.
	Enqueue(ctx context.Context, e Event) error
	// Dequeue returns the channel events are delivered on. It is closed
	// after Close once the buffer drains.
	Dequeue(ctx context.Context) <-chan Event
	// Len returns the current number of queued events.
	Len() int
	// Close stops accepting events.
	Close() error
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	events   chan Event
	capacity int
	logger   logger.Logger

	mu     sync.RWMutex
	closed bool
}

var (
	_ Queue            = (*InMemoryQueue)(nil)
	_ events.Publisher = (*InMemoryQueue)(nil)
)

// NewInMemoryQueue creates a queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	if q.logger == nil {
		q.logger = logger.Get().Named("event-queue")
	}
	q.events = make(chan Event, q.capacity)

	metrics.UpdateEventQueueCapacity(q.capacity)
	metrics.UpdateEventQueueSize(0)
	return q
}

// Enqueue adds an event to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) error { //nolint:gocritic // hugeParam: channel semantics need a value
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordEventDropped("closed")
		return ErrClosed
	}
	select {
	case q.events <- e:
		metrics.UpdateEventQueueSize(len(q.events))
		return nil
	case <-ctx.Done():
		metrics.RecordEventDropped("context_cancelled")
		return ctx.Err()
	default:
		metrics.RecordEventDropped("queue_full")
		return ErrFull
	}
}

// Publish implements events.Publisher. Rejected events are logged and dropped.
func (q *InMemoryQueue) Publish(ctx context.Context, e Event) { //nolint:gocritic // hugeParam: channel semantics need a value
	if err := q.Enqueue(ctx, e); err != nil {
		q.logger.Warn(ctx, "event dropped",
			logger.String("type", string(e.Type)),
			logger.String("match_id", e.MatchID),
			logger.Error(err),
		)
		return
	}
	metrics.RecordEventPublished(string(e.Type))
}

// Dequeue returns a channel that receives events as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for e := range q.events {
			select {
			case out <- e:
				metrics.UpdateEventQueueSize(len(q.events))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued events.
func (q *InMemoryQueue) Len() int {
	n := len(q.events)
	metrics.UpdateEventQueueSize(n)
	return n
}

// Close stops accepting events. Buffered events are still delivered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
