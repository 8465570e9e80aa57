// Package worker drains the event queue and hands every event to the
// configured sinks.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/matchd/internal/adapters/mq/queue"
	"github.com/okian/matchd/pkg/logger"
	"github.com/okian/matchd/pkg/metrics"
)

const (
	defaultSinkTimeout  = 5 * time.Second
	poolShutdownTimeout = 30 * time.Second
)

// Event is what workers read off the queue.
type Event = queue.Event

// Sink receives dispatched events. A failing sink does not stop delivery to
// the others.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e Event) error
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker processes events from a queue.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)
	// Shutdown stops the worker.
	Shutdown(ctx context.Context) error
}

// Dispatcher delivers each event to every sink in order.
type Dispatcher struct {
	queue       Queue
	sinks       []Sink
	name        string
	sinkTimeout time.Duration

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewDispatcher creates a worker for sinks.
func NewDispatcher(q Queue, sinks []Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:       q,
		sinks:       sinks,
		name:        "dispatcher",
		sinkTimeout: defaultSinkTimeout,
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logger.Get().Named(d.name)
	}
	return d
}

// Run starts the worker loop.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)

	ch := d.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.shutdown:
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			d.dispatch(ctx, e)
		}
	}
}

// Shutdown stops the worker and waits for the current event to finish.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	select {
	case <-d.shutdown:
	default:
		close(d.shutdown)
	}
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		d.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, e Event) { //nolint:gocritic // hugeParam: channel semantics need a value
	start := time.Now()
	defer func() {
		metrics.RecordDispatchLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	for _, s := range d.sinks {
		sctx, cancel := context.WithTimeout(ctx, d.sinkTimeout)
		err := s.Deliver(sctx, e)
		cancel()
		if err != nil {
			metrics.RecordSinkError(s.Name())
			d.logger.Error(ctx, "sink delivery failed",
				logger.String("sink", s.Name()),
				logger.String("event_id", e.ID),
				logger.String("type", string(e.Type)),
				logger.Error(err),
			)
		}
	}
}

// Pool runs several dispatchers on one queue. With more than one worker,
// events of one match may be delivered out of order.
type Pool struct {
	workers []*Dispatcher
	queue   Queue
	logger  logger.Logger
}

// NewPool creates workerCount dispatchers. A count below 1 means one.
func NewPool(workerCount int, q Queue, sinks []Sink, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	p := &Pool{
		workers: make([]*Dispatcher, workerCount),
		queue:   q,
		logger:  logger.Get().Named("dispatch-pool"),
	}
	for i := range p.workers {
		wopts := append([]Option{WithName("dispatcher-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewDispatcher(q, sinks, wopts...)
	}
	metrics.UpdateDispatchWorkers(workerCount)
	return p
}

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue, lets workers drain it, and waits for them.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			_ = w.Shutdown(ctx)
		}
	}
	metrics.UpdateDispatchWorkers(0)
	return nil
}
