// Package worker runs the delivery workers that take committed events off
// the queue and hand them to the configured sinks.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/okian/clubwatch/internal/domain/model"
	"github.com/okian/clubwatch/pkg/logger"
	"github.com/okian/clubwatch/pkg/metrics"
)

// DefaultWorkerCount keeps emission order across sinks.
const DefaultWorkerCount = 1

// Event abstracts what workers read off the queue.
type Event = model.Event

// Queue defines how workers receive events.
type Queue interface {
	Dequeue() <-chan Event
}

// Requeuer takes back events for another delivery round without blocking.
type Requeuer interface {
	TryEnqueue(e Event) error
}

// dequeueMarker is implemented by queues that track consumer progress.
type dequeueMarker interface {
	MarkDequeued()
}

// InMemoryWorker delivers events read from the queue.
type InMemoryWorker struct {
	queue     Queue
	deliverer *Deliverer
	name      string
	active    *atomic.Int64
	requeue   Requeuer
	rounds    int

	done chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, d *Deliverer, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		deliverer: d,
		name:      "worker",
		active:    &atomic.Int64{},
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run delivers events until the queue is closed and drained, or ctx is done.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if m, ok := w.queue.(dequeueMarker); ok {
				m.MarkDequeued()
			}
			metrics.UpdateWorkerActiveCount(int(w.active.Add(1)))
			if err := w.deliverer.Deliver(ctx, event); err != nil {
				w.redeliver(ctx, event, err)
			}
			metrics.UpdateWorkerActiveCount(int(w.active.Add(-1)))
		}
	}
}

func (w *InMemoryWorker) redeliver(ctx context.Context, event Event, cause error) { //nolint:gocritic // hugeParam: see Run
	if w.requeue == nil || event.Redeliveries >= w.rounds || ctx.Err() != nil {
		w.logger.Error(ctx, "event delivery incomplete",
			logger.String("eventID", event.ID),
			logger.String("kind", string(event.Kind)),
			logger.Int("redeliveries", event.Redeliveries),
			logger.Error(cause),
		)
		return
	}
	event.Redeliveries++
	if err := w.requeue.TryEnqueue(event); err != nil {
		w.logger.Error(ctx, "event delivery incomplete, requeue failed",
			logger.String("eventID", event.ID),
			logger.String("kind", string(event.Kind)),
			logger.Error(errors.Join(cause, err)),
		)
		return
	}
	metrics.RecordDeliveryRedelivery()
	w.logger.Warn(ctx, "event delivery incomplete, requeued",
		logger.String("eventID", event.ID),
		logger.Int("round", event.Redeliveries),
		logger.Error(cause),
	)
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	logger  logger.Logger
}

// NewPool creates a new worker pool. A workerCount below one uses DefaultWorkerCount.
func NewPool(workerCount int, q Queue, d *Deliverer, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = DefaultWorkerCount
	}
	base := &InMemoryWorker{}
	for _, opt := range opts {
		opt(base)
	}
	if base.logger == nil {
		base.logger = logger.Get().Named("worker-pool")
	}

	active := &atomic.Int64{}
	p := &Pool{workers: make([]*InMemoryWorker, workerCount), logger: base.logger}
	for i := 0; i < workerCount; i++ {
		name := "worker-" + strconv.Itoa(i)
		w := NewInMemoryWorker(q, d, WithName(name), WithLogger(base.logger.Named(name)))
		w.active = active
		w.requeue, w.rounds = base.requeue, base.rounds
		p.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Run starts all workers and blocks until every one has returned.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(w *InMemoryWorker) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}
	wg.Wait()
	p.logger.Info(context.WithoutCancel(ctx), "delivery workers stopped", logger.Int("workers", len(p.workers)))
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delivery stopped before queue drained: %w", err)
	}
	return nil
}
