// Package queue buffers committed events between the poll cycles that
// produce them and the delivery workers that fan them out to sinks.
package queue

import (
	"context"
	"sync"

	"github.com/okian/clubwatch/internal/domain/model"
	"github.com/okian/clubwatch/pkg/metrics"
)

// Default queue configuration constants.
const (
	DefaultCapacity = 1024
)

// Event represents the payload type flowing through the queue.
type Event = model.Event

// Queue provides FIFO enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an event, waiting for room while the queue is full.
	// It fails with ErrClosed after Close, or with the context error.
	Enqueue(ctx context.Context, e Event) error

	// Dequeue returns the channel events are received from. The channel is
	// closed by Close once the remaining events have been received.
	Dequeue() <-chan Event

	// Len returns the current number of queued events.
	Len() int

	// Close stops accepting events. Queued events stay readable.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	events   chan Event
	capacity int
	mu       sync.RWMutex
	closed   bool
	done     chan struct{}
	doneOnce sync.Once
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: DefaultCapacity,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan Event, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)

	return q
}

// Enqueue adds an event to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) error { //nolint:gocritic // hugeParam: Event is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		return ErrClosed
	}

	select {
	case q.events <- e:
	default:
		// Full: wait for a worker to make room.
		select {
		case q.events <- e:
		case <-ctx.Done():
			metrics.RecordQueueEnqueueError()
			return ctx.Err()
		case <-q.done:
			metrics.RecordQueueEnqueueError()
			return ErrClosed
		}
	}
	metrics.RecordQueueEnqueue()
	q.updateGauges()
	return nil
}

// TryEnqueue adds an event without waiting. It fails with ErrFull when there
// is no room and with ErrClosed after Close.
func (q *InMemoryQueue) TryEnqueue(e Event) error { //nolint:gocritic // hugeParam: see Enqueue
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		return ErrClosed
	}
	select {
	case q.events <- e:
	default:
		metrics.RecordQueueEnqueueError()
		return ErrFull
	}
	metrics.RecordQueueEnqueue()
	q.updateGauges()
	return nil
}

// Dequeue returns the receive side of the queue.
func (q *InMemoryQueue) Dequeue() <-chan Event {
	return q.events
}

// MarkDequeued records that a consumer took one event off the queue.
func (q *InMemoryQueue) MarkDequeued() {
	metrics.RecordQueueDequeue()
	q.updateGauges()
}

// Len returns the current number of queued events.
func (q *InMemoryQueue) Len() int {
	return len(q.events)
}

// Capacity returns the configured capacity.
func (q *InMemoryQueue) Capacity() int {
	return q.capacity
}

func (q *InMemoryQueue) updateGauges() {
	size := len(q.events)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Close stops accepting events and closes the dequeue channel.
func (q *InMemoryQueue) Close() error {
	// Wake blocked producers before taking the write lock they hold shared.
	q.signalDone()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}

func (q *InMemoryQueue) signalDone() {
	q.doneOnce.Do(func() { close(q.done) })
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
