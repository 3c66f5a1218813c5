package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/clubwatch/internal/domain/model"
	"github.com/okian/clubwatch/pkg/metrics"
)

// Enqueuer accepts events for delivery.
type Enqueuer interface {
	Enqueue(ctx context.Context, e model.Event) error
}

// QueueEmitter emits committed events into the delivery queue in order.
type QueueEmitter struct {
	q Enqueuer
}

// NewQueueEmitter creates a QueueEmitter on q.
func NewQueueEmitter(q Enqueuer) *QueueEmitter {
	return &QueueEmitter{q: q}
}

// Emit enqueues every event, blocking while the queue is full. Events that
// cannot be enqueued are reported together.
func (e *QueueEmitter) Emit(ctx context.Context, events []model.Event) error {
	var errs []error
	for i := range events {
		if err := e.q.Enqueue(ctx, events[i]); err != nil {
			errs = append(errs, fmt.Errorf("enqueue %s %s: %w", events[i].Kind, events[i].ID, err))
			continue
		}
		metrics.RecordEventEmitted(string(events[i].Kind))
	}
	return errors.Join(errs...)
}
