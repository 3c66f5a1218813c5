package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/clubwatch/internal/domain/dedupe"
	"github.com/okian/clubwatch/pkg/logger"
	"github.com/okian/clubwatch/pkg/metrics"
)

// Delivery defaults.
const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 2 * time.Second
)

// Sink is one destination for committed events.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e Event) error
}

// Deliverer fans one event out to every sink. Each (sink, event) pair is
// recorded in the deduper before sending and released again when the sink
// ultimately fails, so a sink that already received the event never gets it
// a second time.
type Deliverer struct {
	sinks       []Sink
	deduper     dedupe.Deduper
	maxAttempts int
	backoff     time.Duration
	logger      logger.Logger
}

// DeliveryOption applies a configuration option to the Deliverer.
type DeliveryOption func(*Deliverer)

// WithMaxAttempts sets how many times a failing sink is tried per event.
func WithMaxAttempts(n int) DeliveryOption {
	return func(d *Deliverer) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// WithBackoff sets the base delay between attempts; attempt n waits n*backoff.
func WithBackoff(backoff time.Duration) DeliveryOption {
	return func(d *Deliverer) {
		if backoff >= 0 {
			d.backoff = backoff
		}
	}
}

// WithDeduper replaces the default in-memory deduper.
func WithDeduper(dd dedupe.Deduper) DeliveryOption {
	return func(d *Deliverer) {
		if dd != nil {
			d.deduper = dd
		}
	}
}

// WithDeliveryLogger sets the logger.
func WithDeliveryLogger(l logger.Logger) DeliveryOption {
	return func(d *Deliverer) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDeliverer creates a Deliverer for sinks.
func NewDeliverer(sinks []Sink, opts ...DeliveryOption) *Deliverer {
	d := &Deliverer{
		sinks:       sinks,
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.deduper == nil {
		d.deduper = dedupe.NewInMemoryDeduper()
	}
	if d.logger == nil {
		d.logger = logger.Get().Named("delivery")
	}
	return d
}

// Sinks returns the names of the configured sinks.
func (d *Deliverer) Sinks() []string {
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	return names
}

// Deliver sends e to every sink that has not received it yet. The returned
// error joins the failures of sinks that exhausted their attempts.
func (d *Deliverer) Deliver(ctx context.Context, e Event) error { //nolint:gocritic // hugeParam: Event is passed by value for channel semantics
	var errs []error
	for _, s := range d.sinks {
		key := dedupe.Key(s.Name(), e.ID)
		if d.deduper.SeenAndRecord(ctx, key) {
			metrics.RecordDeliveryDuplicate(s.Name())
			d.logger.Debug(ctx, "event already delivered, skipping",
				logger.String("sink", s.Name()),
				logger.String("eventID", e.ID),
			)
			continue
		}
		if err := d.deliverWithRetry(ctx, s, e); err != nil {
			d.deduper.Unrecord(ctx, key)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Deliverer) deliverWithRetry(ctx context.Context, s Sink, e Event) error { //nolint:gocritic // hugeParam: see Deliver
	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		start := time.Now()
		err := s.Deliver(ctx, e)
		latency := float64(time.Since(start).Microseconds()) / 1000
		if err == nil {
			metrics.RecordDelivery(s.Name(), "ok", latency)
			return nil
		}
		metrics.RecordDelivery(s.Name(), "error", latency)
		lastErr = err
		d.logger.Warn(ctx, "sink delivery failed",
			logger.String("sink", s.Name()),
			logger.String("eventID", e.ID),
			logger.String("kind", string(e.Kind)),
			logger.Int("attempt", attempt),
			logger.Error(err),
		)
		if attempt == d.maxAttempts {
			break
		}
		metrics.RecordDeliveryRetry()
		if err := sleep(ctx, time.Duration(attempt)*d.backoff); err != nil {
			lastErr = err
			break
		}
	}
	return fmt.Errorf("deliver %s to %s: %w", e.ID, s.Name(), lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
