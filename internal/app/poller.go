package service

import (
	"context"
	"errors"
	"time"

	"github.com/okian/clubwatch/internal/domain/model"
	"github.com/okian/clubwatch/pkg/logger"
)

// CycleFunc runs one read-diff-write cycle.
type CycleFunc func(ctx context.Context) error

// Poller runs a cycle immediately and then again each interval after the
// previous cycle finished, so cycles of one poller never overlap.
type Poller struct {
	name     string
	interval time.Duration
	cycle    CycleFunc
	trigger  <-chan struct{}
	logger   logger.Logger
}

// PollerOption applies a configuration option to the Poller.
type PollerOption func(*Poller)

// WithPollerLogger sets a custom logger for the poller.
func WithPollerLogger(l logger.Logger) PollerOption {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithTrigger lets a receive on trigger start the next cycle before the
// interval has elapsed.
func WithTrigger(trigger <-chan struct{}) PollerOption {
	return func(p *Poller) {
		p.trigger = trigger
	}
}

// NewPoller creates a Poller.
func NewPoller(name string, interval time.Duration, cycle CycleFunc, opts ...PollerOption) *Poller {
	p := &Poller{name: name, interval: interval, cycle: cycle}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named(name + "-poller")
	}
	return p
}

// Run blocks until ctx is cancelled. Cancellation is only observed between
// cycles: an in-flight cycle runs to completion, persist step included.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info(ctx, "poller started", logger.Duration("interval", p.interval))
	defer p.logger.Info(context.WithoutCancel(ctx), "poller stopped")
	if ctx.Err() != nil {
		return nil
	}
	for {
		p.runOnce(ctx)

		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		case <-p.trigger:
			timer.Stop()
			p.logger.Debug(ctx, "cycle triggered early")
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	err := p.cycle(context.WithoutCancel(ctx))
	var partial *model.PartialBatchError
	switch {
	case err == nil:
	case errors.As(err, &partial):
		p.logger.Warn(ctx, "cycle committed with skipped members",
			logger.Int("failed", len(partial.Failed)),
			logger.Int("total", partial.Total),
		)
	default:
		p.logger.Error(ctx, "cycle failed, retrying next interval", logger.Error(err))
	}
}
