package worker

import (
	"github.com/okian/clubwatch/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithRedelivery hands an event whose fan-out failed back to r, up to rounds
// times. Sinks that already received it are skipped on the next round.
func WithRedelivery(r Requeuer, rounds int) Option {
	return func(w *InMemoryWorker) {
		if r != nil && rounds > 0 {
			w.requeue = r
			w.rounds = rounds
		}
	}
}
