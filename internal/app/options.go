package service

import (
	"time"

	"github.com/okian/clubwatch/internal/domain/milestone"
	"github.com/okian/clubwatch/internal/domain/season"
	"github.com/okian/clubwatch/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithRosterInterval sets the pause between roster cycles.
func WithRosterInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.rosterInterval = d
		}
	}
}

// WithStatsInterval sets the pause between stats cycles.
func WithStatsInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.statsInterval = d
		}
	}
}

// WithEngine sets the milestone engine.
func WithEngine(e *milestone.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithDetector sets the season reset detector.
func WithDetector(d *season.Detector) Option {
	return func(s *Service) {
		if d != nil {
			s.detector = d
		}
	}
}

// WithDelivery attaches the delivery pool and the queue feeding it so Run
// can supervise and drain them.
func WithDelivery(pool Runner, q Queue) Option {
	return func(s *Service) {
		s.pool = pool
		s.queue = q
	}
}

// WithDrainTimeout bounds how long Run waits for queued events on shutdown.
func WithDrainTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.drainTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
