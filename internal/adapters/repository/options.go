package repository

import "github.com/okian/clubwatch/pkg/logger"

// DefaultDocumentKey names the Postgres state row when no club key is set.
const DefaultDocumentKey = "default"

// Option applies a configuration option to a store.
type Option func(*settings)

type settings struct {
	logger      logger.Logger
	documentKey string
}

func newSettings(opts []Option) settings {
	s := settings{documentKey: DefaultDocumentKey}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("repository")
	}
	return s
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDocumentKey sets the row key of the Postgres document, usually the club tag.
func WithDocumentKey(key string) Option {
	return func(s *settings) {
		if key != "" {
			s.documentKey = key
		}
	}
}
