package notify

import (
	"context"

	"github.com/okian/clubwatch/internal/domain/model"
	"github.com/okian/clubwatch/pkg/logger"
)

// LogSink writes every event to the structured log.
type LogSink struct {
	logger logger.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(l logger.Logger) *LogSink {
	if l == nil {
		l = logger.Get().Named("events")
	}
	return &LogSink{logger: l}
}

// Name implements worker.Sink.
func (s *LogSink) Name() string { return "log" }

// Deliver implements worker.Sink.
func (s *LogSink) Deliver(ctx context.Context, e model.Event) error { //nolint:gocritic // hugeParam: events travel by value
	fields := []logger.Field{
		logger.String("eventID", e.ID),
		logger.String("kind", string(e.Kind)),
		logger.String("member", e.MemberID),
	}
	switch e.Kind {
	case model.KindDimensionCapped:
		fields = append(fields, logger.String("dimension", e.Dimension))
	case model.KindThresholdReached:
		fields = append(fields, logger.Int("threshold", e.Threshold))
	case model.KindRankPromotion:
		fields = append(fields, logger.Int("tier", e.Tier), logger.String("tierName", e.TierName))
	case model.KindMemberJoined, model.KindMemberLeft:
		fields = append(fields, logger.String("role", e.Role))
	}
	s.logger.Info(ctx, Summary(e), fields...)
	return nil
}
