package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/okian/clubwatch/internal/domain/model"
)

// DefaultSubjectPrefix is prepended to the event kind to form the subject.
const DefaultSubjectPrefix = "clubwatch.events"

// Publisher is the part of *nats.Conn the sink needs.
type Publisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSSink publishes every event as JSON on "<prefix>.<kind>". The event ID
// travels in the Nats-Msg-Id header so JetStream streams can deduplicate.
type NATSSink struct {
	pub    Publisher
	prefix string
}

// NewNATSSink creates a NATSSink.
func NewNATSSink(pub Publisher, prefix string) *NATSSink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{pub: pub, prefix: prefix}
}

// ConnectNATS dials url with reconnects enabled.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// Name implements worker.Sink.
func (s *NATSSink) Name() string { return "nats" }

// Subject returns the subject events of kind are published on.
func (s *NATSSink) Subject(kind model.Kind) string {
	return s.prefix + "." + string(kind)
}

// Deliver implements worker.Sink.
func (s *NATSSink) Deliver(ctx context.Context, e model.Event) error { //nolint:gocritic // hugeParam: events travel by value
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := nats.NewMsg(s.Subject(e.Kind))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, e.ID)
	if err := s.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}
