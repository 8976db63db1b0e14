package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"repoinsight/pkg/events"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher handles sending events to the NATS bus.
type Publisher struct {
	conn *Conn
}

func NewPublisher(conn *Conn) *Publisher {
	return &Publisher{conn: conn}
}

// Publish sends an event to events.<type>. The event id doubles as the
// JetStream message id so retried publishes are deduplicated.
func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(Envelope{
		ID:         event.EventID(),
		Type:       event.EventType(),
		Data:       event.Payload(),
		OccurredAt: event.Timestamp(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	subject := Subject(event.EventType())
	if _, err := p.conn.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.EventID())); err != nil {
		return fmt.Errorf("failed to publish event to subject %s: %w", subject, err)
	}
	return nil
}
