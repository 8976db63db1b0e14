package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"repoinsight/pkg/events"

	"github.com/nats-io/nats.go/jetstream"
)

// Envelope is the wire form of an event on the bus.
type Envelope struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// Decode turns a message body into an event. Bodies that are a bare JSON
// object are accepted as the payload of an event typed by the subject.
func Decode(subject string, body []byte) (events.BaseEvent, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return events.BaseEvent{}, err
	}
	if env.Data == nil {
		var payload map[string]interface{}
		if err := json.Unmarshal(body, &payload); err != nil {
			return events.BaseEvent{}, err
		}
		env.Data = payload
	}
	if env.Type == "" {
		env.Type = strings.TrimPrefix(subject, SubjectPrefix)
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = time.Now().UTC()
	}
	return events.BaseEvent{ID: env.ID, Type: env.Type, Data: env.Data, OccurredAt: env.OccurredAt}, nil
}

// EventHandler is a function that processes an event.
type EventHandler func(ctx context.Context, event events.Event) error

// Subscriber handles listening for events from NATS.
type Subscriber struct {
	conn *Conn

	mu       sync.Mutex
	consumes []jetstream.ConsumeContext
}

func NewSubscriber(conn *Conn) *Subscriber {
	return &Subscriber{conn: conn}
}

// Subscribe registers a handler for a subject with a durable consumer so no
// message is lost across restarts. Failed handlers Nak for redelivery.
func (s *Subscriber) Subscribe(ctx context.Context, subject, durableName string, handler EventHandler) error {
	consumer, err := s.conn.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       durableName,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    5,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	log := s.conn.logger
	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		event, err := Decode(msg.Subject(), msg.Data())
		if err != nil {
			log.Error("NATS", "Dropping undecodable message", map[string]interface{}{"subject": msg.Subject(), "error": err})
			_ = msg.Term()
			return
		}

		if err := handler(ctx, event); err != nil {
			log.Warn("NATS", "Handler failed, message will be redelivered", map[string]interface{}{"subject": msg.Subject(), "error": err})
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	s.mu.Lock()
	s.consumes = append(s.consumes, cc)
	s.mu.Unlock()

	log.Info("NATS", "Subscribed", map[string]interface{}{"subject": subject, "durable": durableName})
	return nil
}

// Close stops every consumer. The connection is owned by Conn.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cc := range s.consumes {
		cc.Stop()
	}
	s.consumes = nil
}
