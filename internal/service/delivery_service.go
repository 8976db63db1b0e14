package service

import (
	"context"
	"encoding/json"

	"repoinsight/internal/dto"
	"repoinsight/internal/pkg/logger"
	"repoinsight/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
)

// MessageDelivery pushes a reply part to the user's live connections.
// Typically implemented by the WebSocket Hub.
type MessageDelivery interface {
	Deliver(userID string, msg dto.OutboundMessage)
}

type IDeliveryService interface {
	Consume(ctx context.Context) error
}

// deliveryService drains the outbound topic. Every part goes to the
// connected clients and, when a host runtime listens on the bus, out as a
// chat.outbound event.
type deliveryService struct {
	subscriber message.Subscriber
	topicName  string
	delivery   MessageDelivery
	publisher  EventPublisher
	logger     logger.ILogger
}

func NewDeliveryService(
	subscriber message.Subscriber,
	topicName string,
	delivery MessageDelivery,
	publisher EventPublisher,
	log logger.ILogger,
) IDeliveryService {
	return &deliveryService{
		subscriber: subscriber,
		topicName:  topicName,
		delivery:   delivery,
		publisher:  publisher,
		logger:     log,
	}
}

func (ds *deliveryService) Consume(ctx context.Context) error {
	messages, err := ds.subscriber.Subscribe(ctx, ds.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			ds.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (ds *deliveryService) processMessage(ctx context.Context, msg *message.Message) {
	var out dto.OutboundMessage
	if err := json.Unmarshal(msg.Payload, &out); err != nil {
		ds.logger.Error("DeliveryService", "Failed to unmarshal outbound message", map[string]interface{}{"error": err})
		msg.Ack() // never redeliver garbage
		return
	}

	if ds.delivery != nil {
		ds.delivery.Deliver(out.UserID, out)
	}

	if ds.publisher != nil {
		ev := events.ChatOutbound(out.UserID, out.ID, out.Text, out.Part, out.Parts)
		if err := ds.publisher.Publish(ctx, ev); err != nil {
			// the socket already has it; a bus outage must not replay the part
			ds.logger.Warn("DeliveryService", "Failed to publish outbound event", map[string]interface{}{
				"user":  out.UserID,
				"error": err,
			})
		}
	}

	msg.Ack()
}
