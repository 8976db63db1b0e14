package service

import (
	"context"
	"encoding/json"
	"fmt"

	"repoinsight/internal/dto"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// OutboundTopic carries every reply part from the session actors to the
// delivery side.
const OutboundTopic = "chat.outbound"

// NewOutboundBus builds the in-process bus behind the outbox. Publish waits
// for the subscriber's ack, which keeps the parts of a reply in order.
func NewOutboundBus() *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            256,
			BlockPublishUntilSubscriberAck: true,
		},
		watermill.NewStdLogger(false, false),
	)
}

// outboxService is the Sender used by the chat flow. Send returns once the
// delivery side took the part; the hub itself never blocks.
type outboxService struct {
	publisher message.Publisher
	topicName string
}

func NewOutboxService(publisher message.Publisher, topicName string) Sender {
	return &outboxService{
		publisher: publisher,
		topicName: topicName,
	}
}

func (s *outboxService) Send(ctx context.Context, msg dto.OutboundMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}

	m := message.NewMessage(watermill.NewUUID(), payload)
	m.SetContext(ctx)
	m.Metadata.Set("user_id", msg.UserID)

	if err := s.publisher.Publish(s.topicName, m); err != nil {
		return fmt.Errorf("publish outbound message: %w", err)
	}
	return nil
}
