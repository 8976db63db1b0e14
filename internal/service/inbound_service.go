package service

import (
	"context"
	"fmt"

	"repoinsight/internal/pkg/logger"
	"repoinsight/pkg/events"
	pktNats "repoinsight/pkg/nats"
)

const inboundDurable = "repoinsight-chat-inbound"

// EventSubscriber is the part of the bus the inbound bridge needs.
type EventSubscriber interface {
	Subscribe(ctx context.Context, subject, durableName string, handler pktNats.EventHandler) error
}

// InboundService feeds chat messages published by the host runtime into
// the Q&A flow.
type InboundService struct {
	subscriber EventSubscriber
	subject    string
	chat       IRepoQAService
	logger     logger.ILogger
}

func NewInboundService(sub EventSubscriber, subject string, chat IRepoQAService, log logger.ILogger) *InboundService {
	return &InboundService{
		subscriber: sub,
		subject:    subject,
		chat:       chat,
		logger:     log,
	}
}

// Start begins listening to the event bus.
func (s *InboundService) Start(ctx context.Context) error {
	if err := s.subscriber.Subscribe(ctx, s.subject, inboundDurable, s.handleEvent); err != nil {
		return err
	}
	s.logger.Info("InboundService", "Listening for chat messages", map[string]interface{}{"subject": s.subject})
	return nil
}

func (s *InboundService) handleEvent(ctx context.Context, event events.Event) error {
	payload := event.Payload()
	userID, _ := payload["user_id"].(string)
	text, _ := payload["text"].(string)

	if userID == "" {
		// redelivery cannot fix a malformed message
		s.logger.Warn("InboundService", "Dropping chat message without user_id", map[string]interface{}{"event_id": event.EventID()})
		return nil
	}

	if err := s.chat.HandleMessage(ctx, userID, text); err != nil {
		return fmt.Errorf("handle inbound message for %s: %w", userID, err)
	}
	return nil
}
