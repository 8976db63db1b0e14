package nats

import (
	"context"
	"fmt"
	"time"

	"repoinsight/internal/pkg/logger"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	StreamName     = "EVENTS"
	SubjectPrefix  = "events."
	streamSubjects = "events.>"
)

// Conn is one NATS connection with its JetStream context, shared by the
// publisher and the subscriber.
type Conn struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger logger.ILogger
}

func Connect(url string, log logger.ILogger) (*Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("repoinsight"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// inbound chat and domain events share the stream, so consumers filter
	// by subject instead of owning it as a work queue
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{streamSubjects},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		// Don't fail hard here, the stream may already exist or NATS is not ready yet
		log.Warn("NATS", "Failed to ensure stream", map[string]interface{}{"stream": StreamName, "error": err})
	}

	return &Conn{nc: nc, js: js, logger: log}, nil
}

// Subject maps an event type to its NATS subject.
func Subject(eventType string) string {
	return SubjectPrefix + eventType
}

func (c *Conn) Close() {
	if c.nc != nil {
		c.nc.Close()
	}
}
