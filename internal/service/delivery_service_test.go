package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"repoinsight/internal/dto"
	"repoinsight/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDelivery struct {
	mu    sync.Mutex
	parts []int
}

func (d *recordingDelivery) Deliver(userID string, msg dto.OutboundMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.parts = append(d.parts, msg.Part)
}

func (d *recordingDelivery) delivered() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.parts...)
}

func TestOutboundPartsKeepTheirOrder(t *testing.T) {
	bus := NewOutboundBus()
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	rec := &recordingDelivery{}
	ds := NewDeliveryService(bus, OutboundTopic, rec, nil, logger.NewNopLogger())
	require.NoError(t, ds.Consume(ctx))

	const total = 50
	sender := NewOutboxService(bus, OutboundTopic)
	want := make([]int, 0, total)
	for i := 1; i <= total; i++ {
		require.NoError(t, sender.Send(ctx, dto.OutboundMessage{
			ID:     "reply-1",
			UserID: "alice",
			Text:   "chunk",
			Part:   i,
			Parts:  total,
		}))
		want = append(want, i)
	}

	require.Eventually(t, func() bool { return len(rec.delivered()) == total }, 2*time.Second, 2*time.Millisecond)
	assert.Equal(t, want, rec.delivered())
}
