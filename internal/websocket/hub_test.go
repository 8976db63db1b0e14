package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"repoinsight/internal/dto"
	"repoinsight/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T, inbound InboundFunc) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub(nil, inbound, logger.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub, cancel
}

func TestDeliverReachesEveryConnectionOfTheUser(t *testing.T) {
	hub, _ := startHub(t, nil)
	phone := &Client{Hub: hub, UserID: "alice", Send: make(chan []byte, 4)}
	laptop := &Client{Hub: hub, UserID: "alice", Send: make(chan []byte, 4)}
	other := &Client{Hub: hub, UserID: "bob", Send: make(chan []byte, 4)}
	for _, c := range []*Client{phone, laptop, other} {
		require.True(t, hub.join(c))
	}
	require.Eventually(t, func() bool { return hub.Connected("alice") == 2 }, time.Second, time.Millisecond)

	hub.Deliver("alice", dto.OutboundMessage{ID: "m1", UserID: "alice", Text: "hello", Part: 1, Parts: 1})

	for _, c := range []*Client{phone, laptop} {
		select {
		case data := <-c.Send:
			var frame struct {
				Type string             `json:"type"`
				Data dto.OutboundMessage `json:"data"`
			}
			require.NoError(t, json.Unmarshal(data, &frame))
			assert.Equal(t, "message", frame.Type)
			assert.Equal(t, "hello", frame.Data.Text)
		case <-time.After(time.Second):
			t.Fatal("message not delivered")
		}
	}
	assert.Empty(t, other.Send)
}

func TestSlowClientIsDisconnected(t *testing.T) {
	hub, _ := startHub(t, nil)
	slow := &Client{Hub: hub, UserID: "alice", Send: make(chan []byte, 1)}
	fast := &Client{Hub: hub, UserID: "alice", Send: make(chan []byte, 4)}
	require.True(t, hub.join(slow))
	require.True(t, hub.join(fast))
	require.Eventually(t, func() bool { return hub.Connected("alice") == 2 }, time.Second, time.Millisecond)

	hub.Deliver("alice", dto.OutboundMessage{Text: "one", Part: 1, Parts: 2})
	hub.Deliver("alice", dto.OutboundMessage{Text: "two", Part: 2, Parts: 2})

	assert.Equal(t, 1, hub.Connected("alice"))
	assert.Len(t, fast.Send, 2)

	// the slow client keeps what it buffered, then sees its channel closed
	_, open := <-slow.Send
	assert.True(t, open)
	_, open = <-slow.Send
	assert.False(t, open)

	// a later unregister of the evicted client is harmless
	hub.leave(slow)
	hub.Deliver("alice", dto.OutboundMessage{Text: "three", Part: 1, Parts: 1})
	require.Eventually(t, func() bool { return len(fast.Send) == 3 }, time.Second, time.Millisecond)
}

func TestLeaveAndStop(t *testing.T) {
	hub, cancel := startHub(t, nil)
	c := &Client{Hub: hub, UserID: "alice", Send: make(chan []byte, 1)}
	require.True(t, hub.join(c))
	hub.leave(c)
	require.Eventually(t, func() bool { return hub.Connected("alice") == 0 }, time.Second, time.Millisecond)
	_, open := <-c.Send
	assert.False(t, open)

	cancel()
	require.Eventually(t, func() bool {
		return !hub.join(&Client{Hub: hub, UserID: "late", Send: make(chan []byte, 1)})
	}, time.Second, time.Millisecond)
}

func TestInboundTextIsForwarded(t *testing.T) {
	got := make(chan string, 1)
	hub, _ := startHub(t, func(ctx context.Context, userID, text string) error {
		got <- userID + ":" + text
		return errors.New("ignored")
	})

	hub.handleInbound(context.Background(), "alice", "https://github.com/acme/widgets")
	assert.Equal(t, "alice:https://github.com/acme/widgets", <-got)
}
