package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	body := []byte(`{"id":"e1","type":"chat.inbound","data":{"user_id":"u1","text":"hi"},"occurred_at":"2026-01-02T03:04:05Z"}`)

	ev, err := Decode("events.chat.inbound", body)
	require.NoError(t, err)
	assert.Equal(t, "e1", ev.EventID())
	assert.Equal(t, "chat.inbound", ev.EventType())
	assert.Equal(t, "hi", ev.Payload()["text"])
	assert.Equal(t, 2026, ev.Timestamp().Year())
}

func TestDecodeBarePayloadUsesSubject(t *testing.T) {
	ev, err := Decode("events.chat.inbound", []byte(`{"user_id":"u1","text":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "chat.inbound", ev.EventType())
	assert.Equal(t, "u1", ev.Payload()["user_id"])
	assert.False(t, ev.Timestamp().IsZero())
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode("events.chat.inbound", []byte(`not json`))
	assert.Error(t, err)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "events.repo.analysis.completed", Subject("repo.analysis.completed"))
}
